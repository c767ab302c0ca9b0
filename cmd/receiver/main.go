package main

import (
	"flag"
	"log"
	"net/http"
	_ "net/http/pprof" // Enable pprof
	"os"
	"os/signal"
	"syscall"

	"github.com/avasok/spectral-camera/gvsp-receiver/internal/archiver"
	"github.com/avasok/spectral-camera/gvsp-receiver/internal/gvsp"
	"github.com/avasok/spectral-camera/gvsp-receiver/internal/logger"
	"github.com/avasok/spectral-camera/gvsp-receiver/internal/metrics"
	"github.com/avasok/spectral-camera/gvsp-receiver/pkg/types"
)

var (
	// Command-line flags
	hostIP      = flag.String("host", "0.0.0.0", "Host IP address to bind the stream channel to")
	cameraIP    = flag.String("camera", "", "Camera IP address (required)")
	payloadSize = flag.Int("payload-size", 0, "Frame payload size in bytes (camera PayloadSize, required)")
	packetSize  = flag.Int("packet-size", 1500, "Stream channel packet size including headers (camera GevSCPSPacketSize)")
	archive     = flag.Bool("archive", false, "Archive completed frames as TIFF files")
	archivePath = flag.String("archive-path", "./captures", "Frame archive output path")
	metricsAddr = flag.String("metrics", ":9090", "Metrics server address")
	pprofAddr   = flag.String("pprof", "", "pprof server address (empty to disable)")
	verbose     = flag.Bool("verbose", false, "Enable receiver status messages")
	warnings    = flag.Bool("warnings", true, "Enable protocol warnings")
	logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error, silent)")
	logColor    = flag.Bool("log-color", true, "Enable colored log output")
)

func main() {
	flag.Parse()

	// Initialize logger
	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, *logColor)

	if *cameraIP == "" || *payloadSize <= 0 {
		flag.Usage()
		os.Exit(2)
	}

	m := metrics.New()

	// Bind the stream channel socket. The bound port is what the
	// camera's GevSCPHostPort must be configured to by the control
	// plane tooling.
	session, port, err := gvsp.NewSession(*hostIP, m)
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}
	session.SetVerbose(*verbose)
	session.SetWarnings(*warnings)
	logger.Info("Main", "stream channel bound on %s:%d (set GevSCPHostPort to %d)", *hostIP, port, port)

	if err := session.CreateBuffer(*payloadSize, *packetSize); err != nil {
		log.Fatalf("Failed to create frame buffer: %v", err)
	}

	arch := archiver.New(*archivePath, m)
	if *archive {
		if err := arch.Start(); err != nil {
			log.Fatalf("Failed to start archiver: %v", err)
		}
	}

	session.SetFrameCallback(func(frame *types.Matrix, bitDepth int) {
		logger.Debug("Main", "frame %dx%d, %d bit", frame.Cols, frame.Rows, bitDepth)
		if arch.IsArchiving() && !arch.SendFrame(frame) {
			logger.Warn("Main", "archiver backlogged, frame dropped")
		}
	})

	// Start metrics server
	go func() {
		logger.Info("Main", "metrics server on %s", *metricsAddr)
		if err := m.StartServer(*metricsAddr); err != nil {
			logger.Error("Main", "metrics server: %v", err)
		}
	}()

	// Start pprof server
	if *pprofAddr != "" {
		go func() {
			logger.Info("Main", "pprof server on %s", *pprofAddr)
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				logger.Error("Main", "pprof server: %v", err)
			}
		}()
	}

	if err := session.StartReceive(*cameraIP); err != nil {
		log.Fatalf("Failed to start receiving: %v", err)
	}
	logger.Info("Main", "receiving from %s", *cameraIP)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Main", "shutting down...")

	if err := session.StopReceive(); err != nil {
		logger.Error("Main", "stop receive: %v", err)
	}
	if arch.IsArchiving() {
		if err := arch.Stop(); err != nil {
			logger.Error("Main", "stop archiver: %v", err)
		}
	}
	if err := session.FreeBuffer(); err != nil {
		logger.Error("Main", "free buffer: %v", err)
	}
	if err := session.Close(); err != nil {
		logger.Error("Main", "close socket: %v", err)
	}

	status := arch.GetStatus()
	logger.Info("Main", "done: %d frames received, %d archived",
		m.FramesCompleted.Load(), status.FrameCount)
}
