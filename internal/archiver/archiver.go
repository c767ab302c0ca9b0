// Package archiver persists completed frames as grayscale TIFF files,
// one file per frame. It consumes frames from the receiver callback
// through a buffered channel so a slow disk never stalls the receive
// loop.
package archiver

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/image/tiff"

	"github.com/avasok/spectral-camera/gvsp-receiver/internal/logger"
	"github.com/avasok/spectral-camera/gvsp-receiver/internal/metrics"
	"github.com/avasok/spectral-camera/gvsp-receiver/pkg/types"
)

// Archiver writes frames to disk while a capture session is active
type Archiver struct {
	mu           sync.RWMutex
	basePath     string
	sessionPath  string
	archiving    bool
	frameCount   uint64
	bytesWritten uint64
	startTime    time.Time
	frameChan    chan *types.Matrix
	wg           sync.WaitGroup
	metrics      *metrics.Metrics
}

// New creates an archiver rooted at basePath. A nil metrics instance
// disables counter updates.
func New(basePath string, m *metrics.Metrics) *Archiver {
	return &Archiver{
		basePath:  basePath,
		frameChan: make(chan *types.Matrix, 60),
		metrics:   m,
	}
}

// Start begins a new capture session in a timestamped directory
func (a *Archiver) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.archiving {
		return fmt.Errorf("archiver: already archiving")
	}

	sessionPath := filepath.Join(a.basePath, time.Now().Format("capture_20060102_150405"))
	if err := os.MkdirAll(sessionPath, 0755); err != nil {
		return fmt.Errorf("archiver: create session directory: %w", err)
	}

	a.sessionPath = sessionPath
	a.archiving = true
	a.frameCount = 0
	a.bytesWritten = 0
	a.startTime = time.Now()

	a.wg.Add(1)
	go a.writeFrames()

	logger.Info("Archiver", "capture session started: %s", sessionPath)
	return nil
}

// Stop ends the capture session after draining buffered frames
func (a *Archiver) Stop() error {
	a.mu.Lock()
	if !a.archiving {
		a.mu.Unlock()
		return fmt.Errorf("archiver: not archiving")
	}
	a.archiving = false
	a.mu.Unlock()

	// Wait for the write goroutine to drain and exit
	a.wg.Wait()

	logger.Info("Archiver", "capture session stopped: %d frames", a.FrameCount())
	return nil
}

// SendFrame hands a frame to the archiver without blocking. It reports
// whether the frame was accepted.
func (a *Archiver) SendFrame(m *types.Matrix) bool {
	a.mu.RLock()
	archiving := a.archiving
	a.mu.RUnlock()

	if !archiving {
		return false
	}

	select {
	case a.frameChan <- m:
		return true
	default:
		// Channel full, drop frame
		return false
	}
}

// writeFrames drains the frame channel until archiving stops
func (a *Archiver) writeFrames() {
	defer a.wg.Done()

	for {
		a.mu.RLock()
		archiving := a.archiving
		a.mu.RUnlock()

		if !archiving {
			for len(a.frameChan) > 0 {
				a.writeFrame(<-a.frameChan)
			}
			return
		}

		select {
		case m := <-a.frameChan:
			a.writeFrame(m)
		case <-time.After(100 * time.Millisecond):
			// Re-check archiving state periodically
		}
	}
}

// writeFrame encodes one frame as a grayscale TIFF
func (a *Archiver) writeFrame(m *types.Matrix) {
	a.mu.Lock()
	defer a.mu.Unlock()

	name := fmt.Sprintf("frame_%06d_%dbit.tiff", a.frameCount, m.BitDepth)
	path := filepath.Join(a.sessionPath, name)

	var img image.Image
	if m.BitDepth == 8 {
		img = m.Gray()
	} else {
		img = m.Gray16()
	}

	f, err := os.Create(path)
	if err != nil {
		logger.Error("Archiver", "create %s: %v", name, err)
		if a.metrics != nil {
			a.metrics.ArchiveErrors.Add(1)
		}
		return
	}
	cw := &countingWriter{w: f}
	err = tiff.Encode(cw, img, &tiff.Options{Compression: tiff.Deflate})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		logger.Error("Archiver", "write %s: %v", name, err)
		if a.metrics != nil {
			a.metrics.ArchiveErrors.Add(1)
		}
		return
	}

	a.frameCount++
	a.bytesWritten += uint64(cw.n)
	if a.metrics != nil {
		a.metrics.FramesArchived.Add(1)
	}
}

// IsArchiving returns true while a capture session is active
func (a *Archiver) IsArchiving() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.archiving
}

// FrameCount returns the number of frames written this session
func (a *Archiver) FrameCount() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.frameCount
}

// GetStatus returns the current capture session status
func (a *Archiver) GetStatus() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var duration time.Duration
	if a.archiving {
		duration = time.Since(a.startTime)
	}

	return Status{
		Archiving:    a.archiving,
		SessionPath:  a.sessionPath,
		FrameCount:   a.frameCount,
		BytesWritten: a.bytesWritten,
		Duration:     duration,
		StartTime:    a.startTime,
	}
}

// Status holds the current capture session status
type Status struct {
	Archiving    bool          `json:"archiving"`
	SessionPath  string        `json:"session_path"`
	FrameCount   uint64        `json:"frame_count"`
	BytesWritten uint64        `json:"bytes_written"`
	Duration     time.Duration `json:"duration_ns"`
	StartTime    time.Time     `json:"start_time"`
}

type countingWriter struct {
	w *os.File
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
