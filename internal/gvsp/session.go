// Package gvsp implements the streaming receiver of a GigE Vision
// camera client: it listens on a UDP endpoint for GVSP packets,
// reassembles per-frame packet bursts into a contiguous buffer, decodes
// the pixel payload and hands each completed frame to a consumer
// callback.
//
// The control plane (GVCP), device discovery and camera configuration
// are external collaborators: the caller derives payload and packet
// sizes from the camera configuration and points the camera's stream
// channel at the port reported by NewSession.
package gvsp

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/avasok/spectral-camera/gvsp-receiver/internal/logger"
	"github.com/avasok/spectral-camera/gvsp-receiver/internal/metrics"
	"github.com/avasok/spectral-camera/gvsp-receiver/pkg/types"
)

// FrameCallback consumes one completed frame. Ownership of the matrix
// transfers to the callback; the receiver retains no reference after it
// returns. The callback runs on the receive goroutine with no session
// locks held, so it may call back into the session, but it must not
// block indefinitely or frames will be lost.
type FrameCallback func(frame *types.Matrix, bitDepth int)

// Session is one bound GVSP stream channel. Controller methods may be
// called from any goroutine; a dedicated receive goroutine owns the
// socket reads between StartReceive and StopReceive.
//
// Lock order is frame lock, then enable lock, never the reverse.
type Session struct {
	id      string
	metrics *metrics.Metrics
	log     *logger.Logger // nil means the package-level default

	verbose  atomic.Bool
	warnings atomic.Bool

	conn *net.UDPConn // nil once closed
	port int

	// enMu guards receiving and recvDone.
	enMu      sync.Mutex
	receiving bool
	recvDone  chan struct{} // closed when the receive goroutine exits

	// frameMu guards everything below: the reassembly buffer, the
	// per-frame state and the callback slot.
	frameMu           sync.Mutex
	payloadSize       int
	packetPayloadSize int
	packetCount       int
	buf               []byte // reassembly buffer, nil until CreateBuffer
	frame             frameState
	callback          FrameCallback
}

// NewSession binds a UDP socket on hostIP with an OS-assigned ephemeral
// port and returns the session together with the bound port. The caller
// configures the camera's stream channel destination to that port.
// A nil metrics instance is replaced with a standalone one.
func NewSession(hostIP string, m *metrics.Metrics) (*Session, int, error) {
	if m == nil {
		m = metrics.New()
	}

	ip := net.ParseIP(hostIP)
	if ip == nil {
		return nil, 0, fmt.Errorf("gvsp: invalid host address %q", hostIP)
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: ip})
	if err != nil {
		return nil, 0, fmt.Errorf("gvsp: bind socket: %w", err)
	}

	s := &Session{
		id:      uuid.NewString(),
		metrics: m,
		conn:    conn,
		port:    conn.LocalAddr().(*net.UDPAddr).Port,
	}
	s.warnings.Store(true)

	s.verbosef("socket %s created on %s:%d", s.id, hostIP, s.port)
	return s, s.port, nil
}

// ID returns the session identifier used in log messages.
func (s *Session) ID() string { return s.id }

// Port returns the bound local port.
func (s *Session) Port() int { return s.port }

// Close closes the socket. The session cannot be reused afterwards.
func (s *Session) Close() error {
	// Lock order: frame, then enable. Holding the frame lock until the
	// socket is released keeps StartReceive from slipping in between
	// the receive check and the mutation.
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	if err := s.failIfReceiving(); err != nil {
		return err
	}
	if s.conn == nil {
		return ErrSocketClosed
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("gvsp: close socket: %w", err)
	}
	s.verbosef("socket closed")
	return nil
}

// CreateBuffer allocates the reassembly buffer for one frame.
// payloadSize is the total image payload bytes per frame; packetSize is
// the configured stream channel packet size including the 36 bytes of
// IP, UDP and GVSP header overhead. payloadSize must divide exactly
// into per-packet payloads.
func (s *Session) CreateBuffer(payloadSize, packetSize int) error {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	if err := s.failIfReceiving(); err != nil {
		return err
	}

	if s.buf != nil {
		return ErrBufferExists
	}
	pps := packetSize - totalHeaderOverhead
	if pps <= 0 {
		return fmt.Errorf("gvsp: packet size %d leaves no payload after %d header bytes", packetSize, totalHeaderOverhead)
	}
	if payloadSize <= 0 || payloadSize%pps != 0 {
		return fmt.Errorf("gvsp: payload size %d is not a positive multiple of the packet payload size %d", payloadSize, pps)
	}

	s.payloadSize = payloadSize
	s.packetPayloadSize = pps
	s.packetCount = payloadSize / pps
	s.buf = make([]byte, payloadSize)
	s.frame = frameState{slotFilled: make([]bool, s.packetCount)}

	s.verbosef("packet payload size: %d, packet count: %d", pps, s.packetCount)
	s.verbosef("frame buffer created, %d bytes", payloadSize)
	return nil
}

// FreeBuffer releases the reassembly buffer and zeroes the derived
// sizes.
func (s *Session) FreeBuffer() error {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	if err := s.failIfReceiving(); err != nil {
		return err
	}

	if s.buf == nil {
		return ErrNoBuffer
	}
	s.payloadSize = 0
	s.packetPayloadSize = 0
	s.packetCount = 0
	s.buf = nil
	s.frame = frameState{}

	s.verbosef("frame buffer freed")
	return nil
}

// StartReceive sends a 4-byte zero datagram to the camera to open
// firewall and NAT state for the inbound stream, then spawns the
// receive goroutine.
func (s *Session) StartReceive(cameraIP string) error {
	// Lock order: frame, then enable.
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	s.enMu.Lock()
	defer s.enMu.Unlock()

	if s.receiving {
		return ErrAlreadyReceiving
	}
	if s.conn == nil {
		return ErrNoSocket
	}
	if s.buf == nil {
		return ErrNoBuffer
	}

	ip := net.ParseIP(cameraIP)
	if ip == nil {
		return fmt.Errorf("gvsp: invalid camera address %q", cameraIP)
	}
	if _, err := s.conn.WriteToUDP(make([]byte, 4), &net.UDPAddr{IP: ip, Port: s.port}); err != nil {
		return fmt.Errorf("gvsp: open connection: %w", err)
	}
	s.verbosef("connection open")

	s.receiving = true
	s.recvDone = make(chan struct{})
	go s.receive(s.conn, s.recvDone)
	return nil
}

// StopReceive clears the receive flag and joins the receive goroutine.
// When it returns, the loop has exited and no further callbacks fire.
func (s *Session) StopReceive() error {
	s.enMu.Lock()
	if !s.receiving {
		s.enMu.Unlock()
		return ErrNotReceiving
	}
	s.receiving = false
	done := s.recvDone
	s.enMu.Unlock()

	<-done

	s.verbosef("stopped listening incoming packets")
	return nil
}

// SetFrameCallback installs the consumer invoked on every complete
// frame. Passing nil detaches the current callback.
func (s *Session) SetFrameCallback(cb FrameCallback) {
	s.frameMu.Lock()
	s.callback = cb
	s.frameMu.Unlock()
	s.verbosef("frame callback set")
}

// SetLogger redirects the session's diagnostic output to l instead of
// the global logger. Call before StartReceive.
func (s *Session) SetLogger(l *logger.Logger) { s.log = l }

// SetVerbose toggles status messages.
func (s *Session) SetVerbose(v bool) { s.verbose.Store(v) }

// SetWarnings toggles protocol warnings.
func (s *Session) SetWarnings(w bool) { s.warnings.Store(w) }

// Metrics returns the metrics instance updated by the receiver.
func (s *Session) Metrics() *metrics.Metrics { return s.metrics }

// failIfReceiving fails controller operations that are illegal while
// the receive goroutine runs. Callers hold the frame lock, so
// StartReceive cannot flip the flag between this check and their
// mutation of the socket or buffer.
func (s *Session) failIfReceiving() error {
	s.enMu.Lock()
	defer s.enMu.Unlock()
	if s.receiving {
		return ErrAlreadyReceiving
	}
	return nil
}

func (s *Session) verbosef(format string, args ...interface{}) {
	if !s.verbose.Load() {
		return
	}
	if s.log != nil {
		s.log.Info("GVSP", format, args...)
		return
	}
	logger.Info("GVSP", format, args...)
}

func (s *Session) warnf(format string, args ...interface{}) {
	if !s.warnings.Load() {
		return
	}
	if s.log != nil {
		s.log.Warn("GVSP", format, args...)
		return
	}
	logger.Warn("GVSP", format, args...)
}

func (s *Session) debugf(format string, args ...interface{}) {
	if !s.verbose.Load() {
		return
	}
	if s.log != nil {
		s.log.Debug("GVSP", format, args...)
		return
	}
	logger.Debug("GVSP", format, args...)
}
