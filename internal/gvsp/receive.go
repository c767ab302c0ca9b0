package gvsp

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/avasok/spectral-camera/gvsp-receiver/pkg/types"
)

const (
	// Datagram scratch buffer size.
	scratchBufSize = 2048
	// Read deadline per loop iteration. Bounds how long StopReceive
	// can wait for the loop to observe the cleared flag.
	readTimeout = 100 * time.Millisecond
	// Uncompressed image payload type in the leader.
	payloadTypeImage = 0x0001
	// Leader payload length for an uncompressed image.
	imageLeaderLen = 36
)

// pendingFrame is a decoded frame captured under the frame lock and
// delivered after both locks are released.
type pendingFrame struct {
	matrix *types.Matrix
	cb     FrameCallback
}

// receive is the dedicated receive loop. It owns conn reads until the
// enable flag is cleared, then closes done and exits.
func (s *Session) receive(conn *net.UDPConn, done chan struct{}) {
	defer close(done)

	buf := make([]byte, scratchBufSize)
	s.verbosef("receiver is listening port: %d", s.port)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, _, err := conn.ReadFromUDP(buf)

		var deliver *pendingFrame
		s.frameMu.Lock()
		if err == nil && n >= headerSize {
			s.metrics.PacketsReceived.Add(1)
			switch packetFormat(buf[4] & 0x0f) {
			case formatPayload:
				s.handleData(buf[:n])
			case formatLeader:
				s.handleLeader(buf[:n])
			case formatTrailer:
				deliver = s.handleTrailer(buf[:n])
			}
		}
		s.enMu.Lock()
		exit := !s.receiving
		s.enMu.Unlock()
		s.frameMu.Unlock()

		if deliver != nil && deliver.cb != nil {
			start := time.Now()
			deliver.cb(deliver.matrix, deliver.matrix.BitDepth)
			s.metrics.UpdateCallbackLatency(time.Since(start))
		}
		if exit {
			break
		}
	}
}

// validHeader checks the fixed header and reports the reason for a
// rejected packet. Holds the frame lock.
func (s *Session) validHeader(h header) bool {
	if h.Status != 0 {
		s.warnf("received packet with status: 0x%04x", h.Status)
		s.metrics.InvalidPackets.Add(1)
		return false
	}
	if h.BlockID == 0 {
		s.warnf("received packet with zero block ID")
		s.metrics.InvalidPackets.Add(1)
		return false
	}
	if h.ExtendedID {
		s.warnf("extended ID is not supported")
		s.metrics.InvalidPackets.Add(1)
		return false
	}
	return true
}

// handleLeader starts a new frame from an uncompressed image leader.
// Holds the frame lock.
func (s *Session) handleLeader(buf []byte) {
	h := parseHeader(buf)
	if !s.validHeader(h) || len(buf) < 12 {
		s.warnf("received invalid leader packet")
		return
	}
	payload := buf[headerSize:]
	if binary.BigEndian.Uint16(payload[2:4]) != payloadTypeImage {
		s.warnf("no other payload type than uncompressed image is supported")
		return
	}
	if len(payload) != imageLeaderLen {
		s.warnf("received invalid uncompressed image leader packet")
		return
	}
	if payload[0] != 0 {
		s.warnf("interlacing is not supported")
		return
	}

	format := PixelFormat(binary.BigEndian.Uint32(payload[12:16]))
	sizeX := int(binary.BigEndian.Uint32(payload[16:20]))
	sizeS := int(binary.BigEndian.Uint32(payload[20:24]))
	s.frame.beginFrame(format, sizeX, sizeS)
	s.metrics.LeaderPackets.Add(1)
}

// handleData places one data payload packet into the reassembly buffer.
// Out-of-order packets land at their slot; duplicates overwrite the
// same bytes without advancing the tally. Holds the frame lock.
func (s *Session) handleData(buf []byte) {
	if !s.frame.leaderReceived {
		// A packet straggling in after its trailer would corrupt the
		// next frame's buffer; drop it until a leader arrives.
		s.warnf("received data payload packet without a leader")
		return
	}

	h := parseHeader(buf)
	pps := s.packetPayloadSize
	if len(buf) < headerSize+pps {
		s.warnf("received data payload packet is too small, expected %d bytes, received %d bytes", headerSize+pps, len(buf))
		return
	}
	start := (int(h.PacketID) - 1) * pps
	if start < 0 || start+pps > s.payloadSize {
		s.warnf("received data payload packet exceeds frame buffer size")
		return
	}

	copy(s.buf[start:start+pps], buf[headerSize:headerSize+pps])
	s.frame.fillSlot(int(h.PacketID))
	s.metrics.DataPackets.Add(1)
	s.metrics.BytesReceived.Add(uint64(pps))
}

// handleTrailer completes the frame: verifies the tally, decodes the
// reassembly buffer and captures the callback for delivery outside the
// locks. Holds the frame lock.
func (s *Session) handleTrailer(buf []byte) *pendingFrame {
	s.metrics.TrailerPackets.Add(1)
	if !s.frame.leaderReceived {
		s.warnf("trailer received before leader")
		return nil
	}
	// Clear immediately so a missing leader for the next frame is
	// detected even when this trailer is rejected below.
	s.frame.leaderReceived = false

	h := parseHeader(buf)
	if !s.validHeader(h) || len(buf) < 12 {
		s.warnf("received invalid trailer packet")
		return nil
	}
	if s.frame.receivedPackets != s.packetCount {
		missing := s.packetCount - s.frame.receivedPackets
		s.warnf("%d packets dropped", missing)
		s.metrics.PacketsDropped.Add(uint64(missing))
		s.metrics.FramesDropped.Add(1)
		return nil
	}

	start := time.Now()
	matrix, err := decodeFrame(s.buf, s.frame.pixelFormat, s.frame.sizeS, s.frame.sizeX)
	if err != nil {
		s.warnf("frame dropped: %v", err)
		s.metrics.FramesDropped.Add(1)
		return nil
	}
	s.metrics.UpdateDecodeLatency(time.Since(start))
	s.metrics.FramesCompleted.Add(1)
	s.debugf("frame complete: %s %dx%d", s.frame.pixelFormat, s.frame.sizeX, s.frame.sizeS)

	return &pendingFrame{matrix: matrix, cb: s.callback}
}
