package gvsp

// frameState tracks the in-progress frame between a leader and its
// trailer. All fields are guarded by the session's frame lock.
type frameState struct {
	sizeX          int         // columns
	sizeS          int         // rows (spectral lines)
	pixelFormat    PixelFormat // from the leader
	leaderReceived bool

	// receivedPackets counts distinct packet slots filled since the
	// leader. A per-slot map is kept so a duplicated packet cannot
	// mask a dropped one.
	receivedPackets int
	slotFilled      []bool
}

// beginFrame resets the per-frame state on an accepted leader.
func (f *frameState) beginFrame(format PixelFormat, sizeX, sizeS int) {
	f.pixelFormat = format
	f.sizeX = sizeX
	f.sizeS = sizeS
	f.receivedPackets = 0
	for i := range f.slotFilled {
		f.slotFilled[i] = false
	}
	f.leaderReceived = true
}

// fillSlot records arrival of the 1-based packet id and reports whether
// this is the first packet seen for that slot.
func (f *frameState) fillSlot(packetID int) bool {
	i := packetID - 1
	if i < 0 || i >= len(f.slotFilled) || f.slotFilled[i] {
		return false
	}
	f.slotFilled[i] = true
	f.receivedPackets++
	return true
}
