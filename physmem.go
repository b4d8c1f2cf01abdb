package el2

import (
	"fmt"
	"math"
	"sync"
)

// FrameSize is the allocation unit of PhysMem, one 64KiB granule.
const FrameSize = 64 << 10

// PhysMem is sparse simulated physical memory covering the 48-bit output
// range. Frames are allocated on first write; unwritten memory reads as
// zero.
type PhysMem struct {
	mu     sync.Mutex
	frames map[uint64][]byte
}

// NewPhysMem returns empty physical memory.
func NewPhysMem() *PhysMem {
	return &PhysMem{frames: make(map[uint64][]byte)}
}

func (p *PhysMem) frame(pa uint64, alloc bool) ([]byte, error) {
	fn := pa / FrameSize
	if f, ok := p.frames[fn]; ok {
		return f, nil
	}
	if !alloc {
		return nil, nil
	}
	f, err := allocFrame()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate frame %#x: %w", fn*FrameSize, err)
	}
	p.frames[fn] = f
	return f, nil
}

func checkRange(pa uint64, n int) error {
	if pa > math.MaxUint64-uint64(n) || pa+uint64(n) > 1<<VABits {
		return fmt.Errorf("physical range %#x+%d exceeds %d-bit address space", pa, n, VABits)
	}
	return nil
}

// ReadAt copies len(b) bytes from physical address pa.
func (p *PhysMem) ReadAt(b []byte, pa uint64) error {
	if err := checkRange(pa, len(b)); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(b) > 0 {
		off := pa % FrameSize
		n := min(uint64(len(b)), FrameSize-off)
		f, _ := p.frame(pa, false)
		if f == nil {
			clear(b[:n])
		} else {
			copy(b[:n], f[off:off+n])
		}
		b = b[n:]
		pa += n
	}
	return nil
}

// WriteAt copies b to physical address pa.
func (p *PhysMem) WriteAt(b []byte, pa uint64) error {
	if err := checkRange(pa, len(b)); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(b) > 0 {
		off := pa % FrameSize
		n := min(uint64(len(b)), FrameSize-off)
		f, err := p.frame(pa, true)
		if err != nil {
			return err
		}
		copy(f[off:off+n], b[:n])
		b = b[n:]
		pa += n
	}
	return nil
}

// Frames returns the number of allocated frames.
func (p *PhysMem) Frames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames)
}

// Close releases every frame.
func (p *PhysMem) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for fn, f := range p.frames {
		if err := freeFrame(f); err != nil && first == nil {
			first = err
		}
		delete(p.frames, fn)
	}
	return first
}
