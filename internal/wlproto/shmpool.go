package wlproto

import (
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/rajveermalviya/go-wayland/wayland/client"
)

// ShmFormat mirrors the two wl_shm pixel formats the Output Layer writes,
// matching compose.PixelFormat's two variants (kept as a distinct type here
// to avoid wlproto depending on compose).
type ShmFormat uint32

const (
	ShmFormatXRGB8888    ShmFormat = 1 // WL_SHM_FORMAT_XRGB8888
	ShmFormatXRGB2101010 ShmFormat = 0x30335258
)

// Slot is one shm-backed buffer: a mmap'd byte range plus the wl_buffer
// wrapping it.
type Slot struct {
	Bytes  []byte
	buffer *client.Buffer

	mu       sync.Mutex
	inFlight bool
}

// SlotPool manages a small ring of shm-backed buffers for one output layer.
// spec.md 4.6 caps outstanding (attached, not yet released) buffers per
// layer at two, so double-buffering never blocks on a slow compositor while
// still bounding memory.
type SlotPool struct {
	shm    *client.Shm
	width  int
	height int
	stride int
	format ShmFormat

	file *os.File
	pool *client.ShmPool
	mem  []byte
	slots []*Slot
}

const maxOutstandingSlots = 2

// NewSlotPool allocates one shm pool sized for maxOutstandingSlots buffers
// of height x stride bytes each and wraps each region in a wl_buffer.
func NewSlotPool(shm *client.Shm, width, height, stride int, format ShmFormat) (*SlotPool, error) {
	slotSize := int64(stride * height)
	totalSize := slotSize * int64(maxOutstandingSlots)

	file, err := createAnonymousFile(totalSize)
	if err != nil {
		return nil, fmt.Errorf("create shm backing file: %w", err)
	}

	mem, err := syscall.Mmap(int(file.Fd()), 0, int(totalSize), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("mmap shm pool: %w", err)
	}

	pool, err := shm.CreatePool(file.Fd(), int32(totalSize))
	if err != nil {
		syscall.Munmap(mem)
		file.Close()
		return nil, fmt.Errorf("wl_shm.create_pool: %w", err)
	}

	sp := &SlotPool{shm: shm, width: width, height: height, stride: stride, format: format, file: file, pool: pool, mem: mem}
	sp.slots = make([]*Slot, maxOutstandingSlots)
	for i := 0; i < maxOutstandingSlots; i++ {
		offset := int32(int64(i) * slotSize)
		buf, err := pool.CreateBuffer(offset, int32(width), int32(height), int32(stride), uint32(format))
		if err != nil {
			return nil, fmt.Errorf("wl_shm_pool.create_buffer slot %d: %w", i, err)
		}
		slot := &Slot{Bytes: mem[int64(i)*slotSize : (int64(i)+1)*slotSize], buffer: buf}
		buf.SetReleaseHandler(func(client.BufferReleaseEvent) {
			slot.mu.Lock()
			slot.inFlight = false
			slot.mu.Unlock()
		})
		sp.slots[i] = slot
	}
	return sp, nil
}

// Acquire returns the first slot not currently attached to a surface, or
// (nil, false) if both outstanding slots are still held by the compositor.
func (sp *SlotPool) Acquire() (*Slot, bool) {
	for _, s := range sp.slots {
		s.mu.Lock()
		if !s.inFlight {
			s.inFlight = true
			s.mu.Unlock()
			return s, true
		}
		s.mu.Unlock()
	}
	return nil, false
}

// Buffer returns the wl_buffer proxy backing slot, for attach/commit calls.
func (s *Slot) Buffer() *client.Buffer { return s.buffer }

// Release tears down the pool and unmaps its backing memory. Safe to call
// once per pool, typically on output geometry change or teardown.
func (sp *SlotPool) Release() {
	for _, s := range sp.slots {
		if s.buffer != nil {
			s.buffer.Destroy()
		}
	}
	if sp.pool != nil {
		sp.pool.Destroy()
	}
	if sp.mem != nil {
		syscall.Munmap(sp.mem)
	}
	if sp.file != nil {
		sp.file.Close()
	}
}
