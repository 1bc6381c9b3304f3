package config

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// RecordSize is the length of the configuration wire record.
//
//	off size field
//	0   2    notify_rate_hz
//	2   2    active_timeout_ms
//	4   1    accel_range
//	5   1    motion_threshold
//	6   2    adv_interval_idle_ms
//	8   2    adv_interval_active_ms
//	10  1    stream_mode
//	11  1    reserved
//
// Multi-byte fields are little-endian.
const RecordSize = 12

var (
	// ErrInvalidOffset is returned for writes that fall outside the record.
	ErrInvalidOffset = errors.New("write outside configuration record")
	// ErrShortRecord is returned when decoding fewer than RecordSize bytes.
	ErrShortRecord = errors.New("short configuration record")
)

// Encode serializes c into its 12-byte wire form. The reserved byte is zero.
func Encode(c Config) []byte {
	b := make([]byte, RecordSize)
	binary.LittleEndian.PutUint16(b[0:2], c.NotifyRateHz)
	binary.LittleEndian.PutUint16(b[2:4], c.ActiveTimeoutMs)
	b[4] = byte(c.AccelRange)
	b[5] = c.MotionThreshold
	binary.LittleEndian.PutUint16(b[6:8], c.AdvIntervalIdleMs)
	binary.LittleEndian.PutUint16(b[8:10], c.AdvIntervalActiveMs)
	b[10] = byte(c.StreamMode)
	return b
}

// Decode parses a wire record. It does not validate field bounds.
func Decode(b []byte) (Config, error) {
	if len(b) < RecordSize {
		return Config{}, fmt.Errorf("%w: %d bytes", ErrShortRecord, len(b))
	}
	return Config{
		NotifyRateHz:        binary.LittleEndian.Uint16(b[0:2]),
		ActiveTimeoutMs:     binary.LittleEndian.Uint16(b[2:4]),
		AccelRange:          AccelRange(b[4]),
		MotionThreshold:     b[5],
		AdvIntervalIdleMs:   binary.LittleEndian.Uint16(b[6:8]),
		AdvIntervalActiveMs: binary.LittleEndian.Uint16(b[8:10]),
		StreamMode:          StreamMode(b[10]),
	}, nil
}

const fullRecord = 1<<RecordSize - 1

// Assembler collects partial, possibly out-of-order writes of a wire record.
// A record is complete once every one of its bytes has been written since
// the previous complete record; the assembler then starts over.
type Assembler struct {
	mu      sync.Mutex
	buf     [RecordSize]byte
	written uint16 // bit i set once byte i has been received
}

// Write stores p at offset. When the write completes the record it returns
// the decoded configuration and true.
func (a *Assembler) Write(p []byte, offset int) (Config, bool, error) {
	if offset < 0 || offset+len(p) > RecordSize {
		return Config{}, false, fmt.Errorf("%w: offset=%d len=%d", ErrInvalidOffset, offset, len(p))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	copy(a.buf[offset:], p)
	for i := range p {
		a.written |= 1 << (offset + i)
	}
	if a.written != fullRecord {
		return Config{}, false, nil
	}

	a.written = 0
	c, err := Decode(a.buf[:])
	return c, err == nil, err
}

// Pending returns how many distinct bytes of the current record have been
// received.
func (a *Assembler) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for w := a.written; w != 0; w &= w - 1 {
		n++
	}
	return n
}
