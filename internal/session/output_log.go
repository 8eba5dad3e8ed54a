package session

import (
	"sync"
	"time"
)

const defaultOutputLines = 10000

// OutputLog is a fixed-capacity circular log of output lines. Sequence
// numbers keep increasing after old lines are dropped, so callers can ask
// for everything produced after a mark.
type OutputLog struct {
	mu       sync.RWMutex
	buf      []Line
	capacity int
	pos      int // next write position
	full     bool
	next     uint64
}

// NewOutputLog creates a log holding at most capacity lines. A non-positive
// capacity selects the default.
func NewOutputLog(capacity int) *OutputLog {
	if capacity <= 0 {
		capacity = defaultOutputLines
	}
	return &OutputLog{
		buf:      make([]Line, capacity),
		capacity: capacity,
		next:     1,
	}
}

// Append records a line and returns it with its sequence number.
func (l *OutputLog) Append(at time.Time, text string) Line {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := Line{Seq: l.next, Time: at, Text: text}
	l.next++

	l.buf[l.pos] = line
	l.pos = (l.pos + 1) % l.capacity
	if l.pos == 0 {
		l.full = true
	}
	return line
}

// Next returns the sequence number the next appended line will get.
func (l *OutputLog) Next() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.next
}

// Len returns the number of lines currently held.
func (l *OutputLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.full {
		return l.capacity
	}
	return l.pos
}

// Snapshot returns all held lines in order.
func (l *OutputLog) Snapshot() []Line {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

// Since returns the held lines with a sequence number of at least seq.
func (l *OutputLog) Since(seq uint64) []Line {
	l.mu.RLock()
	defer l.mu.RUnlock()

	lines := l.snapshotLocked()
	if len(lines) == 0 || seq <= lines[0].Seq {
		return lines
	}
	idx := seq - lines[0].Seq
	if idx >= uint64(len(lines)) {
		return []Line{}
	}
	return lines[idx:]
}

func (l *OutputLog) snapshotLocked() []Line {
	if !l.full {
		result := make([]Line, l.pos)
		copy(result, l.buf[:l.pos])
		return result
	}

	result := make([]Line, l.capacity)
	copy(result, l.buf[l.pos:])
	copy(result[l.capacity-l.pos:], l.buf[:l.pos])
	return result
}
