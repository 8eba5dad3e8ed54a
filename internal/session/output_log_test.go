package session

import (
	"fmt"
	"testing"
	"time"
)

func fill(l *OutputLog, n int) {
	for i := 0; i < n; i++ {
		l.Append(time.Now().UTC(), fmt.Sprintf("line-%d", i))
	}
}

func TestOutputLog_EmptyRead(t *testing.T) {
	l := NewOutputLog(10)
	if lines := l.Snapshot(); len(lines) != 0 {
		t.Errorf("expected empty log, got %d lines", len(lines))
	}
	if l.Next() != 1 {
		t.Errorf("expected first sequence 1, got %d", l.Next())
	}
}

func TestOutputLog_PartialFill(t *testing.T) {
	l := NewOutputLog(10)
	fill(l, 5)

	lines := l.Snapshot()
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d", len(lines))
	}
	for i, line := range lines {
		expected := fmt.Sprintf("line-%d", i)
		if line.Text != expected {
			t.Errorf("line %d: expected %s, got %s", i, expected, line.Text)
		}
		if line.Seq != uint64(i+1) {
			t.Errorf("line %d: expected seq %d, got %d", i, i+1, line.Seq)
		}
	}
}

func TestOutputLog_Overflow(t *testing.T) {
	l := NewOutputLog(5)
	fill(l, 8)

	lines := l.Snapshot()
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d", len(lines))
	}

	// Should hold lines 3..7 (oldest dropped), sequence keeps counting.
	for i, line := range lines {
		expected := fmt.Sprintf("line-%d", i+3)
		if line.Text != expected {
			t.Errorf("line %d: expected %s, got %s", i, expected, line.Text)
		}
	}
	if lines[0].Seq != 4 || lines[4].Seq != 8 {
		t.Errorf("unexpected sequence range %d..%d", lines[0].Seq, lines[4].Seq)
	}
	if l.Len() != 5 {
		t.Errorf("expected len 5, got %d", l.Len())
	}
}

func TestOutputLog_ExactCapacity(t *testing.T) {
	l := NewOutputLog(3)
	fill(l, 3)

	lines := l.Snapshot()
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	for i, line := range lines {
		expected := fmt.Sprintf("line-%d", i)
		if line.Text != expected {
			t.Errorf("line %d: expected %s, got %s", i, expected, line.Text)
		}
	}
}

func TestOutputLog_Since(t *testing.T) {
	l := NewOutputLog(4)
	fill(l, 6) // holds seq 3..6

	tests := []struct {
		name  string
		seq   uint64
		texts []string
	}{
		{"before oldest", 1, []string{"line-2", "line-3", "line-4", "line-5"}},
		{"middle", 5, []string{"line-4", "line-5"}},
		{"last", 6, []string{"line-5"}},
		{"future", 7, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := l.Since(tt.seq)
			if lines == nil {
				t.Fatal("expected non-nil slice")
			}
			if len(lines) != len(tt.texts) {
				t.Fatalf("expected %d lines, got %d", len(tt.texts), len(lines))
			}
			for i, line := range lines {
				if line.Text != tt.texts[i] {
					t.Errorf("line %d: expected %s, got %s", i, tt.texts[i], line.Text)
				}
			}
		})
	}
}

func TestOutputLog_DefaultCapacity(t *testing.T) {
	l := NewOutputLog(0)
	if l.capacity != defaultOutputLines {
		t.Errorf("expected capacity %d, got %d", defaultOutputLines, l.capacity)
	}
}
