package session

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"time"
)

const (
	readerBufSize = 64 * 1024
	maxLineSize   = 1024 * 1024 // 1 MB
)

// monitor drains the shell's output into the log until end of stream, then
// reaps the shell and marks the session terminated.
func (s *Session) monitor() {
	output := s.proc.Output()
	s.readLines(output)

	code, err := s.proc.Wait()
	if err != nil {
		s.logger.Warn("wait for shell failed", "pid", s.pid, "error", err)
	}

	s.stdin.Close()
	output.Close()
	s.finish(code)
}

// readLines records every line read from r. Lines longer than maxLineSize
// are recorded in maxLineSize chunks.
func (s *Session) readLines(r io.Reader) {
	reader := bufio.NewReaderSize(r, readerBufSize)
	var pending []byte
	split := false

	for {
		frag, err := reader.ReadSlice('\n')
		pending = append(pending, frag...)

		if errors.Is(err, bufio.ErrBufferFull) {
			for len(pending) > maxLineSize {
				if !split {
					s.logger.Warn("output line exceeds limit, splitting", "limit", maxLineSize)
					split = true
				}
				s.record(pending[:maxLineSize])
				pending = append(pending[:0], pending[maxLineSize:]...)
			}
			continue
		}

		if err == nil {
			s.record(bytes.TrimSuffix(pending, []byte{'\n'}))
			pending = pending[:0]
			split = false
			continue
		}

		if len(pending) > 0 {
			s.record(pending)
		}
		if err != io.EOF && !isClosed(err) {
			s.logger.Warn("output reader stopped", "error", err)
		}
		return
	}
}

func (s *Session) record(text []byte) {
	line := s.out.Append(time.Now().UTC(), string(bytes.TrimRight(text, "\r")))
	if s.sink != nil {
		s.sink(s.name, line)
	}
}

func isClosed(err error) bool {
	return errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
