package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// aliases maps every accepted spelling to its operation.
var aliases = map[string]string{
	OpOpen:      OpOpen,
	"new":       OpOpen,
	OpRun:       OpRun,
	OpSend:      OpSend,
	OpList:      OpList,
	OpStatus:    OpStatus,
	OpLog:       OpLog,
	OpClose:     OpClose,
	OpCloseAll:  OpCloseAll,
	"close_all": OpCloseAll,
	OpPrune:     OpPrune,
	OpHelp:      OpHelp,
	OpQuit:      OpQuit,
	"exit":      OpQuit,
}

// ParseLine parses one text request. Blank lines and lines starting with '#'
// yield a nil request and no error.
func ParseLine(line string) (*Request, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, nil
	}

	word, rest := cut(line)
	op, ok := aliases[strings.ToLower(word)]
	if !ok {
		return nil, fmt.Errorf("unknown operation: %s", word)
	}
	req := &Request{Op: op}

	switch op {
	case OpOpen, OpStatus, OpLog, OpClose:
		req.Name, rest = cut(rest)
		if rest != "" {
			return nil, fmt.Errorf("%s takes a single session name", op)
		}

	case OpRun, OpSend:
		word, after := cut(rest)
		if op == OpRun && (word == "-w" || word == "--wait") {
			var raw string
			raw, rest = cut(after)
			if raw == "" {
				return nil, fmt.Errorf("missing value for %s", word)
			}
			wait, err := ParseWait(raw)
			if err != nil {
				return nil, err
			}
			req.Wait = wait
		}
		req.Name, req.Command = cut(rest)

	default:
		if rest != "" {
			return nil, fmt.Errorf("%s takes no arguments", op)
		}
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// wireRequest is the JSON form of a Request; wait may be a duration string
// or a number of seconds.
type wireRequest struct {
	Op      string          `json:"op"`
	Name    string          `json:"name"`
	Command string          `json:"command"`
	Wait    json.RawMessage `json:"wait"`
}

// DecodeRequest parses one JSON request object.
func DecodeRequest(raw []byte) (*Request, error) {
	var w wireRequest
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if w.Op == "" {
		return nil, fmt.Errorf("missing 'op' field")
	}

	op, ok := aliases[strings.ToLower(w.Op)]
	if !ok {
		return nil, fmt.Errorf("unknown operation: %s", w.Op)
	}
	req := &Request{Op: op, Name: w.Name, Command: w.Command}

	if len(w.Wait) > 0 && string(w.Wait) != "null" {
		var s string
		if err := json.Unmarshal(w.Wait, &s); err != nil {
			s = string(w.Wait)
		}
		wait, err := ParseWait(s)
		if err != nil {
			return nil, err
		}
		req.Wait = wait
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// Validate checks the fields required by the request's operation.
func (r *Request) Validate() error {
	if canonical, ok := aliases[r.Op]; !ok || canonical != r.Op {
		return fmt.Errorf("unknown operation: %s", r.Op)
	}

	switch r.Op {
	case OpOpen, OpRun, OpSend, OpStatus, OpLog, OpClose:
		if r.Name == "" {
			return fmt.Errorf("missing required field 'name' for %s", r.Op)
		}
		if strings.IndexFunc(r.Name, unicode.IsSpace) >= 0 {
			return fmt.Errorf("session name %q contains whitespace", r.Name)
		}
	}

	switch r.Op {
	case OpRun, OpSend:
		if strings.TrimSpace(r.Command) == "" {
			return fmt.Errorf("missing required field 'command' for %s", r.Op)
		}
	}

	if r.Wait < 0 {
		return fmt.Errorf("wait must not be negative")
	}
	return nil
}

// ParseWait accepts a Go duration ("500ms") or a number of seconds ("1.5").
func ParseWait(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	d, err := time.ParseDuration(s)
	if err != nil {
		secs, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0, fmt.Errorf("invalid wait %q: want a duration like 500ms or seconds like 1.5", s)
		}
		d = time.Duration(secs * float64(time.Second))
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid wait %q: must not be negative", s)
	}
	return d, nil
}

// cut splits off the first whitespace-separated word. The remainder keeps its
// inner spacing.
func cut(s string) (word, rest string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}
