package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Request is one parsed console request.
type Request struct {
	Op      string        `json:"op"`
	Name    string        `json:"name,omitempty"`
	Command string        `json:"command,omitempty"`
	Wait    time.Duration `json:"-"`
}

// Result is the envelope for every response the console emits.
type Result struct {
	Op        string          `json:"op"`
	OK        bool            `json:"ok"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     *ErrorPayload   `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewResult creates a successful result with the current timestamp.
func NewResult(op string, payload interface{}) (*Result, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Result{
		Op:        op,
		OK:        true,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewErrorResult creates a failed result.
func NewErrorResult(op, code, message string) *Result {
	return &Result{
		Op:        op,
		Error:     &ErrorPayload{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
	}
}

// Decode unmarshals the payload into v.
func (r *Result) Decode(v interface{}) error {
	if len(r.Payload) == 0 {
		return fmt.Errorf("result %s has no payload", r.Op)
	}
	return json.Unmarshal(r.Payload, v)
}

// Operations.
const (
	OpOpen     = "open"
	OpRun      = "run"
	OpSend     = "send"
	OpList     = "list"
	OpStatus   = "status"
	OpLog      = "log"
	OpClose    = "close"
	OpCloseAll = "close-all"
	OpPrune    = "prune"
	OpHelp     = "help"
	OpQuit     = "quit"
)

// EventOutput tags results carrying one live output line in follow mode.
const EventOutput = "output"

// Error codes.
const (
	ErrAlreadyExists      = "ALREADY_EXISTS"
	ErrNotFound           = "NOT_FOUND"
	ErrSpawnFailed        = "SPAWN_FAILED"
	ErrNotRunning         = "NOT_RUNNING"
	ErrWriteFailed        = "WRITE_FAILED"
	ErrTerminationTimeout = "TERMINATION_TIMEOUT"
	ErrLimitReached       = "LIMIT_REACHED"
	ErrInvalidRequest     = "INVALID_REQUEST"
	ErrInternal           = "INTERNAL"
)

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SessionPayload struct {
	Name      string     `json:"name"`
	ID        string     `json:"id"`
	PID       int        `json:"pid"`
	State     string     `json:"state"`
	CreatedAt time.Time  `json:"createdAt"`
	ExitedAt  *time.Time `json:"exitedAt,omitempty"`
	ExitCode  *int       `json:"exitCode,omitempty"`
	Lines     int        `json:"lines"`
}

type LinePayload struct {
	Seq  uint64    `json:"seq"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

type OpenPayload struct {
	Session SessionPayload `json:"session"`
}

type RunPayload struct {
	Name    string        `json:"name"`
	Command string        `json:"command"`
	Opened  bool          `json:"opened"`
	Lines   []LinePayload `json:"lines"`
}

type SendPayload struct {
	Name    string `json:"name"`
	Command string `json:"command"`
}

type ListPayload struct {
	Sessions []SessionPayload `json:"sessions"`
}

type LogPayload struct {
	Name  string        `json:"name"`
	Lines []LinePayload `json:"lines"`
}

type ClosePayload struct {
	Name     string `json:"name"`
	ID       string `json:"id"`
	PID      int    `json:"pid"`
	Forced   bool   `json:"forced"`
	ExitCode int    `json:"exitCode"`
}

type CloseAllPayload struct {
	Closed int `json:"closed"`
}

type PrunePayload struct {
	Pruned int `json:"pruned"`
}

type OutputPayload struct {
	Name string      `json:"name"`
	Line LinePayload `json:"line"`
}

type HelpPayload struct {
	Usage []string `json:"usage"`
}

// Usage lists the text request grammar, one line per operation.
var Usage = []string{
	"open <name>                       start a shell named <name> (alias: new)",
	"run [-w <wait>] <name> <command>  send a command and print its response, opening <name> if needed",
	"send <name> <command>             send a command without waiting",
	"list                              list sessions",
	"status <name>                     show one session",
	"log <name>                        print the retained output of a session",
	"close <name>                      terminate a session",
	"close-all                         terminate every session (alias: close_all)",
	"prune                             drop sessions whose shell has exited",
	"help                              show this help",
	"quit                              close every session and exit (alias: exit)",
}
