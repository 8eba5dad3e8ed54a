// Package console reads requests line by line, dispatches them and writes a
// result for each one.
package console

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"cli-commander/internal/dispatch"
	"cli-commander/internal/protocol"
	"cli-commander/internal/session"
)

const maxRequestSize = 1024 * 1024 // 1 MB

// Console serves requests against a Dispatcher.
type Console struct {
	dispatcher *dispatch.Dispatcher
	renderer   *Renderer
	logger     *log.Logger
	prompt     string
	promptOut  io.Writer
}

// Option configures a Console.
type Option func(*Console)

// WithPrompt writes prompt to w before each request is read.
func WithPrompt(w io.Writer, prompt string) Option {
	return func(c *Console) {
		c.promptOut = w
		c.prompt = prompt
	}
}

// WithLogger sets the logger for diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(c *Console) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Console.
func New(d *dispatch.Dispatcher, r *Renderer, opts ...Option) *Console {
	c := &Console{
		dispatcher: d,
		renderer:   r,
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Serve handles requests from in until end of input, a quit request, or ctx
// is cancelled. It does not close sessions; the caller owns teardown.
func (c *Console) Serve(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	next := make(chan struct{})
	done := make(chan struct{})
	defer close(done)

	// The reader reads one line per token on next, so the prompt is written
	// before each read. It may stay blocked in Scan after Serve returns.
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), maxRequestSize)
		for {
			select {
			case <-next:
			case <-done:
				return
			}
			if !scanner.Scan() {
				readErr <- scanner.Err()
				return
			}
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		c.showPrompt()
		select {
		case next <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}

		var (
			line string
			ok   bool
		)
		select {
		case line, ok = <-lines:
		case <-ctx.Done():
			return ctx.Err()
		}
		if !ok {
			select {
			case err := <-readErr:
				if err != nil {
					return fmt.Errorf("read requests: %w", err)
				}
			default:
			}
			return ctx.Err()
		}

		req, err := c.parse(line)
		if err != nil {
			c.renderer.Emit(protocol.NewErrorResult("", protocol.ErrInvalidRequest, err.Error()))
			continue
		}
		if req == nil {
			continue
		}

		c.renderer.Emit(c.Handle(ctx, req))
		if req.Op == protocol.OpQuit {
			return nil
		}
	}
}

// Execute handles a single request and emits its result. It reports whether
// the request succeeded.
func (c *Console) Execute(ctx context.Context, req *protocol.Request) bool {
	res := c.Handle(ctx, req)
	c.renderer.Emit(res)
	return res.OK
}

func (c *Console) parse(line string) (*protocol.Request, error) {
	if c.renderer.JSON() {
		if len(line) == 0 {
			return nil, nil
		}
		return protocol.DecodeRequest([]byte(line))
	}
	return protocol.ParseLine(line)
}

func (c *Console) showPrompt() {
	if c.promptOut != nil && c.prompt != "" {
		fmt.Fprint(c.promptOut, c.prompt)
	}
}

// Handle runs one request and returns its result.
func (c *Console) Handle(ctx context.Context, req *protocol.Request) *protocol.Result {
	if err := req.Validate(); err != nil {
		return protocol.NewErrorResult(req.Op, protocol.ErrInvalidRequest, err.Error())
	}
	c.logger.Debug("handling request", "op", req.Op, "name", req.Name)

	switch req.Op {
	case protocol.OpOpen:
		info, err := c.dispatcher.Open(ctx, req.Name)
		if err != nil {
			return c.fail(req.Op, err)
		}
		return c.result(req.Op, protocol.OpenPayload{Session: sessionPayload(info)})

	case protocol.OpRun:
		res, err := c.dispatcher.Run(ctx, req.Name, req.Command, req.Wait)
		if err != nil {
			return c.fail(req.Op, err)
		}
		return c.result(req.Op, protocol.RunPayload{
			Name:    res.Name,
			Command: res.Command,
			Opened:  res.Opened,
			Lines:   linePayloads(res.Lines),
		})

	case protocol.OpSend:
		if err := c.dispatcher.Send(req.Name, req.Command); err != nil {
			return c.fail(req.Op, err)
		}
		return c.result(req.Op, protocol.SendPayload{Name: req.Name, Command: req.Command})

	case protocol.OpList:
		infos := c.dispatcher.List()
		sessions := make([]protocol.SessionPayload, 0, len(infos))
		for _, info := range infos {
			sessions = append(sessions, sessionPayload(info))
		}
		return c.result(req.Op, protocol.ListPayload{Sessions: sessions})

	case protocol.OpStatus:
		info, err := c.dispatcher.Status(req.Name)
		if err != nil {
			return c.fail(req.Op, err)
		}
		return c.result(req.Op, sessionPayload(info))

	case protocol.OpLog:
		lines, err := c.dispatcher.Log(req.Name)
		if err != nil {
			return c.fail(req.Op, err)
		}
		return c.result(req.Op, protocol.LogPayload{Name: req.Name, Lines: linePayloads(lines)})

	case protocol.OpClose:
		term, err := c.dispatcher.Close(ctx, req.Name)
		if err != nil {
			return c.fail(req.Op, err)
		}
		return c.result(req.Op, protocol.ClosePayload{
			Name:     term.Name,
			ID:       term.ID,
			PID:      term.PID,
			Forced:   term.Forced,
			ExitCode: term.ExitCode,
		})

	case protocol.OpCloseAll:
		closed, err := c.dispatcher.CloseAll(ctx)
		if err != nil {
			res := c.fail(req.Op, err)
			res.Payload, _ = json.Marshal(protocol.CloseAllPayload{Closed: closed})
			return res
		}
		return c.result(req.Op, protocol.CloseAllPayload{Closed: closed})

	case protocol.OpPrune:
		return c.result(req.Op, protocol.PrunePayload{Pruned: c.dispatcher.Prune()})

	case protocol.OpHelp:
		return c.result(req.Op, protocol.HelpPayload{Usage: protocol.Usage})

	case protocol.OpQuit:
		return c.result(req.Op, struct{}{})
	}

	return protocol.NewErrorResult(req.Op, protocol.ErrInvalidRequest, "unsupported operation")
}

func (c *Console) result(op string, payload interface{}) *protocol.Result {
	res, err := protocol.NewResult(op, payload)
	if err != nil {
		c.logger.Error("build result", "op", op, "error", err)
		return protocol.NewErrorResult(op, protocol.ErrInternal, err.Error())
	}
	return res
}

func (c *Console) fail(op string, err error) *protocol.Result {
	code := ErrorCode(err)
	if code == protocol.ErrInternal {
		c.logger.Error("request failed", "op", op, "error", err)
	}
	return protocol.NewErrorResult(op, code, err.Error())
}

// ErrorCode maps a dispatcher error to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrAlreadyExists):
		return protocol.ErrAlreadyExists
	case errors.Is(err, session.ErrNotFound):
		return protocol.ErrNotFound
	case errors.Is(err, session.ErrSpawnFailure):
		return protocol.ErrSpawnFailed
	case errors.Is(err, session.ErrNotRunning):
		return protocol.ErrNotRunning
	case errors.Is(err, session.ErrWriteFailure):
		return protocol.ErrWriteFailed
	case errors.Is(err, session.ErrTerminationTimeout):
		return protocol.ErrTerminationTimeout
	case errors.Is(err, session.ErrLimitReached):
		return protocol.ErrLimitReached
	case errors.Is(err, session.ErrInvalidName):
		return protocol.ErrInvalidRequest
	default:
		return protocol.ErrInternal
	}
}

func sessionPayload(info session.Info) protocol.SessionPayload {
	p := protocol.SessionPayload{
		Name:      info.Name,
		ID:        info.ID,
		PID:       info.PID,
		State:     string(info.State),
		CreatedAt: info.CreatedAt,
		ExitCode:  info.ExitCode,
		Lines:     info.Lines,
	}
	if !info.ExitedAt.IsZero() {
		exited := info.ExitedAt
		p.ExitedAt = &exited
	}
	return p
}

func linePayloads(lines []session.Line) []protocol.LinePayload {
	out := make([]protocol.LinePayload, 0, len(lines))
	for _, l := range lines {
		out = append(out, linePayload(l))
	}
	return out
}

func linePayload(l session.Line) protocol.LinePayload {
	return protocol.LinePayload{Seq: l.Seq, Time: l.Time, Text: l.Text}
}
