package console

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"cli-commander/internal/protocol"
	"cli-commander/internal/session"
)

// DefaultSource labels lines that do not belong to a session.
const DefaultSource = "CLI_Commander"

const timeLayout = "2006-01-02 15:04:05"

// Line tags.
const (
	TagInfo     = "INFO"
	TagError    = "ERROR"
	TagWarning  = "WARNING"
	TagCommand  = "COMMAND"
	TagResponse = "RESPONSE"
	TagSuccess  = "SUCCESS"
	TagOutput   = "OUTPUT"
)

const noOutput = "(No output)"

var (
	red    = lipgloss.Color("#EF4444")
	amber  = lipgloss.Color("#F59E0B")
	green  = lipgloss.Color("#22C55E")
	teal   = lipgloss.Color("#14B8A6")
	purple = lipgloss.Color("#9D61FF")
	gray   = lipgloss.Color("#9CA3AF")
)

// Renderer writes results either as tagged text lines or as JSON objects,
// one per line. It is safe for concurrent use.
type Renderer struct {
	mu       sync.Mutex
	out      io.Writer
	jsonMode bool
	stamp    lipgloss.Style
	tags     map[string]lipgloss.Style
	now      func() time.Time
}

// NewRenderer creates a Renderer writing to out. Colors are used only when
// out is a terminal.
func NewRenderer(out io.Writer, jsonMode bool) *Renderer {
	re := lipgloss.NewRenderer(out)
	return &Renderer{
		out:      out,
		jsonMode: jsonMode,
		stamp:    re.NewStyle().Foreground(gray),
		tags: map[string]lipgloss.Style{
			TagInfo:     re.NewStyle(),
			TagError:    re.NewStyle().Foreground(red).Bold(true),
			TagWarning:  re.NewStyle().Foreground(amber),
			TagCommand:  re.NewStyle().Foreground(purple).Bold(true),
			TagResponse: re.NewStyle().Foreground(teal),
			TagSuccess:  re.NewStyle().Foreground(green).Bold(true),
			TagOutput:   re.NewStyle().Foreground(gray),
		},
		now: time.Now,
	}
}

// JSON reports whether the renderer emits JSON.
func (r *Renderer) JSON() bool { return r.jsonMode }

// Print writes one tagged text line. Multi-line messages keep the header on
// the first line only.
func (r *Renderer) Print(source, tag, message string) {
	r.printAt(r.now(), source, tag, message)
}

// Printf is Print with formatting.
func (r *Renderer) Printf(source, tag, format string, args ...interface{}) {
	r.Print(source, tag, fmt.Sprintf(format, args...))
}

func (r *Renderer) printAt(at time.Time, source, tag, message string) {
	style, ok := r.tags[tag]
	if !ok {
		style = r.tags[TagInfo]
	}
	header := r.stamp.Render("["+at.Local().Format(timeLayout)+"]") +
		" [" + source + "] " + style.Render("["+tag+"]")

	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "%s %s\n", header, message)
}

// Follow is a session.Sink that prints every output line as it arrives.
func (r *Renderer) Follow(name string, line session.Line) {
	if r.jsonMode {
		res, err := protocol.NewResult(protocol.EventOutput, protocol.OutputPayload{
			Name: name,
			Line: linePayload(line),
		})
		if err == nil {
			r.writeJSON(res)
		}
		return
	}
	r.printAt(line.Time, name, TagOutput, line.Text)
}

// Emit writes a result in the renderer's format.
func (r *Renderer) Emit(res *protocol.Result) {
	if r.jsonMode {
		r.writeJSON(res)
		return
	}
	r.renderText(res)
}

func (r *Renderer) writeJSON(res *protocol.Result) {
	data, err := json.Marshal(res)
	if err != nil {
		data, _ = json.Marshal(protocol.NewErrorResult(res.Op, protocol.ErrInternal, err.Error()))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.out.Write(append(data, '\n'))
}

func (r *Renderer) renderText(res *protocol.Result) {
	if !res.OK {
		var partial protocol.CloseAllPayload
		if res.Op == protocol.OpCloseAll && len(res.Payload) > 0 && res.Decode(&partial) == nil {
			r.Printf(DefaultSource, TagWarning, "Closed %d process(es) before the failure.", partial.Closed)
		}
		msg := "request failed"
		if res.Error != nil {
			msg = fmt.Sprintf("%s (%s)", res.Error.Message, res.Error.Code)
		}
		r.Print(DefaultSource, TagError, msg)
		return
	}

	switch res.Op {
	case protocol.OpOpen:
		var p protocol.OpenPayload
		if r.decode(res, &p) {
			r.Printf(p.Session.Name, TagSuccess, "Created new process entry: %s (PID: %d)", p.Session.Name, p.Session.PID)
		}

	case protocol.OpRun:
		var p protocol.RunPayload
		if r.decode(res, &p) {
			if p.Opened {
				r.Printf(p.Name, TagInfo, "Created new process entry: %s", p.Name)
			}
			r.Print(p.Name, TagCommand, p.Command)
			r.Print(p.Name, TagResponse, joinLines(p.Lines))
		}

	case protocol.OpSend:
		var p protocol.SendPayload
		if r.decode(res, &p) {
			r.Print(p.Name, TagCommand, p.Command)
		}

	case protocol.OpList:
		var p protocol.ListPayload
		if r.decode(res, &p) {
			if len(p.Sessions) == 0 {
				r.Print(DefaultSource, TagInfo, "No processes found.")
			}
			for _, s := range p.Sessions {
				r.Print(DefaultSource, TagInfo, describe(s))
			}
		}

	case protocol.OpStatus:
		var p protocol.SessionPayload
		if r.decode(res, &p) {
			r.Print(DefaultSource, TagInfo, describe(p))
		}

	case protocol.OpLog:
		var p protocol.LogPayload
		if r.decode(res, &p) {
			r.Print(p.Name, TagResponse, joinLines(p.Lines))
		}

	case protocol.OpClose:
		var p protocol.ClosePayload
		if r.decode(res, &p) {
			if p.Forced {
				r.Printf(p.Name, TagWarning, "Shell ignored the close request and was killed (PID: %d)", p.PID)
			}
			r.Printf(DefaultSource, TagSuccess, "Closed process: %s (exit code %d)", p.Name, p.ExitCode)
		}

	case protocol.OpCloseAll:
		var p protocol.CloseAllPayload
		if r.decode(res, &p) {
			r.Printf(DefaultSource, TagSuccess, "All processes closed. (%d)", p.Closed)
		}

	case protocol.OpPrune:
		var p protocol.PrunePayload
		if r.decode(res, &p) {
			r.Printf(DefaultSource, TagInfo, "Pruned %d terminated process(es).", p.Pruned)
		}

	case protocol.OpHelp:
		var p protocol.HelpPayload
		if r.decode(res, &p) {
			r.Print(DefaultSource, TagInfo, "Commands:\n  "+strings.Join(p.Usage, "\n  "))
		}

	case protocol.OpQuit:
		r.Print(DefaultSource, TagInfo, "Closing all processes and exiting.")
	}
}

func (r *Renderer) decode(res *protocol.Result, v interface{}) bool {
	if err := res.Decode(v); err != nil {
		r.Printf(DefaultSource, TagError, "malformed %s result: %v", res.Op, err)
		return false
	}
	return true
}

func describe(s protocol.SessionPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Process '%s': state=%s pid=%d id=%s lines=%d started=%s",
		s.Name, s.State, s.PID, s.ID, s.Lines, s.CreatedAt.Local().Format(timeLayout))
	if s.ExitCode != nil {
		fmt.Fprintf(&b, " exit_code=%d", *s.ExitCode)
	}
	if s.ExitedAt != nil {
		fmt.Fprintf(&b, " exited=%s", s.ExitedAt.Local().Format(timeLayout))
	}
	return b.String()
}

func joinLines(lines []protocol.LinePayload) string {
	if len(lines) == 0 {
		return noOutput
	}
	texts := make([]string, 0, len(lines))
	for _, l := range lines {
		texts = append(texts, l.Text)
	}
	out := strings.TrimSpace(strings.Join(texts, "\n"))
	if out == "" {
		return noOutput
	}
	return out
}
