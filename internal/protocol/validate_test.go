package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewResult(t *testing.T) {
	payload := ClosePayload{
		Name:   "test",
		ID:     "test-id",
		Forced: true,
	}

	res, err := NewResult(OpClose, payload)
	if err != nil {
		t.Fatalf("NewResult failed: %v", err)
	}
	if res.Op != OpClose {
		t.Errorf("expected op %s, got %s", OpClose, res.Op)
	}
	if !res.OK {
		t.Error("expected ok result")
	}
	if res.Timestamp.IsZero() {
		t.Error("expected non-zero timestamp")
	}

	var p ClosePayload
	if err := res.Decode(&p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.ID != "test-id" || !p.Forced {
		t.Errorf("unexpected payload %+v", p)
	}
}

func TestNewErrorResult(t *testing.T) {
	res := NewErrorResult(OpClose, ErrNotFound, "session not found")

	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["ok"] != false {
		t.Errorf("expected ok=false, got %v", decoded["ok"])
	}
	if _, ok := decoded["payload"]; ok {
		t.Error("expected no payload on error result")
	}
	errObj, ok := decoded["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object, got %v", decoded["error"])
	}
	if errObj["code"] != ErrNotFound {
		t.Errorf("expected code %s, got %v", ErrNotFound, errObj["code"])
	}
}

func TestParseLine_Valid(t *testing.T) {
	tests := []struct {
		line string
		want Request
	}{
		{"open alpha", Request{Op: OpOpen, Name: "alpha"}},
		{"new alpha", Request{Op: OpOpen, Name: "alpha"}},
		{"  OPEN   alpha  ", Request{Op: OpOpen, Name: "alpha"}},
		{"run alpha echo hi", Request{Op: OpRun, Name: "alpha", Command: "echo hi"}},
		{"run alpha echo  'two  spaces'", Request{Op: OpRun, Name: "alpha", Command: "echo  'two  spaces'"}},
		{"run -w 500ms alpha ls", Request{Op: OpRun, Name: "alpha", Command: "ls", Wait: 500 * time.Millisecond}},
		{"run --wait 1.5 alpha ls", Request{Op: OpRun, Name: "alpha", Command: "ls", Wait: 1500 * time.Millisecond}},
		{"send alpha x = 1", Request{Op: OpSend, Name: "alpha", Command: "x = 1"}},
		{"list", Request{Op: OpList}},
		{"status alpha", Request{Op: OpStatus, Name: "alpha"}},
		{"log alpha", Request{Op: OpLog, Name: "alpha"}},
		{"close alpha", Request{Op: OpClose, Name: "alpha"}},
		{"close-all", Request{Op: OpCloseAll}},
		{"close_all", Request{Op: OpCloseAll}},
		{"prune", Request{Op: OpPrune}},
		{"help", Request{Op: OpHelp}},
		{"quit", Request{Op: OpQuit}},
		{"exit", Request{Op: OpQuit}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			req, err := ParseLine(tt.line)
			if err != nil {
				t.Fatalf("expected valid request, got error: %v", err)
			}
			if req == nil {
				t.Fatal("expected request, got nil")
			}
			if *req != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, *req)
			}
		})
	}
}

func TestParseLine_BlankAndComment(t *testing.T) {
	for _, line := range []string{"", "   ", "# a comment"} {
		req, err := ParseLine(line)
		if err != nil || req != nil {
			t.Errorf("line %q: expected nil request and error, got %v, %v", line, req, err)
		}
	}
}

func TestParseLine_Invalid(t *testing.T) {
	lines := []string{
		"frobnicate",
		"open",
		"open a b",
		"run alpha",
		"run",
		"run -w",
		"run -w soon alpha ls",
		"run -w -1s alpha ls",
		"send alpha",
		"close",
		"list everything",
		"close-all now",
	}
	for _, line := range lines {
		if _, err := ParseLine(line); err == nil {
			t.Errorf("line %q: expected error", line)
		}
	}
}

func TestDecodeRequest_Valid(t *testing.T) {
	tests := []struct {
		raw  string
		want Request
	}{
		{`{"op":"run","name":"x","command":"echo hi","wait":"1s"}`, Request{Op: OpRun, Name: "x", Command: "echo hi", Wait: time.Second}},
		{`{"op":"run","name":"x","command":"echo hi","wait":0.25}`, Request{Op: OpRun, Name: "x", Command: "echo hi", Wait: 250 * time.Millisecond}},
		{`{"op":"run","name":"x","command":"echo hi","wait":null}`, Request{Op: OpRun, Name: "x", Command: "echo hi"}},
		{`{"op":"new","name":"x"}`, Request{Op: OpOpen, Name: "x"}},
		{`{"op":"close_all"}`, Request{Op: OpCloseAll}},
		{`{"op":"list"}`, Request{Op: OpList}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			req, err := DecodeRequest([]byte(tt.raw))
			if err != nil {
				t.Fatalf("expected valid request, got error: %v", err)
			}
			if *req != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, *req)
			}
		})
	}
}

func TestDecodeRequest_InvalidJSON(t *testing.T) {
	if _, err := DecodeRequest([]byte("not json")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestDecodeRequest_MissingOp(t *testing.T) {
	if _, err := DecodeRequest([]byte(`{"name":"x"}`)); err == nil {
		t.Fatal("expected error for missing op")
	}
}

func TestDecodeRequest_UnknownOp(t *testing.T) {
	if _, err := DecodeRequest([]byte(`{"op":"unknown.action"}`)); err == nil {
		t.Fatal("expected error for unknown op")
	}
}

func TestDecodeRequest_MissingFields(t *testing.T) {
	raws := []string{
		`{"op":"open"}`,
		`{"op":"run","name":"x"}`,
		`{"op":"send","command":"ls"}`,
		`{"op":"run","name":"x","command":"ls","wait":"-2s"}`,
		`{"op":"run","name":"x","command":"ls","wait":true}`,
		`{"op":"close","name":"a b"}`,
	}
	for _, raw := range raws {
		if _, err := DecodeRequest([]byte(raw)); err == nil {
			t.Errorf("%s: expected error", raw)
		}
	}
}

func TestParseWait(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"200ms", 200 * time.Millisecond},
		{"2s", 2 * time.Second},
		{"1.5", 1500 * time.Millisecond},
		{"0", 0},
	}
	for _, tt := range tests {
		got, err := ParseWait(tt.in)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: expected %v, got %v", tt.in, tt.want, got)
		}
	}
}
