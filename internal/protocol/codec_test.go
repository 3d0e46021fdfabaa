package protocol

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mattjoyce/cinema-bridge/internal/outcome"
)

func TestDecodeCall(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		checkFn func(t *testing.T, call *Call)
	}{
		{
			name:  "process audio call",
			input: `{"method":"processAudio","args":{"inputPath":"/sdcard/in.wav","profile":"Dolby"}}`,
			checkFn: func(t *testing.T, call *Call) {
				if call.Method != "processAudio" {
					t.Errorf("method = %q", call.Method)
				}
				if call.Args["inputPath"] != "/sdcard/in.wav" {
					t.Errorf("inputPath = %q", call.Args["inputPath"])
				}
			},
		},
		{
			name:  "missing args become empty map",
			input: `{"method":"processAudio"}`,
			checkFn: func(t *testing.T, call *Call) {
				if call.Args == nil {
					t.Error("args should not be nil")
				}
			},
		},
		{
			name:    "missing method",
			input:   `{"args":{}}`,
			wantErr: true,
		},
		{
			name:    "unknown field",
			input:   `{"method":"processAudio","args":{},"strategy":"direct"}`,
			wantErr: true,
		},
		{
			name:    "non-string arg",
			input:   `{"method":"processAudio","args":{"inputPath":42}}`,
			wantErr: true,
		},
		{
			name:    "not json",
			input:   `processAudio /sdcard/in.wav`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, err := DecodeCall(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeCall() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, call)
			}
		})
	}
}

func TestEncodeReply(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeReply(&buf, ReplyFor(outcome.Success("processing started"))); err != nil {
		t.Fatalf("EncodeReply: %v", err)
	}
	if got := buf.String(); got != `{"status":"ok","result":"processing started"}`+"\n" {
		t.Errorf("unexpected output: %s", got)
	}

	buf.Reset()
	if err := EncodeReply(&buf, ReplyFor(outcome.Failure(outcome.KindDispatch, "host not found: com.termux"))); err != nil {
		t.Fatalf("EncodeReply: %v", err)
	}
	if !strings.Contains(buf.String(), `"code":"DispatchError"`) {
		t.Errorf("missing error code: %s", buf.String())
	}

	if err := EncodeReply(&buf, Reply{Status: StatusError}); err == nil {
		t.Error("expected error for error reply without body")
	}
	if err := EncodeReply(&buf, Reply{Status: "maybe"}); err == nil {
		t.Error("expected error for invalid status")
	}
}

func TestReplyRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := NotImplemented("runEngineV2")
	if err := EncodeReply(&buf, want); err != nil {
		t.Fatalf("EncodeReply: %v", err)
	}

	got, err := DecodeReply(&buf)
	if err != nil {
		t.Fatalf("DecodeReply: %v", err)
	}
	if got.Status != StatusNotImplemented || got.Error == nil || got.Error.Code != "NotImplemented" {
		t.Errorf("unexpected reply: %+v", got)
	}
	if got.OK() {
		t.Error("not_implemented reply must not be OK")
	}

	if _, err := DecodeReply(strings.NewReader(`{}`)); err == nil {
		t.Error("expected error for reply without status")
	}
}
