package protocol

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// DecodeCall reads and validates a Call from r. Unknown fields are rejected.
func DecodeCall(r io.Reader) (*Call, error) {
	var call Call

	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields() // Strict parsing

	if err := decoder.Decode(&call); err != nil {
		return nil, fmt.Errorf("failed to decode call: %w", err)
	}

	if strings.TrimSpace(call.Method) == "" {
		return nil, fmt.Errorf("call missing required field: method")
	}
	if call.Args == nil {
		call.Args = map[string]string{}
	}

	return &call, nil
}

// EncodeReply serializes a Reply to JSON and writes it to w.
func EncodeReply(w io.Writer, reply Reply) error {
	switch reply.Status {
	case StatusOK:
	case StatusError, StatusNotImplemented:
		if reply.Error == nil {
			return fmt.Errorf("reply has status=%s but no error body", reply.Status)
		}
	default:
		return fmt.Errorf("invalid reply status: %q", reply.Status)
	}

	if err := json.NewEncoder(w).Encode(reply); err != nil {
		return fmt.Errorf("failed to encode reply: %w", err)
	}
	return nil
}

// DecodeReply reads a Reply from r.
func DecodeReply(r io.Reader) (*Reply, error) {
	var reply Reply
	if err := json.NewDecoder(r).Decode(&reply); err != nil {
		return nil, fmt.Errorf("failed to decode reply: %w", err)
	}
	if reply.Status == "" {
		return nil, fmt.Errorf("reply missing required field: status")
	}
	return &reply, nil
}
