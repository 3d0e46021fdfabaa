package protocol

import "github.com/mattjoyce/cinema-bridge/internal/outcome"

// Reply statuses.
const (
	StatusOK             = "ok"
	StatusError          = "error"
	StatusNotImplemented = "not_implemented"
)

// Call is a method invocation received from the front-end.
type Call struct {
	Method string            `json:"method"`
	Args   map[string]string `json:"args"`
}

// Reply answers a Call.
type Reply struct {
	Status string     `json:"status"` // ok | error | not_implemented
	Result string     `json:"result,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the tagged error of a failed call.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ReplyFor maps an outcome onto the caller-visible reply.
func ReplyFor(o outcome.Outcome) Reply {
	if o.OK {
		return Reply{Status: StatusOK, Result: o.Message}
	}
	return Reply{
		Status: StatusError,
		Error:  &ErrorBody{Code: string(o.Kind), Message: o.Detail},
	}
}

// NotImplemented answers a call for a method the bridge does not serve.
func NotImplemented(method string) Reply {
	return Reply{
		Status: StatusNotImplemented,
		Error: &ErrorBody{
			Code:    string(outcome.KindNotImplemented),
			Message: "method not implemented: " + method,
		},
	}
}

// OK reports whether the reply acknowledges success.
func (r Reply) OK() bool {
	return r.Status == StatusOK
}
