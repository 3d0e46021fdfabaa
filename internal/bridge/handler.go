// Package bridge is the entry point of the command dispatch bridge: it
// validates a call's arguments, builds the command, dispatches it, and
// reports a tagged outcome. Nothing escapes Handle as a panic or an error.
package bridge

//go:generate mockgen -destination=mocks/mock_dispatcher.go -package=mocks github.com/mattjoyce/cinema-bridge/internal/bridge Dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/mattjoyce/cinema-bridge/internal/command"
	"github.com/mattjoyce/cinema-bridge/internal/dispatch"
	"github.com/mattjoyce/cinema-bridge/internal/journal"
	"github.com/mattjoyce/cinema-bridge/internal/log"
	"github.com/mattjoyce/cinema-bridge/internal/outcome"
	"github.com/mattjoyce/cinema-bridge/internal/protocol"
	"github.com/mattjoyce/cinema-bridge/internal/request"
)

// Dispatcher hands a built command to the execution host.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd command.Command, s dispatch.Strategy) outcome.Outcome
}

// Recorder receives every reported outcome.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Recorders fans one entry out to several recorders. Every recorder is
// called; their errors are joined.
type Recorders []Recorder

func (rs Recorders) Record(ctx context.Context, e journal.Entry) error {
	var errs []error
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Phase is a step of the per-call state machine.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseValidating  Phase = "validating"
	PhaseBuilding    Phase = "building"
	PhaseDispatching Phase = "dispatching"
	PhaseReported    Phase = "reported"
)

// Options configures a Handler.
type Options struct {
	// Method is the method name served, e.g. "processAudio".
	Method string
	// Aliases are additional method names routed to Method.
	Aliases  []string
	Target   command.Target
	Strategy dispatch.Strategy
	Domain   request.Domain
	Policy   request.Policy
	// Recorder is optional.
	Recorder Recorder
}

// Handler serves one method of a channel.
type Handler struct {
	opts       Options
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewHandler validates opts and creates a Handler.
func NewHandler(opts Options, d Dispatcher) (*Handler, error) {
	if strings.TrimSpace(opts.Method) == "" {
		return nil, fmt.Errorf("method name is empty")
	}
	if d == nil {
		return nil, fmt.Errorf("dispatcher is nil")
	}
	if opts.Policy == "" {
		opts.Policy = request.PolicyReject
	}
	if !opts.Policy.Valid() {
		return nil, fmt.Errorf("invalid enum policy %q", opts.Policy)
	}
	if _, err := dispatch.ParseKind(string(opts.Strategy.Kind)); err != nil {
		return nil, err
	}
	if opts.Domain.Profile.Name == "" {
		opts.Domain = request.DefaultDomain()
	}
	return &Handler{
		opts:       opts,
		dispatcher: d,
		logger:     log.WithComponent("bridge"),
	}, nil
}

// Method returns the method name the handler serves.
func (h *Handler) Method() string {
	return h.opts.Method
}

// Serves reports whether method is routed to this handler.
func (h *Handler) Serves(method string) bool {
	return method == h.opts.Method || slices.Contains(h.opts.Aliases, method)
}

// HandleCall routes a call by method name. Calls for other methods are
// answered with a not-implemented reply and have no side effects.
func (h *Handler) HandleCall(ctx context.Context, call protocol.Call) protocol.Reply {
	if !h.Serves(call.Method) {
		h.logger.Warn("method not implemented", "method", call.Method)
		return protocol.NotImplemented(call.Method)
	}
	return protocol.ReplyFor(h.handle(ctx, call.Method, call.Args))
}

// Handle validates args, builds the command, dispatches it, and reports the
// outcome.
func (h *Handler) Handle(ctx context.Context, args map[string]string) outcome.Outcome {
	return h.handle(ctx, h.opts.Method, args)
}

// callState is the per-call scratch space. It never outlives handle.
type callState struct {
	id     string
	method string
	phase  Phase
	req    request.ProcessingRequest
	cmd    command.Command
	logger *slog.Logger
}

func (c *callState) enter(p Phase) {
	c.phase = p
	c.logger.Debug("phase", "phase", string(p))
}

func (h *Handler) handle(ctx context.Context, method string, args map[string]string) outcome.Outcome {
	c := &callState{
		id:     uuid.NewString(),
		method: method,
		phase:  PhaseIdle,
	}
	c.logger = log.WithCall(c.id).With("method", method, "strategy", string(h.opts.Strategy.Kind))

	out := h.process(ctx, c, args)
	c.enter(PhaseReported)
	h.report(ctx, c, out)
	return out
}

func (h *Handler) process(ctx context.Context, c *callState, args map[string]string) (out outcome.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("call panicked", "phase", string(c.phase), "panic", r)
			out = outcome.Failure(outcome.KindDispatch, fmt.Sprintf("internal fault while %s: %v", c.phase, r))
		}
	}()

	c.enter(PhaseValidating)
	req, coerced, err := request.Parse(args, h.opts.Domain, h.opts.Policy)
	if err != nil {
		return outcome.FromError(err)
	}
	for _, co := range coerced {
		c.logger.Warn("coerced out-of-domain value", "field", co.Field, "raw", co.Raw, "used", co.Used)
	}
	c.req = req

	c.enter(PhaseBuilding)
	cmd, err := command.Build(req, h.opts.Target)
	if err != nil {
		return outcome.FromError(err)
	}
	c.cmd = cmd

	c.enter(PhaseDispatching)
	return h.dispatcher.Dispatch(ctx, cmd, h.opts.Strategy)
}

func (h *Handler) report(ctx context.Context, c *callState, out outcome.Outcome) {
	if out.OK {
		c.logger.Info("call reported", "outcome", out.String())
	} else {
		c.logger.Warn("call reported", "kind", string(out.Kind), "detail", out.Detail)
	}

	if h.opts.Recorder == nil {
		return
	}
	entry := journal.Entry{
		CallID:    c.id,
		Method:    c.method,
		Strategy:  string(h.opts.Strategy.Kind),
		InputPath: c.req.InputPath,
		Profile:   string(c.req.Profile),
		Channels:  string(c.req.ChannelLayout),
		Intensity: string(c.req.Intensity),
		OK:        out.OK,
		Kind:      string(out.Kind),
		Detail:    out.Detail,
		Message:   out.Message,
	}
	if len(c.cmd.Argv) > 0 {
		entry.Fingerprint = c.cmd.Fingerprint()
	}
	h.record(ctx, c, entry)
}

// record stores entry. A failing or panicking recorder never changes the
// outcome already decided for the call.
func (h *Handler) record(ctx context.Context, c *callState, entry journal.Entry) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("recorder panicked", "panic", fmt.Sprint(r))
		}
	}()
	if err := h.opts.Recorder.Record(ctx, entry); err != nil {
		c.logger.Error("failed to record outcome", "error", err)
	}
}
