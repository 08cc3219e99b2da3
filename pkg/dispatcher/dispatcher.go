// Package dispatcher validates, serializes and sends registered Ceph commands
// and turns the monitor's reply into a Result.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/cephapi/pkg/commsutil"
	"github.com/morezero/cephapi/pkg/db"
	"github.com/morezero/cephapi/pkg/events"
	"github.com/morezero/cephapi/pkg/registry"
	"github.com/morezero/cephapi/pkg/schema"
	"github.com/morezero/cephapi/pkg/transport"
)

const logPrefix = "dispatcher:dispatcher"

// AuditRecorder stores one row per dispatch. *db.Repository satisfies it.
type AuditRecorder interface {
	RecordDispatch(ctx context.Context, rec *db.AuditRecord) error
}

// Failure is the monitor's own rejection of a command: a negative errno and its text.
type Failure struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Result is the outcome of a delivered command. Exactly one of Payload (possibly
// nil for commands with empty output) or Failure is meaningful.
type Result struct {
	Payload interface{}     `json:"payload"`
	Raw     json.RawMessage `json:"-"`
	// Message is the monitor's status line (outs).
	Message string   `json:"message,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
}

// OK reports whether the monitor accepted the command.
func (r *Result) OK() bool { return r.Failure == nil }

// Params holds the collaborators of a Dispatcher. Publisher and Audit are optional.
type Params struct {
	Registry  *registry.Registry
	Admin     transport.AdminInterface
	Publisher events.EventPublisher
	Audit     AuditRecorder
}

// Dispatcher sends registered commands through an AdminInterface. It holds no
// mutable state and is safe for concurrent use when Admin is.
type Dispatcher struct {
	registry  *registry.Registry
	admin     transport.AdminInterface
	publisher events.EventPublisher
	audit     AuditRecorder
}

// New creates a Dispatcher. The registry should be sealed before it is shared.
func New(p Params) *Dispatcher {
	pub := p.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}
	return &Dispatcher{
		registry:  p.Registry,
		admin:     p.Admin,
		publisher: pub,
		audit:     p.Audit,
	}
}

// Registry returns the registry commands are looked up in.
func (d *Dispatcher) Registry() *registry.Registry {
	return d.registry
}

// Dispatch runs the named command with args. Errors are *registry.CommandError;
// a command the monitor rejected is a Result with Failure set and a nil error.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]interface{}) (*Result, error) {
	return d.run(ctx, "", name, args, nil)
}

// DispatchInput is Dispatch with an input buffer, for commands such as
// "osd setcrushmap" that read their payload from inbuf.
func (d *Dispatcher) DispatchInput(ctx context.Context, name string, args map[string]interface{}, inbuf []byte) (*Result, error) {
	return d.run(ctx, "", name, args, inbuf)
}

func (d *Dispatcher) run(ctx context.Context, requestID, name string, args map[string]interface{}, inbuf []byte) (*Result, error) {
	start := time.Now()
	if requestID == "" {
		requestID = uuid.NewString()
	}

	s, err := d.registry.Lookup(name)
	if err != nil {
		d.record(ctx, requestID, name, "", nil, nil, err, start)
		return nil, err
	}

	validated, argErr := s.ValidateArgs(args)
	if argErr != nil {
		err := registry.ErrInvalidArgument(argErr.Param, argErr.Reason)
		d.record(ctx, requestID, name, s.CommandPrefix(), args, nil, err, start)
		return nil, err
	}

	cmd, err := BuildCommand(s, validated)
	if err != nil {
		cerr := registry.ErrInvalidArgument("", err.Error())
		d.record(ctx, requestID, name, s.CommandPrefix(), validated, nil, cerr, start)
		return nil, cerr
	}
	slog.Debug(fmt.Sprintf("%s - id=%s command=%s cmd=%s", logPrefix, requestID, name, cmd))

	reply, err := d.admin.MonCommand(ctx, cmd, inbuf)
	if err != nil {
		cerr := registry.ErrTransport(err)
		d.record(ctx, requestID, name, s.CommandPrefix(), validated, nil, cerr, start)
		return nil, cerr
	}

	res, err := parseReply(reply)
	if err != nil {
		d.record(ctx, requestID, name, s.CommandPrefix(), validated, nil, err, start)
		return nil, err
	}
	d.record(ctx, requestID, name, s.CommandPrefix(), validated, res, nil, start)
	return res, nil
}

// BuildCommand serializes validated args into the monitor's JSON command form:
// {"prefix": <prefix>, <args>..., "format": "json"}.
func BuildCommand(s *schema.CommandSchema, args map[string]interface{}) ([]byte, error) {
	cmd := make(map[string]interface{}, len(args)+2)
	for k, v := range args {
		cmd[k] = v
	}
	cmd["prefix"] = s.CommandPrefix()
	cmd["format"] = "json"
	return commsutil.EncodePayload(cmd)
}

func parseReply(reply *transport.Reply) (*Result, error) {
	if reply == nil {
		return nil, registry.ErrTransport(fmt.Errorf("no reply"))
	}
	if !reply.OK() {
		msg := reply.Outs
		if msg == "" {
			msg = transport.Strerror(reply.Status)
		}
		return &Result{
			Message: reply.Outs,
			Failure: &Failure{Code: reply.Status, Message: msg},
		}, nil
	}

	res := &Result{Message: reply.Outs}
	raw := bytes.TrimSpace(reply.Outbuf)
	if len(raw) == 0 {
		return res, nil
	}
	if err := commsutil.DecodePayload(raw, &res.Payload); err != nil {
		return nil, registry.ErrMalformedResponse(err)
	}
	res.Raw = json.RawMessage(raw)
	return res, nil
}

// record publishes the dispatch event and writes the audit row. Neither may fail the call.
func (d *Dispatcher) record(ctx context.Context, requestID, name, prefix string, args map[string]interface{}, res *Result, err error, start time.Time) {
	outcome, code, message := outcomeOf(res, err)
	elapsed := time.Since(start).Milliseconds()

	event := &events.DispatchEvent{
		ID:         requestID,
		Command:    name,
		Prefix:     prefix,
		Release:    d.registry.Release(),
		Outcome:    outcome,
		Code:       code,
		DurationMs: elapsed,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	if perr := d.publisher.PublishDispatched(ctx, event); perr != nil {
		slog.Warn(fmt.Sprintf("%s - publish event for %s failed: %v", logPrefix, name, perr))
	}

	if d.audit == nil {
		return
	}
	var argsJSON json.RawMessage
	if len(args) > 0 {
		if b, merr := json.Marshal(args); merr == nil {
			argsJSON = b
		}
	}
	rec := &db.AuditRecord{
		RequestID:  requestID,
		Release:    d.registry.Release(),
		Command:    name,
		Args:       argsJSON,
		Outcome:    outcome,
		Code:       code,
		Message:    message,
		DurationMs: elapsed,
	}
	if aerr := d.audit.RecordDispatch(ctx, rec); aerr != nil {
		slog.Warn(fmt.Sprintf("%s - audit for %s failed: %v", logPrefix, name, aerr))
	}
}

func outcomeOf(res *Result, err error) (outcome, code, message string) {
	switch {
	case err != nil:
		return events.OutcomeError, registry.Code(err), err.Error()
	case res.Failure != nil:
		return events.OutcomeFailure, strconv.Itoa(res.Failure.Code), res.Failure.Message
	default:
		return events.OutcomeSuccess, "", res.Message
	}
}
