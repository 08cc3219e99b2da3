package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/cephapi/pkg/commsutil"
	"github.com/morezero/cephapi/pkg/registry"
)

// Envelope-only error codes.
const (
	CodeCommandFailed  = "COMMAND_FAILED"
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInternalError  = "INTERNAL_ERROR"
)

// Request is the JSON envelope for a command sent over NATS or HTTP.
type Request struct {
	ID      string                 `json:"id"`
	Command string                 `json:"command"`
	Args    map[string]interface{} `json:"args,omitempty"`
	// Inbuf is the command's input buffer, base64 encoded on the wire.
	Inbuf     []byte `json:"inbuf,omitempty"`
	TimeoutMs int    `json:"timeoutMs,omitempty"`
}

// Response is the JSON envelope answering a Request.
type Response struct {
	ID     string       `json:"id"`
	Ok     bool         `json:"ok"`
	Result *Result      `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail holds structured error information. Status is set for
// COMMAND_FAILED and carries the monitor's errno.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Param     string `json:"param,omitempty"`
	Status    int    `json:"status,omitempty"`
	Retryable bool   `json:"retryable"`
}

// DecodeRequest parses a Request envelope. Numeric args stay json.Number.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := commsutil.DecodePayload(data, &req); err != nil {
		return nil, fmt.Errorf("%s - decode request: %w", logPrefix, err)
	}
	return &req, nil
}

// Handle runs req and maps the outcome onto a Response. It never returns nil.
func (d *Dispatcher) Handle(ctx context.Context, req *Request) *Response {
	if req.Command == "" {
		return errorResponse(req.ID, CodeInvalidRequest, "command is required", false)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	slog.Debug(fmt.Sprintf("%s - handle id=%s command=%s", logPrefix, req.ID, req.Command))

	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	res, err := d.run(ctx, req.ID, req.Command, req.Args, req.Inbuf)
	if err != nil {
		return commandErrorToResponse(req.ID, err)
	}
	if res.Failure != nil {
		return &Response{
			ID: req.ID,
			Ok: false,
			Error: &ErrorDetail{
				Code:    CodeCommandFailed,
				Message: res.Failure.Message,
				Status:  res.Failure.Code,
			},
		}
	}
	return &Response{ID: req.ID, Ok: true, Result: res}
}

// HandleMessage decodes a raw envelope, runs it, and encodes the Response.
func (d *Dispatcher) HandleMessage(ctx context.Context, data []byte) []byte {
	var resp *Response
	req, err := DecodeRequest(data)
	if err != nil {
		resp = errorResponse("", CodeInvalidRequest, err.Error(), false)
	} else {
		resp = d.Handle(ctx, req)
	}
	out, err := commsutil.EncodePayload(resp)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - encode response: %v", logPrefix, err))
		out, _ = commsutil.EncodePayload(errorResponse(resp.ID, CodeInternalError, "failed to encode response", false))
	}
	return out
}

func errorResponse(id, code, message string, retryable bool) *Response {
	return &Response{
		ID: id,
		Ok: false,
		Error: &ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	}
}

func commandErrorToResponse(id string, err error) *Response {
	var ce *registry.CommandError
	if errors.As(err, &ce) {
		msg := ce.Message
		if ce.Cause != nil {
			msg += ": " + ce.Cause.Error()
		}
		return &Response{
			ID: id,
			Ok: false,
			Error: &ErrorDetail{
				Code:      ce.Code,
				Message:   msg,
				Param:     ce.Param,
				Retryable: ce.Retryable(),
			},
		}
	}
	return errorResponse(id, CodeInternalError, err.Error(), false)
}
