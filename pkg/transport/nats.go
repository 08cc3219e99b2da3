package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/cephapi/pkg/commsutil"
)

const natsLogPrefix = "transport:nats"

// DefaultRequestTimeout bounds a bridge round trip when the context has no deadline.
const DefaultRequestTimeout = 30 * time.Second

// MonCommandRequest is the bridge request body.
type MonCommandRequest struct {
	Cmd   json.RawMessage `json:"cmd"`
	Inbuf []byte          `json:"inbuf,omitempty"`
}

// MonCommandReply is the bridge reply body. Error is set when the bridge
// could not reach the cluster at all.
type MonCommandReply struct {
	Status int    `json:"status"`
	Outbuf []byte `json:"outbuf,omitempty"`
	Outs   string `json:"outs,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NATSAdmin sends commands over COMMS to a bridge running next to the cluster.
type NATSAdmin struct {
	nc      *comms.Conn
	subject string
	timeout time.Duration
}

// NewNATSAdmin creates a NATSAdmin. An empty subject uses the default mon
// command subject; a zero timeout uses DefaultRequestTimeout.
func NewNATSAdmin(nc *comms.Conn, subject string, timeout time.Duration) *NATSAdmin {
	if subject == "" {
		subject = commsutil.SubjectMonCommand
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &NATSAdmin{nc: nc, subject: subject, timeout: timeout}
}

func (a *NATSAdmin) MonCommand(ctx context.Context, cmd []byte, inbuf []byte) (*Reply, error) {
	data, err := commsutil.EncodePayload(&MonCommandRequest{Cmd: cmd, Inbuf: inbuf})
	if err != nil {
		return nil, fmt.Errorf("%s - encode request: %w", natsLogPrefix, err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	msg, err := a.nc.RequestWithContext(ctx, a.subject, data)
	if err != nil {
		return nil, fmt.Errorf("%s - request %s: %w", natsLogPrefix, a.subject, err)
	}

	var rep MonCommandReply
	if err := commsutil.DecodePayload(msg.Data, &rep); err != nil {
		return nil, fmt.Errorf("%s - decode reply: %w", natsLogPrefix, err)
	}
	slog.Debug(fmt.Sprintf("%s - subject=%s status=%d", natsLogPrefix, a.subject, rep.Status))
	if rep.Error != "" {
		return nil, fmt.Errorf("%s - bridge: %w", natsLogPrefix, errors.New(rep.Error))
	}
	return &Reply{Status: rep.Status, Outbuf: rep.Outbuf, Outs: rep.Outs}, nil
}
