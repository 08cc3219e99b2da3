package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/cephapi/pkg/commsutil"
)

const bridgeLogPrefix = "transport:bridge"

// BridgeQueue is the queue group bridges join so that several bridges for one
// cluster share the load.
const BridgeQueue = "cephapi-bridge"

// ServeBridge answers MonCommandRequests on subject by forwarding them to admin.
// Each request gets its own context bounded by timeout. The caller owns the
// returned subscription.
func ServeBridge(nc *comms.Conn, subject string, admin AdminInterface, timeout time.Duration) (*comms.Subscription, error) {
	if subject == "" {
		subject = commsutil.SubjectMonCommand
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	sub, err := nc.QueueSubscribe(subject, BridgeQueue, func(msg *comms.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		rep := handleBridgeRequest(ctx, admin, msg.Data)
		data, err := commsutil.EncodePayload(rep)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - failed to encode reply: %v", bridgeLogPrefix, err))
			return
		}
		if err := msg.Respond(data); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to respond: %v", bridgeLogPrefix, err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", bridgeLogPrefix, subject, err)
	}

	slog.Info(fmt.Sprintf("%s - Serving mon commands on %s", bridgeLogPrefix, subject))
	return sub, nil
}

func handleBridgeRequest(ctx context.Context, admin AdminInterface, data []byte) *MonCommandReply {
	var req MonCommandRequest
	if err := commsutil.DecodePayload(data, &req); err != nil {
		return &MonCommandReply{Error: fmt.Sprintf("invalid bridge request: %v", err)}
	}
	if len(req.Cmd) == 0 {
		return &MonCommandReply{Error: "invalid bridge request: cmd is empty"}
	}

	reply, err := admin.MonCommand(ctx, req.Cmd, req.Inbuf)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - mon command failed: %v", bridgeLogPrefix, err))
		return &MonCommandReply{Error: err.Error()}
	}
	if reply == nil {
		slog.Warn(fmt.Sprintf("%s - mon command returned no reply", bridgeLogPrefix))
		return &MonCommandReply{Error: "no reply"}
	}
	slog.Debug(fmt.Sprintf("%s - status=%d outbuf=%d bytes", bridgeLogPrefix, reply.Status, len(reply.Outbuf)))
	return &MonCommandReply{Status: reply.Status, Outbuf: reply.Outbuf, Outs: reply.Outs}
}
