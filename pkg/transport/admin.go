// Package transport carries serialized monitor commands to a Ceph cluster.
package transport

import (
	"context"
	"fmt"
	"syscall"
)

// Reply is what the monitor returns for one command. Status is zero on
// success and a negative errno otherwise; Outbuf is the payload and Outs the
// human-readable status line.
type Reply struct {
	Status int    `json:"status"`
	Outbuf []byte `json:"outbuf"`
	Outs   string `json:"outs"`
}

// OK reports whether the command succeeded.
func (r *Reply) OK() bool { return r.Status == 0 }

// AdminInterface submits a serialized JSON command to the cluster. A returned
// error means the command could not be delivered or answered; a delivered
// command that the cluster rejected comes back as a Reply with a non-zero Status.
type AdminInterface interface {
	MonCommand(ctx context.Context, cmd []byte, inbuf []byte) (*Reply, error)
}

// AdminFunc adapts a function to AdminInterface.
type AdminFunc func(ctx context.Context, cmd []byte, inbuf []byte) (*Reply, error)

func (f AdminFunc) MonCommand(ctx context.Context, cmd []byte, inbuf []byte) (*Reply, error) {
	return f(ctx, cmd, inbuf)
}

// Strerror describes a monitor status code the way the C library would.
func Strerror(status int) string {
	if status == 0 {
		return "success"
	}
	if status < 0 {
		status = -status
	}
	return fmt.Sprintf("%s (errno %d)", syscall.Errno(status).Error(), status)
}
