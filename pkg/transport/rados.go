//go:build ceph

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ceph/go-ceph/rados"
)

const radosLogPrefix = "transport:rados"

// RadosAdmin submits commands to the monitors through librados.
type RadosAdmin struct {
	conn *rados.Conn
}

// NewRadosAdmin connects to the cluster described by cfg.
func NewRadosAdmin(cfg RadosConfig) (*RadosAdmin, error) {
	var (
		conn *rados.Conn
		err  error
	)
	switch {
	case cfg.Cluster != "":
		user := cfg.User
		if user == "" {
			user = "admin"
		}
		conn, err = rados.NewConnWithClusterAndUser(cfg.Cluster, "client."+user)
	case cfg.User != "":
		conn, err = rados.NewConnWithUser(cfg.User)
	default:
		conn, err = rados.NewConn()
	}
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create connection: %w", radosLogPrefix, err)
	}

	if cfg.ConfFile != "" {
		err = conn.ReadConfigFile(cfg.ConfFile)
	} else {
		err = conn.ReadDefaultConfigFile()
	}
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read config %q: %w", radosLogPrefix, cfg.ConfFile, err)
	}

	if err := conn.Connect(); err != nil {
		return nil, fmt.Errorf("%s - failed to connect: %w", radosLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Connected to cluster conf=%q user=%q", radosLogPrefix, cfg.ConfFile, cfg.User))
	return &RadosAdmin{conn: conn}, nil
}

// MonCommand runs cmd synchronously. The context is only checked before the
// call; librados cannot abandon a command in flight.
func (a *RadosAdmin) MonCommand(ctx context.Context, cmd []byte, inbuf []byte) (*Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outbuf, outs, err := a.conn.MonCommandWithInputBuffer(cmd, inbuf)
	if err != nil {
		var coded interface{ ErrorCode() int }
		if errors.As(err, &coded) && coded.ErrorCode() < 0 {
			return &Reply{Status: coded.ErrorCode(), Outbuf: outbuf, Outs: outs}, nil
		}
		return nil, fmt.Errorf("%s - mon command: %w", radosLogPrefix, err)
	}
	return &Reply{Outbuf: outbuf, Outs: outs}, nil
}

// Close shuts the librados connection down.
func (a *RadosAdmin) Close() {
	if a.conn != nil {
		a.conn.Shutdown()
		a.conn = nil
	}
}
