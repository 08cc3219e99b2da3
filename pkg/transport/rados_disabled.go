//go:build !ceph

package transport

import "context"

// RadosAdmin is unavailable in this build; see ErrRadosUnavailable.
type RadosAdmin struct{}

// NewRadosAdmin always fails in binaries built without the ceph tag.
func NewRadosAdmin(RadosConfig) (*RadosAdmin, error) {
	return nil, ErrRadosUnavailable
}

func (a *RadosAdmin) MonCommand(context.Context, []byte, []byte) (*Reply, error) {
	return nil, ErrRadosUnavailable
}

func (a *RadosAdmin) Close() {}
