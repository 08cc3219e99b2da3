package transport

import "errors"

// ErrRadosUnavailable is returned by NewRadosAdmin in binaries built without librados.
var ErrRadosUnavailable = errors.New("transport:rados - built without librados support (rebuild with -tags ceph)")

// RadosConfig selects the cluster and identity for a RadosAdmin.
type RadosConfig struct {
	// ConfFile is the ceph.conf path. Empty uses the librados search path.
	ConfFile string
	// Cluster is the cluster name; empty means "ceph".
	Cluster string
	// User is the client id without the "client." prefix, e.g. "admin".
	User string
}
