package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectCommand    = "cap.ceph.command.v1"
	SubjectMonCommand = "ceph.mon.command"
	SubjectDispatched = "cephapi.dispatched"
)

var tokenReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")

// SafeToken makes s usable as a single subject token.
func SafeToken(s string) string {
	return tokenReplacer.Replace(s)
}

// BuildDispatchedSubject builds the per-command dispatch event subject.
func BuildDispatchedSubject(command string) string {
	return fmt.Sprintf("%s.%s", SubjectDispatched, SafeToken(command))
}

// BuildBridgeSubject scopes the mon command subject to one cluster. An empty
// cluster returns the base subject.
func BuildBridgeSubject(base, cluster string) string {
	if cluster == "" {
		return base
	}
	return fmt.Sprintf("%s.%s", base, SafeToken(cluster))
}
