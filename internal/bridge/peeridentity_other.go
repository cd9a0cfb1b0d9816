//go:build !linux && !darwin && !windows

package bridge

import "fmt"

// getPeerIdentity has no implementation on this platform. Per spec §9, a
// platform that cannot provide same-user semantics closes the handshake
// rather than guessing.
func getPeerIdentity(conn any) (PeerIdentity, error) {
	return PeerIdentity{}, fmt.Errorf("peer identity verification not supported on this platform")
}

func currentUID() uint32 {
	return 0
}
