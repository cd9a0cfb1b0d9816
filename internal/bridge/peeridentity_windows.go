//go:build windows

package bridge

import (
	"fmt"
)

// pidConn is implemented by the named-pipe connection type used in place of
// a Unix socket on Windows.
type pidConn interface {
	ClientProcessID() (uint32, error)
}

// getPeerIdentity calls GetNamedPipeClientProcessId, matching
// original_source's windows::Win32::System::Pipes path. Windows named pipes
// don't expose a UID the way Unix sockets do; same-user enforcement on this
// platform degrades to "the pipe's ACL already restricted the connecting
// principal", so UID/GID are left nil.
func getPeerIdentity(conn any) (PeerIdentity, error) {
	pc, ok := conn.(pidConn)
	if !ok {
		return PeerIdentity{}, fmt.Errorf("connection does not expose a client process id")
	}
	pid, err := pc.ClientProcessID()
	if err != nil {
		return PeerIdentity{}, fmt.Errorf("GetNamedPipeClientProcessId: %w", err)
	}
	p32 := int32(pid)
	return PeerIdentity{PID: &p32}, nil
}

func currentUID() uint32 {
	return 0
}
