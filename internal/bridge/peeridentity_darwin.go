//go:build darwin

package bridge

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// getPeerIdentity uses getpeereid(2), matching original_source's macOS
// libc::getpeereid path. macOS does not expose the peer's PID through the
// socket the way SO_PEERCRED does on Linux, so PID is left nil.
func getPeerIdentity(conn any) (PeerIdentity, error) {
	sc, ok := conn.(syscallConner)
	if !ok {
		return PeerIdentity{}, fmt.Errorf("connection does not expose a raw syscall conn")
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return PeerIdentity{}, fmt.Errorf("syscall conn: %w", err)
	}

	var uid, gid int
	var peerErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		uid, gid, peerErr = unix.Getpeereid(int(fd))
	})
	if ctrlErr != nil {
		return PeerIdentity{}, fmt.Errorf("control: %w", ctrlErr)
	}
	if peerErr != nil {
		return PeerIdentity{}, fmt.Errorf("getpeereid: %w", peerErr)
	}

	u32 := uint32(uid)
	g32 := uint32(gid)
	return PeerIdentity{UID: &u32, GID: &g32}, nil
}

func currentUID() uint32 {
	return uint32(unix.Geteuid())
}
