//go:build linux

package bridge

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// getPeerIdentity reads SO_PEERCRED off a Unix domain socket, matching
// original_source's nix::sys::socket::sockopt::PeerCredentials usage.
func getPeerIdentity(conn any) (PeerIdentity, error) {
	sc, ok := conn.(syscallConner)
	if !ok {
		return PeerIdentity{}, fmt.Errorf("connection does not expose a raw syscall conn")
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return PeerIdentity{}, fmt.Errorf("syscall conn: %w", err)
	}

	var cred *unix.Ucred
	var sockoptErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		cred, sockoptErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if ctrlErr != nil {
		return PeerIdentity{}, fmt.Errorf("control: %w", ctrlErr)
	}
	if sockoptErr != nil {
		return PeerIdentity{}, fmt.Errorf("getsockopt SO_PEERCRED: %w", sockoptErr)
	}

	uid := cred.Uid
	gid := cred.Gid
	pid := cred.Pid
	return PeerIdentity{UID: &uid, GID: &gid, PID: &pid}, nil
}

// currentUID returns the daemon's own effective UID, for same-user enforcement.
func currentUID() uint32 {
	return uint32(unix.Geteuid())
}
