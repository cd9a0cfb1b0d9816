package bridge

import "syscall"

// PeerIdentity is the OS-reported identity of the process on the other end
// of a local-socket connection. Fields are optional because not every
// platform exposes every attribute: Windows named pipes only surface a
// process id, for instance.
type PeerIdentity struct {
	UID *uint32
	GID *uint32
	PID *int32
}

// syscallConner is implemented by *net.UnixConn and *net.TCPConn.
type syscallConner interface {
	SyscallConn() (syscall.RawConn, error)
}
