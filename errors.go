package sshsession

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by operations attempted on a session that is
// not in the open state. No network I/O is performed in that case.
var ErrNotConnected = errors.New("session is not connected")

// ErrTimeout marks an ExecError caused by the command deadline elapsing
// before the remote process terminated.
var ErrTimeout = errors.New("command timed out")

// ConnectError reports a failure to establish or authenticate the transport.
// No session object exists after a ConnectError.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ExecError reports a command channel failure or timeout. It is never
// produced for a remote process that merely exits non-zero.
type ExecError struct {
	Command string
	Err     error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("exec %q: %v", e.Command, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Timeout reports whether the error was caused by the command deadline.
func (e *ExecError) Timeout() bool { return errors.Is(e.Err, ErrTimeout) }

// TransferError reports a local or remote I/O failure during upload or
// download.
type TransferError struct {
	// Op is "upload" or "download".
	Op string
	// Src and Dst are the paths in transfer direction: local to remote for
	// uploads, remote to local for downloads.
	Src string
	Dst string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s to %s: %v", e.Op, e.Src, e.Dst, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }
