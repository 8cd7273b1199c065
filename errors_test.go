package sshsession

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestConnectError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &ConnectError{Addr: "example.com:22", Err: cause}

	if !strings.Contains(err.Error(), "example.com:22") {
		t.Errorf("Error() = %q, missing address", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is() does not reach the wrapped cause")
	}

	var connErr *ConnectError
	wrapped := fmt.Errorf("outer: %w", err)
	if !errors.As(wrapped, &connErr) {
		t.Error("errors.As() failed through wrapping")
	}
}

func TestExecError_Timeout(t *testing.T) {
	timedOut := &ExecError{
		Command: "sleep 10",
		Err:     fmt.Errorf("%w: %v", ErrTimeout, context.DeadlineExceeded),
	}
	if !timedOut.Timeout() {
		t.Error("Timeout() = false for timeout error, want true")
	}
	if !errors.Is(timedOut, ErrTimeout) {
		t.Error("errors.Is(err, ErrTimeout) = false, want true")
	}

	channelFailure := &ExecError{Command: "ls", Err: errors.New("ssh: channel closed")}
	if channelFailure.Timeout() {
		t.Error("Timeout() = true for channel failure, want false")
	}

	if !strings.Contains(timedOut.Error(), "sleep 10") {
		t.Errorf("Error() = %q, missing command", timedOut.Error())
	}
}

func TestTransferError(t *testing.T) {
	cause := errors.New("permission denied")
	err := &TransferError{Op: "upload", Src: "/local/a", Dst: "/remote/b", Err: cause}

	msg := err.Error()
	for _, want := range []string{"upload", "/local/a", "/remote/b", "permission denied"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is() does not reach the wrapped cause")
	}
}

func TestErrNotConnected_Identity(t *testing.T) {
	wrapped := fmt.Errorf("operation failed: %w", ErrNotConnected)
	if !errors.Is(wrapped, ErrNotConnected) {
		t.Error("errors.Is() failed for wrapped ErrNotConnected")
	}
}
