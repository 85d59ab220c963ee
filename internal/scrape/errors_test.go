package scrape

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"auth error", NewAuthError("login failed", nil), CodeAuthFailed},
		{"content error", NewContentNotFoundError("container missing", nil), CodeContentNotFound},
		{"wrapped typed error", fmt.Errorf("cycle: %w", NewAuthError("login failed", nil)), CodeAuthFailed},
		{"busy sentinel", ErrCheckRunning, CodeBusy},
		{"not logged in sentinel", ErrNotLoggedIn, CodeAuthFailed},
		{"context deadline", context.DeadlineExceeded, CodeTimeout},
		{"plain error", errors.New("boom"), CodeTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_UnwrapAndIs(t *testing.T) {
	underlying := errors.New("net down")
	err := NewTransportError("navigation failed", underlying)

	if !errors.Is(err, underlying) {
		t.Error("errors.Is did not reach the underlying error")
	}

	var se *Error
	if !errors.As(fmt.Errorf("outer: %w", err), &se) {
		t.Fatal("errors.As failed on wrapped typed error")
	}
	if se.Code != CodeTransport {
		t.Errorf("Code = %v", se.Code)
	}
}

func TestError_Message(t *testing.T) {
	err := NewAuthError("login failed", errors.New("selector timeout"))
	got := err.Error()
	want := "AUTH_FAILED: login failed: selector timeout"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	bare := NewAuthError("login failed", nil)
	if bare.Error() != "AUTH_FAILED: login failed" {
		t.Errorf("Error() = %q", bare.Error())
	}
}
