package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFor(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{ErrNotConnected, ExitOffline},
		{fmt.Errorf("lookup: %w", ErrTrackNotFound), ExitNotFound},
		{ErrUnknownDevice, ExitNotFound},
		{ErrIndexOutOfRange, ExitUsage},
		{errors.New("boom"), ExitRuntime},
	}

	for _, test := range tests {
		err := ErrorFor("message", test.err)
		if err.Code != test.expected {
			t.Fatalf("error %v expected %d got %d", test.err, test.expected, err.Code)
		}
	}
}

func TestExitCodeUnwrapsCLIError(t *testing.T) {
	err := fmt.Errorf("run: %w", WrapError(ExitTimeout, "timed out", nil))
	if ExitCode(err) != ExitTimeout {
		t.Fatalf("expected timeout exit code")
	}
	if ExitCode(nil) != ExitOK {
		t.Fatalf("expected ok")
	}
}
