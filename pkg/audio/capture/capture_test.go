package capture_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/reporecon/pkg/audio/capture"
)

func TestMediaAccessError_WrapsCause(t *testing.T) {
	cause := errors.New("device busy")
	err := &capture.MediaAccessError{Err: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}

	var mae *capture.MediaAccessError
	if !errors.As(error(err), &mae) {
		t.Error("errors.As should match *MediaAccessError")
	}
	if got := err.Error(); got != "capture: microphone unavailable: device busy" {
		t.Errorf("Error() = %q", got)
	}
}

func TestMicrophone_StopBeforeStartIsNoOp(t *testing.T) {
	m := capture.New(capture.Config{})
	if err := m.Stop(); err != nil {
		t.Errorf("Stop before Start: %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Errorf("repeated Stop: %v", err)
	}
	if m.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", m.Dropped())
	}
}
