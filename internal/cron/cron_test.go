package cron

import (
	"testing"

	"github.com/gateward/gateward/internal/sessionkey"
)

func TestRunKeyShape(t *testing.T) {
	key := RunKey("Main", "daily-digest")
	if !sessionkey.IsCronRunKey(key) {
		t.Errorf("RunKey produced a non-cron key: %q", key)
	}
	// each firing is isolated from the last
	if key == RunKey("Main", "daily-digest") {
		t.Error("successive firings must get distinct keys")
	}
}
