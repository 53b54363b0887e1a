package dispatch

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain checks that every manager stopped by a test leaves no worker,
// loop or reporter goroutines behind.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
