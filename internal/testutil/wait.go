// Package testutil provides shared test helpers: shutdown waits, small
// fingerprint fixtures and synthetic card images.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// DefaultTestTimeout bounds waits on goroutines a test started, such as a
// server loop draining after its context is cancelled.
const DefaultTestTimeout = 5 * time.Second

// WaitForChannel fails the test with msg unless ch is closed or signalled
// within timeout.
func WaitForChannel(t *testing.T, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
		require.Fail(t, msg, "waited %s", timeout)
	}
}
