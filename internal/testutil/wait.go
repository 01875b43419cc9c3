// Package testutil holds fixtures shared by the sync core tests.
package testutil

import (
	"io"
	"log"
	"testing"
	"time"
)

// WaitFor polls cond until it returns true or timeout elapses.
//
// The mock clock runs AfterFunc callbacks on their own goroutines, so tests
// that advance it must wait for the callback's effect rather than assume it.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %v", timeout)
	}
}

// Logger returns a logger that discards output.
func Logger() *log.Logger {
	return log.New(io.Discard, "", 0)
}
