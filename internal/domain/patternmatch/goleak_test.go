package patternmatch

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain runs goleak verification for all tests in this package, so a
// worker that outlives its Match call is caught here.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
