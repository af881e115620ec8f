package testutil

import (
	"fmt"
	"testing"

	"cribsync/lib/telemetry"
)

// Setup initializes logging and (when a telemetry.json5 is present
// somewhere above the cwd) otel exporters for a test package.
func Setup(t testing.TB, name string) func() {
	t.Helper()
	return telemetry.SetupForTesting(fmt.Sprintf("test:%s", name))
}
