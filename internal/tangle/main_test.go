package tangle

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
)

// Scheduler and interpreter tracing is too chatty for test output.
func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	os.Exit(m.Run())
}
