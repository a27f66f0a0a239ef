package driver

import (
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newMiniredis starts an in-process Redis for driver tests and returns it
// together with a driver connected to it.
func newMiniredis(t *testing.T) (*miniredis.Miniredis, *RedisDriver) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	return mr, NewRedisDriver(mr.Addr(), 0)
}
