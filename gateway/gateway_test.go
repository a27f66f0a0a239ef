package gateway

import (
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"agent-relay/driver"
)

// newTestStore starts an in-process Redis and returns it with a connected
// driver. Closing the miniredis instance simulates a store outage.
func newTestStore(t *testing.T) (*miniredis.Miniredis, *driver.RedisDriver) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	return mr, driver.NewRedisDriver(mr.Addr(), 0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
