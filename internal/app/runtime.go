package app

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

const testModeEnv = "SAFTBRIDGE_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

// detectTestMode reads the SAFTBRIDGE_TEST_MODE flag once. Accepts any
// truthy value strconv understands plus the bare "1" convention.
func detectTestMode() {
	v := os.Getenv(testModeEnv)
	b, err := strconv.ParseBool(v)
	if err != nil {
		b = v == "1"
	}
	testModeFlag.Store(b)
}

// InTestMode reports whether runtime entrypoints should skip external
// connections. Serve and worker startup bail out early when set so
// test binaries never dial Postgres or Redis.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode updates the cached flag after environment changes.
func RefreshTestMode() {
	detectTestMode()
}
