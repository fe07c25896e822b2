package app

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

const testModeEnv = "DASHBOARD_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

// detectTestMode reads DASHBOARD_TEST_MODE; "1" and any strconv true value enable it.
func detectTestMode() {
	on, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(testModeEnv)))
	testModeFlag.Store(err == nil && on)
}

// InTestMode reports whether binaries should skip connecting to Postgres and Redis.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode updates the cached flag after environment changes.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	detectTestMode()
}
