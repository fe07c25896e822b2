package testing

import (
	"os"
	"path/filepath"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("DASHBOARD_TEST_MODE", "1")
		if os.Getenv("UPLOAD_DIR") == "" {
			_ = os.Setenv("UPLOAD_DIR", filepath.Join(os.TempDir(), "dashboard-test-uploads"))
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
