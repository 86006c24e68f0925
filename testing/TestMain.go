// Package testing forces test mode and safe defaults for packages that import it.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

var testDefaults = map[string]string{
	"DUCTLINE_TEST_MODE": "1",
	"GOTENBERG_URL":      "http://127.0.0.1:0",
	"SESSION_SECRET":     "test-session-secret",
	"CSRF_SECRET":        "test-csrf-secret",
	"KAFKA_BROKERS":      "",
}

func ensureTestMode() {
	once.Do(func() {
		for key, value := range testDefaults {
			if key == "DUCTLINE_TEST_MODE" {
				_ = os.Setenv(key, value)
				continue
			}
			if _, ok := os.LookupEnv(key); !ok {
				_ = os.Setenv(key, value)
			}
		}
	})
}

func init() {
	ensureTestMode()
}

// TestMain runs the suite with test mode enabled.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
