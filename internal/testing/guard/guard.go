// Package guard switches the process into test mode when imported, so that
// app wiring never dials Postgres, Redis or Kafka from a test binary.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("DUCTLINE_TEST_MODE") == "" {
			_ = os.Setenv("DUCTLINE_TEST_MODE", "1")
		}
	})
}
