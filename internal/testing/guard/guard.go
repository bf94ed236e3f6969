// Package guard switches the process into test mode when imported, so mains
// and background runners stay inert under go test.
package guard

import (
	"os"
	"sync"
)

// EnvVar is the variable app.InTestMode reads.
const EnvVar = "WMS_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(EnvVar) == "" {
			_ = os.Setenv(EnvVar, "1")
		}
	})
}
