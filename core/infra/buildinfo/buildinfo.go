package buildinfo

import (
	"fmt"
	"runtime"

	"github.com/cordum/mediaflow/core/infra/logging"
)

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns a single-line build summary.
func Info() string {
	return fmt.Sprintf("version=%s commit=%s date=%s go=%s", Version, Commit, Date, runtime.Version())
}

// Log writes the build summary under the service component.
func Log(service string) {
	logging.Info(service, "build info", "version", Version, "commit", Commit, "date", Date, "go", runtime.Version())
}
