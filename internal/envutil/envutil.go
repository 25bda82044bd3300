package envutil

import (
	"os"
	"strings"
)

// EnvVar selects the deployment mode.
const EnvVar = "AUTHBRIDGE_ENV"

// IsDev checks if we're running in development mode, where cookies may be
// sent over plain http to localhost satellites.
func IsDev() bool {
	env := strings.ToLower(os.Getenv(EnvVar))
	return env == "development" || env == "dev"
}
