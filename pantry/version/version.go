// pantry/version/version.go
package version

import (
	"net/http"
	"runtime"

	"github.com/dalemusser/schoolctx/httputil"
	"github.com/go-chi/chi/v5"
)

// Set at build time:
//
//	go build -ldflags "-X github.com/dalemusser/schoolctx/pantry/version.Version=1.4.0 \
//	                   -X github.com/dalemusser/schoolctx/pantry/version.Commit=$(git rev-parse --short HEAD)"
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the /version body.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get reports the build info linked into this binary and the Go
// version it was built with.
func Get() Info {
	return Info{Version: Version, Commit: Commit, BuildTime: BuildTime, GoVersion: runtime.Version()}
}

// Mount serves build info at GET /version.
func Mount(r chi.Router) {
	info := Get()
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, info)
	})
}

// String is a one-line form for startup logs, e.g. "1.4.0 (abc123)".
func String() string {
	if Version == "dev" {
		return "dev"
	}
	return Version + " (" + Commit + ")"
}
