package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/authgate/internal/httpmw"
	"github.com/keithlinneman/authgate/internal/log"
	"github.com/keithlinneman/authgate/internal/probe"
)

// DefaultMaxBodyBytes caps request bodies on the public listener.
const DefaultMaxBodyBytes = 4 << 10

type Options struct {
	Logger log.Logger
	Port   int

	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions
	// 0 means DefaultMaxBodyBytes
	MaxBodyBytes int64

	Health    probe.Probe
	Readiness probe.Probe

	// APIRoutes mounts the application routes on the router.
	APIRoutes func(r chi.Router)
}
