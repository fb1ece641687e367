package opshttp

import (
	"net/http"

	"github.com/keithlinneman/authgate/internal/probe"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      probe.Probe
	Readiness   probe.Probe
	// OnPanic runs for every recovered admin handler panic, used for the panic counter.
	OnPanic func()
}
