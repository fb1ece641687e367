package loginhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/authgate/internal/credstore"
	"github.com/keithlinneman/authgate/internal/log"
	"github.com/keithlinneman/authgate/internal/metrics"
)

// LoginPath is the credential submission endpoint.
const LoginPath = "/api/login"

// form field names
const (
	FieldUsername = "username"
	FieldPassword = "password"
)

// Verifier checks a username/password pair. *credstore.Store implements it.
type Verifier interface {
	Verify(ctx context.Context, username, password string) error
}

type Options struct {
	Logger   log.Logger
	Verifier Verifier

	// Middleware wraps the login handler only, typically the throttler.
	Middleware []func(http.Handler) http.Handler

	// OnResult receives one of the metrics.Login* result labels per request.
	OnResult func(result string)
}

// API implements the login endpoint.
type API struct {
	verifier Verifier
	logger   log.Logger
	mw       []func(http.Handler) http.Handler
	onResult func(string)
}

func NewAPI(opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &API{
		verifier: opts.Verifier,
		logger:   opts.Logger,
		mw:       opts.Middleware,
		onResult: opts.OnResult,
	}
}

// RegisterRoutes attaches the login endpoint to the router.
func (api *API) RegisterRoutes(r chi.Router) {
	r.With(api.mw...).Post(LoginPath, api.HandleLogin)
}

type response struct {
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// HandleLogin verifies the submitted form. Failures answer 401 so the
// throttler can count them; unknown users and wrong passwords are
// indistinguishable to the client.
func (api *API) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	L := log.FromContextOr(ctx, api.logger)

	if err := r.ParseForm(); err != nil {
		L.Debug(ctx, "login: unparseable form", "err", err)
		api.finish(ctx, w, metrics.LoginMalformed, http.StatusBadRequest, response{Error: "malformed request"})
		return
	}
	username := r.PostForm.Get(FieldUsername)
	password := r.PostForm.Get(FieldPassword)
	if strings.TrimSpace(username) == "" || password == "" {
		api.finish(ctx, w, metrics.LoginMalformed, http.StatusBadRequest, response{Error: "username and password are required"})
		return
	}

	err := api.verifier.Verify(ctx, username, password)
	switch {
	case err == nil:
		L.Info(ctx, "login succeeded", "username", credstore.NormalizeUsername(username))
		api.finish(ctx, w, metrics.LoginOK, http.StatusOK, response{Status: "ok"})
	case errors.Is(err, credstore.ErrInvalidCredentials):
		L.Info(ctx, "login failed", "username", credstore.NormalizeUsername(username))
		api.finish(ctx, w, metrics.LoginInvalid, http.StatusUnauthorized, response{Error: "invalid credentials"})
	case errors.Is(err, credstore.ErrNotLoaded):
		L.Warn(ctx, "login attempted before credentials loaded")
		api.finish(ctx, w, metrics.LoginError, http.StatusServiceUnavailable, response{Error: "service unavailable"})
	default:
		L.Error(ctx, err, "login: verification error")
		api.finish(ctx, w, metrics.LoginError, http.StatusInternalServerError, response{Error: "internal error"})
	}
}

func (api *API) finish(ctx context.Context, w http.ResponseWriter, result string, status int, body response) {
	if api.onResult != nil {
		api.onResult(result)
	}
	api.writeJSON(ctx, w, status, body)
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}
