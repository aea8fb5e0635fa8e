package httpapi

import (
	"context"
	"net/http"
	"time"

	"accountd.dev/internal/auth"
	"accountd.dev/internal/config"
	"accountd.dev/internal/lifecycle"
	"accountd.dev/internal/notify"
	"accountd.dev/internal/obs"
	"accountd.dev/internal/session"
)

const serviceName = "accountd"

type pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks that the credential store is reachable.
type ReadyProbe struct {
	Store pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	return rp.Store.Ping(ctx)
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Deps are the collaborators the HTTP layer drives.
type Deps struct {
	Accounts *lifecycle.Service
	Oracle   *session.Oracle
	Registry *session.Registry
	Hub      *notify.Hub
	Issuer   *auth.Issuer
	Probe    readinessChecker
	Config   config.Config
	Version  string
}

// API is the HTTP layer.
type API struct {
	mux      *http.ServeMux
	accounts *lifecycle.Service
	oracle   *session.Oracle
	registry *session.Registry
	hub      *notify.Hub
	issuer   *auth.Issuer
	probe    readinessChecker
	cfg      config.Config
	version  string

	general *limiterSet
	logins  *limiterSet
}

func New(d Deps) *API {
	probe := d.Probe
	if probe == nil {
		probe = ReadyProbe{}
	}
	a := &API{
		mux:      http.NewServeMux(),
		accounts: d.Accounts,
		oracle:   d.Oracle,
		registry: d.Registry,
		hub:      d.Hub,
		issuer:   d.Issuer,
		probe:    probe,
		cfg:      d.Config,
		version:  d.Version,
		general:  newLimiterSet(d.Config.RateLimitRPS, d.Config.RateLimitBurst),
		logins:   newLoginLimiter(d.Config.LoginLimit, d.Config.LoginWindow),
	}

	// ops
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("POST /api/auth/register", a.register)
	a.mux.HandleFunc("POST /api/auth/login", a.login)
	a.mux.HandleFunc("POST /api/auth/logout", a.logout)
	a.mux.Handle("POST /api/auth/force-logout", a.withSession(a.requireAdmin(http.HandlerFunc(a.forceLogout))))

	// user
	a.mux.Handle("GET /api/user/profile", a.withSession(http.HandlerFunc(a.profile)))
	a.mux.Handle("GET /api/user/me", a.withSession(http.HandlerFunc(a.me)))
	a.mux.Handle("POST /api/user/update-username", a.withSession(http.HandlerFunc(a.updateUsername)))
	a.mux.Handle("POST /api/user/update-profile-picture", a.withSession(http.HandlerFunc(a.updateProfilePicture)))
	a.mux.HandleFunc("GET /api/user/profile-picture/{key}", a.profilePicture)
	a.mux.Handle("POST /api/password/change", a.withSession(http.HandlerFunc(a.changePassword)))

	// admin
	a.mux.Handle("POST /api/admin/suspend", a.withSession(a.requireAdmin(a.suspensionByName(true))))
	a.mux.Handle("POST /api/admin/unsuspend", a.withSession(a.requireAdmin(a.suspensionByName(false))))
	a.mux.Handle("POST /api/admin/ban", a.withSession(a.requireAdmin(a.suspensionByID(true))))
	a.mux.Handle("POST /api/admin/unban", a.withSession(a.requireAdmin(a.suspensionByID(false))))

	// push channel
	a.mux.Handle("GET /api/events", a.withSession(http.HandlerFunc(a.Events)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fail(w, r, http.StatusNotFound, "Resource not found")
	})

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.cfg.MaxBodyBytes)
	h = a.rateLimit(h)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Recover(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.probe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        serviceName,
		"time":        time.Now().UTC().Format(time.RFC3339),
		"version":     a.version,
		"connections": a.hub.Connections(),
	})
}
