package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"globalbangla.org/internal/auth"
	"globalbangla.org/internal/blob"
	"globalbangla.org/internal/contest"
	"globalbangla.org/internal/obs"
	"globalbangla.org/internal/payment"
	"globalbangla.org/internal/stream"
)

const serviceName = "globalbangla-api"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe pings the backing stores that are configured.
type ReadyProbe struct {
	DB    *sql.DB
	Redis *redis.Client
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Services are the domain services the handlers call.
type Services struct {
	Accounts     *auth.Accounts
	Competitions *contest.Competitions
	Submissions  *contest.Submissions
	Winners      *contest.Winners
	Settings     *contest.SiteSettings
	Payments     *payment.Service
	Blobs        blob.Store
}

// Options carries deployment settings for the HTTP layer.
type Options struct {
	Env            string
	Version        string
	UploadsDir     string
	UploadsPrefix  string
	CookieSecure   bool
	AllowedOrigins []string
	RateBurst      int
	RatePerSecond  int
	TrustedProxies []string
}

// API is the HTTP layer.
type API struct {
	mechanism  auth.Mechanism
	svc        Services
	stream     *stream.Stream
	readyProbe readinessChecker
	validator  *requestValidator

	env           string
	version       string
	uploadsDir    string
	uploadsPrefix string
	cookieSecure  bool
	origins       []string
	rateBurst     int
	ratePerSec    int
	proxies       []netip.Prefix
}

func New(mechanism auth.Mechanism, svc Services, st *stream.Stream, rp readinessChecker, opts Options) *API {
	a := &API{
		mechanism:     mechanism,
		svc:           svc,
		stream:        st,
		readyProbe:    rp,
		validator:     newRequestValidator(),
		env:           opts.Env,
		version:       opts.Version,
		uploadsDir:    opts.UploadsDir,
		uploadsPrefix: strings.TrimRight(opts.UploadsPrefix, "/"),
		cookieSecure:  opts.CookieSecure,
		origins:       opts.AllowedOrigins,
		rateBurst:     opts.RateBurst,
		ratePerSec:    opts.RatePerSecond,
	}
	if a.readyProbe == nil {
		a.readyProbe = ReadyProbe{}
	}
	if a.uploadsPrefix == "" {
		a.uploadsPrefix = "/uploads"
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 60
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 20
	}
	proxies, err := ParseTrustedProxies(opts.TrustedProxies)
	if err != nil {
		obs.Warn("trusted_proxies_ignored", map[string]any{"error": err})
	}
	a.proxies = proxies
	return a
}

// Handler builds the router wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.routes()
	h = MaxBodyBytes(blob.SubmissionMaxBytes + 1<<20)(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec, a.proxies...)
	h = CORS(a.origins)(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = Recovery(h)
	return RequestID(h)
}

func (a *API) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	r.Use(obs.Instrument)

	r.HandleFunc("/health", a.Health).Methods(http.MethodGet)
	r.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)
	if a.uploadsDir != "" {
		r.PathPrefix(a.uploadsPrefix + "/").Handler(a.uploads()).Methods(http.MethodGet, http.MethodHead)
	}

	// Public reads share the /api/user prefix and must be registered before
	// the authenticated subrouter.
	r.HandleFunc("/api/user/competitions-public", a.publicCompetitions).Methods(http.MethodGet)
	r.HandleFunc("/api/user/site-settings", a.siteSettings).Methods(http.MethodGet)

	authn := r.PathPrefix("/api/auth").Subrouter()
	authn.HandleFunc("/signup", a.signup).Methods(http.MethodPost)
	authn.HandleFunc("/login", a.login).Methods(http.MethodPost)
	authn.HandleFunc("/logout", a.logout).Methods(http.MethodPost)
	authn.HandleFunc("/user/forgot-password", a.requestStudentReset).Methods(http.MethodPost)
	authn.HandleFunc("/admin/reset-password", a.requestAdminReset).Methods(http.MethodPost)
	authn.HandleFunc("/reset-password", a.resetPassword).Methods(http.MethodPost)
	authn.HandleFunc("/admin/create", a.createAdmin).Methods(http.MethodPost)

	user := r.PathPrefix("/api/user").Subrouter()
	user.Use(Authenticate(a.mechanism))
	user.HandleFunc("/dashboard", a.studentDashboard).Methods(http.MethodGet)
	user.HandleFunc("/competitions", a.activeCompetitions).Methods(http.MethodGet)
	user.HandleFunc("/competitions/{id}", a.competition).Methods(http.MethodGet)
	user.HandleFunc("/results", a.results).Methods(http.MethodGet)
	user.HandleFunc("/submissions", a.mySubmissions).Methods(http.MethodGet)
	user.HandleFunc("/submissions", a.createSubmission).Methods(http.MethodPost)
	user.HandleFunc("/profile", a.updateProfile).Methods(http.MethodPatch)
	user.HandleFunc("/profile/picture", a.uploadProfilePicture).Methods(http.MethodPost)
	user.HandleFunc("/payments/order", a.createOrder).Methods(http.MethodPost)
	user.HandleFunc("/payments/verify", a.verifyPayment).Methods(http.MethodPost)

	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.Use(Authenticate(a.mechanism), RequireRole(auth.IsAdmin))
	admin.HandleFunc("/dashboard", a.adminDashboard).Methods(http.MethodGet)
	admin.HandleFunc("/competitions", a.listCompetitions).Methods(http.MethodGet)
	admin.HandleFunc("/competitions", a.createCompetition).Methods(http.MethodPost)
	admin.HandleFunc("/competitions/{id}", a.updateCompetition).Methods(http.MethodPatch)
	admin.HandleFunc("/competitions/{id}", a.deleteCompetition).Methods(http.MethodDelete)
	admin.HandleFunc("/submissions", a.listSubmissions).Methods(http.MethodGet)
	admin.HandleFunc("/submissions/{id}", a.updateSubmission).Methods(http.MethodPatch)
	admin.HandleFunc("/submissions/{id}", a.deleteSubmission).Methods(http.MethodDelete)
	admin.HandleFunc("/winners", a.listWinners).Methods(http.MethodGet)
	admin.HandleFunc("/winners", a.addWinner).Methods(http.MethodPost)
	admin.HandleFunc("/winners/{id}", a.removeWinner).Methods(http.MethodDelete)
	admin.HandleFunc("/settings", a.siteSettings).Methods(http.MethodGet)
	admin.HandleFunc("/settings", a.updateSettings).Methods(http.MethodPatch)
	admin.HandleFunc("/features/toggle", a.toggleFeature).Methods(http.MethodPost)
	admin.HandleFunc("/students", a.listStudents).Methods(http.MethodGet)
	admin.HandleFunc("/payments", a.listPayments).Methods(http.MethodGet)
	admin.HandleFunc("/payments/stream", a.Stream).Methods(http.MethodGet)

	return r
}

// uploads serves stored files without directory listings.
func (a *API) uploads() http.Handler {
	files := http.StripPrefix(a.uploadsPrefix+"/", http.FileServer(http.Dir(a.uploadsDir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			notFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		files.ServeHTTP(w, r)
	})
}

// --- Handlers ---

func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"environment": a.env,
	})
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
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

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}
