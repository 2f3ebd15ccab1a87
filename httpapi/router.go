package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/middleware"
)

const maxBodyBytes = 1 << 20

// Options tunes the router.
type Options struct {
	Logger logrus.FieldLogger
	// TrustProxy takes the client IP from X-Forwarded-For.
	TrustProxy bool
	// LiveValidation re-resolves permissions on every authenticated request.
	LiveValidation bool
	// Metrics, when set, is mounted at GET /metrics.
	Metrics http.Handler
}

// Handlers holds the engine behind the HTTP routes.
type Handlers struct {
	engine *tenantauth.Engine
	log    logrus.FieldLogger
}

// NewRouter builds the full route table.
func NewRouter(engine *tenantauth.Engine, opts Options) *mux.Router {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	h := &Handlers{engine: engine, log: log}

	authenticate := middleware.Authenticate(engine)
	if opts.LiveValidation {
		authenticate = middleware.AuthenticateLive(engine)
	}
	ipLimit := middleware.RateLimitIP(engine, opts.TrustProxy)
	userLimit := middleware.RateLimitUser(engine, opts.TrustProxy)

	router := mux.NewRouter()
	router.Use(middleware.ClientContext(opts.TrustProxy), requestLogger(log))
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSON(w, http.StatusNotFound, middleware.ErrorBody{Error: "not_found", Message: "route not found"})
	})

	public := func(fn http.HandlerFunc) http.Handler { return ipLimit(fn) }
	private := func(fn http.HandlerFunc) http.Handler { return authenticate(userLimit(fn)) }

	router.Handle("/auth/login", public(h.login)).Methods(http.MethodPost)
	router.Handle("/auth/refresh", public(h.refresh)).Methods(http.MethodPost)
	router.Handle("/auth/logout", public(h.logout)).Methods(http.MethodPost)
	router.Handle("/auth/validate", public(h.validate)).Methods(http.MethodPost)

	router.Handle("/auth/me", private(h.me)).Methods(http.MethodGet)
	router.Handle("/auth/logout-all", private(h.logoutAll)).Methods(http.MethodPost)
	router.Handle("/auth/change-password", private(h.changePassword)).Methods(http.MethodPut)

	router.HandleFunc("/internal/validate-token", h.validateInternal).Methods(http.MethodPost)
	router.HandleFunc("/health", h.health).Methods(http.MethodGet)
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}
	return router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(log logrus.FieldLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			entry := log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start).String(),
			})
			if rec.status >= http.StatusInternalServerError {
				entry.Warn("request failed")
				return
			}
			entry.Debug("request")
		})
	}
}
