package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"riskgate/internal/api/handlers"
	"riskgate/internal/api/health"
	"riskgate/internal/api/middleware"
	"riskgate/internal/metrics"
	"riskgate/pkg/logger"
)

// NewRouter registers every HTTP route
//
//	/v1/evaluate                         POST   admission decision
//	/v1/users/{id}/activate              POST
//	/v1/users/{id}/deactivate            POST
//	/v1/users/{id}/profile               GET, PATCH
//	/v1/users/{id}/profile/history       GET
//	/v1/users/{id}/limits/daily-loss     GET
//	/v1/alerts                           GET    ?user_id=
//	/v1/alerts/{id}/resolve              POST
//	/v1/alerts/{id}/dismiss              POST
//	/v1/report                           GET    ?user_id=&window_hours=
//	/health /ready /live /metrics
//
// verifier may be nil, then /v1 is served without authentication.
func NewRouter(risk *handlers.RiskHandler, healthHandler *health.Handler, verifier middleware.TokenVerifier, log *logger.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logging(log))

	router.HandleFunc("/health", healthHandler.HandleHealth).Methods(http.MethodGet)
	router.HandleFunc("/ready", healthHandler.HandleReadiness).Methods(http.MethodGet)
	router.HandleFunc("/live", healthHandler.HandleLiveness).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	v1 := router.PathPrefix("/v1").Subrouter()
	if verifier != nil {
		v1.Use(middleware.Auth(verifier, log))
	}

	v1.HandleFunc("/evaluate", risk.Evaluate).Methods(http.MethodPost)

	users := v1.PathPrefix("/users/{id}").Subrouter()
	users.HandleFunc("/activate", risk.Activate).Methods(http.MethodPost)
	users.HandleFunc("/deactivate", risk.Deactivate).Methods(http.MethodPost)
	users.HandleFunc("/profile", risk.GetProfile).Methods(http.MethodGet)
	users.HandleFunc("/profile", risk.UpdateProfile).Methods(http.MethodPatch)
	users.HandleFunc("/profile/history", risk.ProfileHistory).Methods(http.MethodGet)
	users.HandleFunc("/limits/daily-loss", risk.DailyLoss).Methods(http.MethodGet)

	v1.HandleFunc("/alerts", risk.ListAlerts).Methods(http.MethodGet)
	v1.HandleFunc("/alerts/{id}/resolve", risk.ResolveAlert).Methods(http.MethodPost)
	v1.HandleFunc("/alerts/{id}/dismiss", risk.DismissAlert).Methods(http.MethodPost)

	v1.HandleFunc("/report", risk.Report).Methods(http.MethodGet)

	return router
}
