package api

import (
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the HTTP surface: public auth routes, protected
// transfer routes, health and metrics.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(Metrics)
	apiV1.Use(Timeout(15 * time.Second))

	apiV1.HandleFunc("/register", h.RegisterHandler).Methods("POST")
	apiV1.HandleFunc("/activate", h.ActivateHandler).Methods("POST")
	apiV1.HandleFunc("/login", h.LoginHandler).Methods("POST")
	apiV1.HandleFunc("/forget-password", h.ForgetPasswordHandler).Methods("POST")

	protected := apiV1.NewRoute().Subrouter()
	protected.Use(h.RequireAuth)
	protected.HandleFunc("/user", h.MeHandler).Methods("GET")
	protected.HandleFunc("/logout", h.LogoutHandler).Methods("POST")
	protected.HandleFunc("/transfer/initiate", h.InitiateTransferHandler).Methods("POST")
	protected.HandleFunc("/transfer/confirm", h.ConfirmTransferHandler).Methods("POST")
	protected.HandleFunc("/transactions", h.ListTransactionsHandler).Methods("GET")
	protected.HandleFunc("/reset-password", h.ResetPasswordHandler).Methods("POST")

	return r
}
