// Package api exposes the process HTTP surface: health and metrics for
// operations, a dashboard snapshot, and the webhook the transport bridge
// delivers inbound events to.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paymebot/payrelay/internal/engine"
	"github.com/paymebot/payrelay/internal/relay"
	"github.com/paymebot/payrelay/internal/transport"
)

var httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "payrelay_http_requests_total",
	Help: "HTTP requests processed, labeled by status code",
}, []string{"method", "endpoint", "status"})

type Handler struct {
	engine *engine.Engine
	router *relay.Router
	log    *zap.Logger
}

func NewHandler(eng *engine.Engine, router *relay.Router, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{engine: eng, router: router, log: log}
}

func (h *Handler) Routes() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/dashboard", h.Dashboard).Methods("GET")
	r.HandleFunc("/events", h.Events).Methods("POST")
	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

type dashboardResponse struct {
	TotalUsers           int64           `json:"total_users"`
	UsersWithBankDetails int64           `json:"users_with_bank_details"`
	TotalBalance         decimal.Decimal `json:"total_balance"`
	ApprovedDeposits     int64           `json:"approved_deposits"`
	ApprovedWithdrawals  int64           `json:"approved_withdrawals"`
	PendingTransactions  int64           `json:"pending_transactions"`
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.DashboardSnapshot(r.Context())
	if err != nil {
		h.log.Error("dashboard snapshot", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "dashboard unavailable", "GET", "/dashboard")
		return
	}
	respondWithJSON(w, http.StatusOK, dashboardResponse{
		TotalUsers:           stats.TotalUsers,
		UsersWithBankDetails: stats.UsersWithBankDetails,
		TotalBalance:         stats.TotalBalance,
		ApprovedDeposits:     stats.ApprovedDeposits,
		ApprovedWithdrawals:  stats.ApprovedWithdrawals,
		PendingTransactions:  stats.PendingTransactions,
	}, "GET", "/dashboard")
}

// Events receives one normalized inbound event from the transport bridge.
// Processing is detached from the request so a bridge timeout cannot cancel a
// half-applied interaction; the bridge only needs to know the event landed.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	var ev transport.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed event payload", "POST", "/events")
		return
	}

	go h.router.Handle(context.WithoutCancel(r.Context()), ev)
	respondWithJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"}, "POST", "/events")
}

func respondWithError(w http.ResponseWriter, code int, message, method, endpoint string) {
	respondWithJSON(w, code, map[string]string{"error": message}, method, endpoint)
}

func respondWithJSON(w http.ResponseWriter, code int, payload any, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
