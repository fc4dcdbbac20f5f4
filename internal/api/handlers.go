package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"paper-ledger/internal/analytics"
	"paper-ledger/internal/database"
	"paper-ledger/internal/kafka"
	"paper-ledger/internal/models"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	store    database.Store
	producer *kafka.Producer
	tracker  *analytics.Tracker
	log      zerolog.Logger
}

// NewHandler creates a new Handler. producer may be nil when no broker is
// configured.
func NewHandler(store database.Store, producer *kafka.Producer, tracker *analytics.Tracker, log zerolog.Logger) *Handler {
	return &Handler{
		store:    store,
		producer: producer,
		tracker:  tracker,
		log:      log.With().Str("component", "api").Logger(),
	}
}

// GetAccount handles GET /api/v1/account
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.store.GetAccount(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, acct)
}

// GetPositions handles GET /api/v1/positions
func (h *Handler) GetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.store.GetPositions(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, positions)
}

// GetPosition handles GET /api/v1/positions/{symbol}
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	pos, err := h.store.GetPosition(r.Context(), symbol)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, pos)
}

// UpdatePositionRisk handles PUT /api/v1/positions/{symbol}/risk
func (h *Handler) UpdatePositionRisk(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	var req struct {
		StopLoss     decimal.Decimal `json:"stop_loss"`
		ProfitTarget decimal.Decimal `json:"profit_target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.store.UpdatePositionRisk(r.Context(), symbol, req.StopLoss, req.ProfitTarget); err != nil {
		respondStoreError(w, err)
		return
	}

	pos, err := h.store.GetPosition(r.Context(), symbol)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, pos)
}

// PlaceOrder handles POST /api/v1/orders
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req database.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	order, err := h.store.PlaceOrder(r.Context(), &req)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	// total_value is recomputed immediately after every fill; the
	// scheduled reconciler covers price moves between orders.
	if _, err := h.store.ReconcileTotalValue(r.Context()); err != nil {
		h.log.Warn().Err(err).Int64("order_id", order.ID).Msg("post-order reconcile failed")
	}

	if h.producer != nil {
		if err := h.producer.PublishOrderPlaced(r.Context(), order); err != nil {
			h.log.Warn().Err(err).Int64("order_id", order.ID).Msg("order event publish failed")
		}
	}

	if h.tracker != nil && order.Strategy != "" && order.Side == models.SideSell {
		if _, err := h.tracker.Update(r.Context(), order.Strategy); err != nil {
			h.log.Warn().Err(err).Str("strategy", order.Strategy).Msg("strategy metrics update failed")
		}
	}

	respondJSON(w, http.StatusCreated, order)
}

// GetOrders handles GET /api/v1/orders
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := database.OrderFilter{
		Symbol:   q.Get("symbol"),
		Side:     q.Get("side"),
		Strategy: q.Get("strategy"),
	}
	if s := q.Get("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "invalid since timestamp", http.StatusBadRequest)
			return
		}
		f.Since = since
	}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		f.Limit = limit
	}

	orders, err := h.store.GetOrders(r.Context(), f)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

// GetPerformance handles GET /api/v1/performance
func (h *Handler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	since := time.Now().AddDate(0, 0, -30)
	if s := r.URL.Query().Get("since"); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "invalid since timestamp", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	snaps, err := h.store.GetPerformanceHistory(r.Context(), since)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snaps)
}

// GetStrategies handles GET /api/v1/strategies
func (h *Handler) GetStrategies(w http.ResponseWriter, r *http.Request) {
	perfs, err := h.tracker.Leaderboard(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, perfs)
}

// GetStrategyStats handles GET /api/v1/strategies/stats
func (h *Handler) GetStrategyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.tracker.Aggregate(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// GetStrategyPerformance handles GET /api/v1/strategies/{id}/performance
func (h *Handler) GetStrategyPerformance(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	perf, err := h.store.GetStrategyPerformance(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, perf)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// respondStoreError maps store sentinel errors onto HTTP statuses.
func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrConstraint):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, database.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, database.ErrUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
