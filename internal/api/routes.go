package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	// Account and positions
	api.HandleFunc("/account", handler.GetAccount).Methods("GET")
	api.HandleFunc("/positions", handler.GetPositions).Methods("GET")
	api.HandleFunc("/positions/{symbol}", handler.GetPosition).Methods("GET")
	api.HandleFunc("/positions/{symbol}/risk", handler.UpdatePositionRisk).Methods("PUT")

	// Orders
	api.HandleFunc("/orders", handler.GetOrders).Methods("GET")
	api.HandleFunc("/orders", handler.PlaceOrder).Methods("POST")

	// Performance history and strategy metrics
	api.HandleFunc("/performance", handler.GetPerformance).Methods("GET")
	api.HandleFunc("/strategies", handler.GetStrategies).Methods("GET")
	api.HandleFunc("/strategies/stats", handler.GetStrategyStats).Methods("GET")
	api.HandleFunc("/strategies/{id}/performance", handler.GetStrategyPerformance).Methods("GET")

	return r
}
