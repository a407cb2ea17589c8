package routes

import (
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"github.com/marketloop/wallet-service/internal/auth"
	"github.com/marketloop/wallet-service/internal/middleware"
	"github.com/marketloop/wallet-service/internal/wallet"
	"github.com/marketloop/wallet-service/pkg/config"
	"github.com/marketloop/wallet-service/pkg/logger"
)

func RegisterRoutes(r *mux.Router, cfg config.Config, walletHandler *wallet.Handler) http.Handler {
	r.Use(middleware.LoggingMiddleware)
	r.Use(middleware.MetricsMiddleware)

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Money-moving public endpoints get a per-IP limiter.
	limiter := middleware.NewRateLimiter(rate.Limit(5), 10)

	webhookR := r.PathPrefix("/api/webhooks").Subrouter()
	webhookR.Use(limiter.Limit)
	webhookR.HandleFunc("/payment-gateway", walletHandler.GatewayWebhook).Methods("POST")

	walletR := r.PathPrefix("/api/wallets").Subrouter()
	walletR.Use(auth.JWTMiddleware(cfg))
	walletR.Handle("/{userId}/topup", limiter.Limit(http.HandlerFunc(walletHandler.InitiateTopup))).Methods("POST")
	walletR.HandleFunc("/{userId}/balance", walletHandler.GetBalance).Methods("GET")
	walletR.HandleFunc("/{userId}/transactions", walletHandler.ListTransactions).Methods("GET")

	// Internal surface for the order service.
	internalR := r.PathPrefix("/api/internal/wallets").Subrouter()
	internalR.Use(auth.JWTMiddleware(cfg))
	internalR.HandleFunc("/{userId}/debit", walletHandler.DebitForOrder).Methods("POST")
	internalR.HandleFunc("/{userId}/credit", walletHandler.CreditForRefund).Methods("POST")

	adminR := r.PathPrefix("/api/admin").Subrouter()
	adminR.Use(auth.JWTMiddleware(cfg))
	adminR.Use(auth.RequireAdmin)
	adminR.HandleFunc("/wallets", walletHandler.ListWallets).Methods("GET")
	adminR.HandleFunc("/wallets/{userId}/adjust", walletHandler.AdjustBalance).Methods("POST")
	adminR.HandleFunc("/wallets/{userId}/status", walletHandler.SetWalletStatus).Methods("PATCH")
	adminR.HandleFunc("/transactions/{id}/rollback", walletHandler.RollbackTransaction).Methods("POST")

	if cfg.Env != "production" {
		r.HandleFunc("/swagger.yaml", func(w http.ResponseWriter, r *http.Request) {
			content, err := os.ReadFile("docs/swagger.yaml")
			if err != nil {
				logger.Error("Failed to read swagger.yaml", logger.Fields{"error": err.Error()})
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/yaml")
			w.Write(content)
		})

		r.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
			httpSwagger.URL("/swagger.yaml"),
		))
		logger.Info("Swagger documentation enabled at /swagger/index.html")
	}

	corsObj := handlers.CORS(
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "x-gateway-signature"}),
	)

	return corsObj(r)
}
