package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	Router *chi.Mux
}

func NewServer(handler *Handler, corsOrigins []string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observe(logger))
	r.Use(cors(corsOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/payment/initiate", handler.InitiatePayment)
		r.Get("/payment/status/{intent_id}", handler.GetPaymentStatus)
		r.Get("/users/{yona_id}/intents", handler.ListUserIntents)
		r.Post("/member/get-user-addresses", handler.GetUserAddresses)
		r.Get("/ledger/accounts/{address}/transactions", handler.GetAccountTransactions)

		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/descriptor-response", handler.DescriptorResponse)
			r.Post("/template-received-by-originator", handler.TemplateReceived)
			r.Post("/tr-accepted", handler.TRAccepted)
			r.Post("/payment-complete", handler.PaymentComplete)
		})
	})

	return &Server{Router: r}
}
