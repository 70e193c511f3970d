package api

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	whatsappbot "PledgePay/bot/whatsapp"
	"PledgePay/internal/config"
	"PledgePay/internal/flowcrypt"
	"PledgePay/internal/http-server/handlers/errors"
	"PledgePay/internal/http-server/handlers/health"
	"PledgePay/internal/http-server/handlers/payment"
	"PledgePay/internal/http-server/handlers/webhook"
	"PledgePay/internal/http-server/middleware/timeout"
	"PledgePay/internal/lib/sl"
	"PledgePay/internal/ws"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

// New builds the router and serves it. Blocks until the listener fails.
func New(conf *config.Config, log *slog.Logger, bot *whatsappbot.WhatsAppBot,
	flows *flowcrypt.Service, hub *ws.Hub) error {

	server := Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}

	router := chi.NewRouter()
	router.Use(timeout.Timeout(15))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(render.SetContentType(render.ContentTypeJSON))

	router.NotFound(errors.NotFound(log))
	router.MethodNotAllowed(errors.NotAllowed(log))

	router.Get("/webhook", webhook.Verify(log, bot))
	router.Post("/webhook", webhook.Receive(log, bot, flows))
	router.Post("/payment-result", payment.Result(log))
	router.Get("/payment-return", payment.Return(log))
	router.Get("/health", health.Check(log, conf.Env))
	router.Get("/ws/payments", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, conf.Admin.DashboardToken, log, w, r)
	})

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:  router,
		ErrorLog: httpLog,
	}

	serverAddress := fmt.Sprintf("%s:%s", conf.Listen.BindIP, conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	server.log.Info("starting api server", slog.String("address", serverAddress))

	return server.httpServer.Serve(listener)
}
