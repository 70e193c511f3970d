package main

import (
	"flag"
	"log/slog"
	"os"
	"time"

	"PledgePay/bot"
	"PledgePay/bot/dialogue"
	"PledgePay/bot/payment"
	"PledgePay/bot/whatsapp"
	"PledgePay/internal/config"
	repository "PledgePay/internal/database"
	"PledgePay/internal/database/memory"
	"PledgePay/internal/flowcrypt"
	"PledgePay/internal/http-server/api"
	"PledgePay/internal/lib/logger"
	"PledgePay/internal/lib/sl"
	"PledgePay/internal/reaper"
	"PledgePay/internal/reports"
	"PledgePay/internal/ws"
)

// datastore is everything the bot persists, satisfied by both the Mongo
// repository and the in-memory store.
type datastore interface {
	dialogue.SessionStore
	dialogue.DedupFilter
	dialogue.CustomTypeStore
	dialogue.VolunteerStore
	payment.Ledger
	reports.Ledger
	reaper.Housekeeping
}

func main() {

	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	lg := logger.SetupLogger(conf.Env, *logPath)

	// Route error-level records to the admin's Telegram chat if enabled
	if conf.Telegram.Enabled {
		tgBot, err := bot.NewTgBot(conf.Telegram.ApiKey, conf.Telegram.AdminId, lg)
		if err != nil {
			lg.Error("failed to initialize telegram bot", sl.Err(err))
		} else {
			lg = logger.SetupTelegramHandler(lg, tgBot, slog.LevelError)
			lg.Info("telegram alerts initialized")
		}
	}

	lg.Info("starting pledgepay", slog.String("config", *configPath), slog.String("env", conf.Env))
	lg.Debug("debug messages enabled")

	var store datastore
	if conf.Mongo.Enabled {
		db, err := repository.NewMongoClient(conf, lg)
		if err != nil || db == nil {
			lg.Error("mongo client", sl.Err(err))
			os.Exit(1)
		}
		store = db
		lg.With(
			slog.String("host", conf.Mongo.Host),
			slog.String("port", conf.Mongo.Port),
			slog.String("database", conf.Mongo.Database),
		).Info("mongo client initialized")
	} else {
		store = memory.NewStore()
		lg.Warn("mongo disabled, using in-memory store; state is lost on restart")
	}

	waBot := whatsapp.NewWhatsAppBot(conf, lg)

	hub := ws.NewHub(lg)
	go hub.Run()

	gateway := payment.NewGateway(conf, lg)
	coordinator := payment.NewCoordinator(gateway, store, store, waBot, hub,
		conf.Admin.FinancePhone, lg)

	reportBuilder := reports.NewBuilder(store, lg)
	adminHandler := dialogue.NewAdminHandler(waBot, store, store, reportBuilder, lg)

	engine := dialogue.NewEngine(store, store, waBot, adminHandler,
		conf.IsAdmin, conf.IsBotNumber,
		time.Duration(conf.Session.TimeoutMinutes)*time.Minute, lg)
	engine.RegisterWorkflow(dialogue.NewStartWorkflow())
	engine.RegisterWorkflow(dialogue.NewDonationWorkflow(store, coordinator, conf.Admin.AdminPhone))
	engine.RegisterWorkflow(dialogue.NewRegistrationWorkflow(store))
	waBot.SetHandler(engine)

	var flows *flowcrypt.Service
	if conf.Flow.PrivateKeyPath != "" {
		var err error
		flows, err = flowcrypt.NewService(conf.Flow.PrivateKeyPath, conf.Flow.Passphrase, lg)
		if err != nil {
			lg.Warn("flow crypto disabled", sl.Err(err))
			flows = nil
		}
	}

	idleReaper := reaper.New(store, store, waBot,
		time.Duration(conf.Session.WarnMinutes)*time.Minute,
		time.Duration(conf.Session.TimeoutMinutes)*time.Minute,
		time.Duration(conf.Session.DedupWindowMinutes)*time.Minute,
		lg)
	if err := idleReaper.Start(); err != nil {
		lg.Error("failed to start reaper", sl.Err(err))
		os.Exit(1)
	}
	defer idleReaper.Stop()

	// *** blocking start with http server ***
	if err := api.New(conf, lg, waBot, flows, hub); err != nil {
		lg.Error("api server", sl.Err(err))
		os.Exit(1)
	}
}
