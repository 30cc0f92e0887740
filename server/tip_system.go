package server

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"pixtip/billing"
	"pixtip/checkout"
	"pixtip/gateway"
	"pixtip/internal"
	"pixtip/internal/config"
	"pixtip/metrics"
	"pixtip/pusher"
	"pixtip/telegram"
)

type TipSystem struct {
	conf     *config.Config
	server   *Server
	manager  *checkout.Manager
	logger   *internal.Logger
	location *time.Location
}

func NewTipSystem(conf *config.Config) (*TipSystem, error) {
	ts := TipSystem{conf: conf}

	location, err := time.LoadLocation(conf.TimeZone)
	if err != nil {
		log.Printf("time zone initialization failed: %s; using UTC", err)
		location = time.UTC
	}
	ts.location = location

	logger := internal.NewLogger(location)
	logger.SetDebugMode(conf.IsDebug)
	ts.logger = logger

	var database *internal.MongoDB
	if conf.Mongo.Enabled {
		database, err = internal.NewMongoClient(conf)
		if err != nil {
			return nil, fmt.Errorf("mongodb setup failed: %s", err)
		}
		logger.SetDatabase(database)
	}

	var messageService *pusher.MessagePusher
	if conf.Pusher.Enabled {
		messageService, err = pusher.NewPusher(conf)
		if err != nil {
			log.Println("pusher setup failed", err)
		} else {
			messageService.SetLogger(logger)
			logger.SetMessageService(messageService)
		}
	}

	manager := checkout.NewManager(checkout.SettingsFromConfig(conf), func(accessToken string) checkout.Gateway {
		client := gateway.New(conf.Gateway.BaseUrl, accessToken, conf.GatewayTimeout())
		client.SetPayerDomain(conf.Gateway.PayerDomain)
		client.SetLogger(logger)
		return client
	})
	manager.SetLogger(logger)
	manager.SetExpiration(conf.SessionTTL(), conf.SweepInterval())
	manager.AddEventHandler(metrics.NewObserver())

	recorder := billing.NewRecorder()
	recorder.SetLogger(logger)
	if database != nil {
		manager.SetDatabase(database)
		recorder.SetDatabase(database)
	}
	manager.AddEventHandler(recorder)

	if messageService != nil {
		manager.AddEventHandler(messageService)
	}

	if conf.Telegram.Enabled {
		tgBot, err := telegram.NewBot(conf.Telegram.ApiKey)
		if err != nil {
			log.Println("telegram bot setup failed", err)
		} else {
			if database != nil {
				tgBot.SetDatabase(database)
			}
			tgBot.Start()
			manager.AddEventHandler(tgBot)
		}
	}

	ts.manager = manager
	ts.server = NewServer(conf, manager, logger)
	if database != nil {
		ts.server.SetLogReader(database)
	}
	return &ts, nil
}

// Start serves until SIGINT or SIGTERM, then closes every open session
func (ts *TipSystem) Start() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ts.manager.Start(ctx)

	go func() {
		if err := metrics.Listen(ctx, ts.conf); err != nil {
			ts.logger.Error("metrics server failed", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := ts.server.Shutdown(shutdownCtx); err != nil {
			ts.logger.Warn(fmt.Sprintf("server shutdown: %s", err))
		}
	}()

	ts.logger.FeatureEvent("Start", "", fmt.Sprintf("tip system started; time zone %s", ts.location))
	if err := ts.server.Start(); err != nil {
		ts.logger.Error("server start failed", err)
	}
	stop()
	ts.manager.CloseAll()
}
