// Command bot relays Telegram messages to the plants.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/evkuzin/planthealth/assistant"
	"github.com/evkuzin/planthealth/bot"
	"github.com/evkuzin/planthealth/cache"
	"github.com/evkuzin/planthealth/config"
	"github.com/evkuzin/planthealth/dashboard"
	"github.com/evkuzin/planthealth/storage"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	conf, err := config.NewConfig(*configPath)
	if err != nil {
		logrus.Errorf("cannot read config: %s", err)
		os.Exit(1)
	}
	logger := config.NewLogger(conf)
	if !conf.Telegram.Enable {
		logger.Info("telegram bot is disabled")
		return
	}
	if conf.Telegram.Key == "" {
		logger.Error("TELEGRAM_BOT_TOKEN is not set")
		os.Exit(1)
	}

	store := storage.NewStorage()
	err = store.Init(conf)
	if err != nil {
		logger.Errorf("cannot init storage: %s", err.Error())
		os.Exit(1)
	}
	defer store.Close()

	var ai assistant.Assistant
	ai, err = assistant.New(conf, logger)
	if errors.Is(err, assistant.ErrDisabled) {
		logger.Warn("Chatbot disabled - missing API key")
		ai = nil
	} else if err != nil {
		logger.Errorf("cannot init assistant: %s", err.Error())
		os.Exit(1)
	}

	api, err := tgbotapi.NewBotAPI(conf.Telegram.Key)
	if err != nil {
		logger.Errorf("cannot init telegram: %s", err.Error())
		os.Exit(1)
	}
	api.Debug = conf.Telegram.Debug
	logger.Infof("Telegram authorized on account %s", api.Self.UserName)

	c := cache.New(&conf.Redis)
	defer c.Close()
	reports := dashboard.New(conf, store, c, ai, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = bot.New(conf, api, store, ai, reports, logger).Start(ctx)
	if err != nil {
		logger.Errorf("bot failed: %s", err.Error())
	}
	logger.Info("all threads killed, shutdown...")
}
