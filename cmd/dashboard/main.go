// Command dashboard serves the moisture charts over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/evkuzin/planthealth/assistant"
	"github.com/evkuzin/planthealth/cache"
	"github.com/evkuzin/planthealth/config"
	"github.com/evkuzin/planthealth/dashboard"
	"github.com/evkuzin/planthealth/storage"
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
		logger.Warn("AI texts disabled - missing API key")
		ai = nil
	} else if err != nil {
		logger.Errorf("cannot init assistant: %s", err.Error())
		os.Exit(1)
	}

	c := cache.New(&conf.Redis)
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = dashboard.New(conf, store, c, ai, logger).Start(ctx)
	if err != nil {
		logger.Errorf("dashboard failed: %s", err.Error())
	}
	logger.Info("all threads killed, shutdown...")
}
