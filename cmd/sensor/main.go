// Command sensor polls the soil probe and stores a reading per interval.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/evkuzin/planthealth/config"
	"github.com/evkuzin/planthealth/plant_station/impl"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ps := impl.NewPlantStation()
	err = ps.Init(conf, logger)
	if err != nil {
		logger.Errorf("cannot init plant station: %s", err.Error())
		os.Exit(1)
	}
	err = ps.Start(ctx)
	if err != nil {
		logger.Errorf("plant station failed: %s", err.Error())
		os.Exit(1)
	}
	logger.Info("all threads killed, shutdown...")
}
