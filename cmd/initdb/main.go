// Command initdb creates the schema, seeds example plants and grants a
// service account access to the tables.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/evkuzin/planthealth/config"
	"github.com/evkuzin/planthealth/storage"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	drop := flag.Bool("drop", false, "drop all tables before migrating")
	seed := flag.Bool("seed", true, "insert example plants into an empty database")
	grant := flag.String("grant", "", "role to grant table privileges to (postgres only)")
	flag.Parse()

	conf, err := config.NewConfig(*configPath)
	if err != nil {
		logrus.Errorf("cannot read config: %s", err)
		os.Exit(1)
	}
	logger := config.NewLogger(conf)
	ctx := context.Background()

	store := storage.NewStorage()
	err = store.Init(conf)
	if err != nil {
		logger.Errorf("cannot init storage: %s", err.Error())
		os.Exit(1)
	}
	defer store.Close()

	if *drop {
		logger.Warn("dropping all tables")
		if err := store.DropAll(ctx); err != nil {
			logger.Error(err)
			os.Exit(1)
		}
		if err := store.Migrate(ctx); err != nil {
			logger.Error(err)
			os.Exit(1)
		}
	}
	logger.Info("schema is up to date")

	if *seed {
		n, err := store.Seed(ctx)
		if err != nil {
			logger.Error(err)
			os.Exit(1)
		}
		logger.Infof("seeded %d plants", n)
	}

	if *grant != "" {
		if err := store.GrantServiceAccount(ctx, *grant); err != nil {
			logger.Error(err)
			os.Exit(1)
		}
		logger.Infof("granted privileges to %s", *grant)
	}
}
