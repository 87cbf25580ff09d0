package storage

import (
	"context"
	"time"

	"github.com/evkuzin/planthealth/config"
)

type Adapter interface {
	Init(config *config.Config) error
	Migrate(ctx context.Context) error

	CreatePlant(ctx context.Context, plant *Plant) error
	GetPlant(ctx context.Context, id uint) (*Plant, error)
	GetPlantByName(ctx context.Context, name string) (*Plant, error)
	ListPlants(ctx context.Context) ([]Plant, error)
	UpdatePlant(ctx context.Context, plant *Plant) error
	DeletePlant(ctx context.Context, id uint) error

	Put(ctx context.Context, reading *Reading) error
	LatestReading(ctx context.Context, plantID uint) (*Reading, error)
	GetReadings(ctx context.Context, plantID uint, since time.Time) ([]Reading, error)
	GetAvg(ctx context.Context, plantID uint, window time.Duration) (float64, error)
	DailyMinimum(ctx context.Context, plantID uint, days int) ([]DailyValue, error)
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)

	Seed(ctx context.Context) (int, error)
	DropAll(ctx context.Context) error
	GrantServiceAccount(ctx context.Context, role string) error
	Ping(ctx context.Context) error
	Close() error
}
