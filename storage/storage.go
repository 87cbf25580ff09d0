package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/evkuzin/planthealth/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a plant or a reading does not exist.
var ErrNotFound = fmt.Errorf("not found: %w", gorm.ErrRecordNotFound)

var roleName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type Storage struct {
	db     *gorm.DB
	driver string
}

func (s *Storage) Init(config *config.Config) error {
	logLevel := logger.Warn
	if config.Database.Debug {
		logLevel = logger.Info
	}
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	switch config.Database.Driver {
	case "", "postgres":
		dialector = postgres.Open(config.Database.DSN())
	case "sqlite":
		dialector = sqlite.Open(sqliteDSN(config.Database.DSN()))
	default:
		return fmt.Errorf("unknown database driver %q", config.Database.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: newLogger})
	if err != nil {
		return fmt.Errorf("cannot open database: %w", err)
	}
	s.db = db
	s.driver = dialector.Name()
	return s.Migrate(context.Background())
}

// sqliteDSN turns on foreign keys so that deleting a plant cascades.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

func (s *Storage) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	err := s.backfillNameKeys(db)
	if err != nil {
		return err
	}
	err = db.AutoMigrate(&Plant{}, &Reading{})
	if err != nil {
		return fmt.Errorf("cannot migrate schema: %w", err)
	}
	return nil
}

// backfillNameKeys fills name_key on databases created before the column
// existed, so that its unique index can be built.
func (s *Storage) backfillNameKeys(db *gorm.DB) error {
	m := db.Migrator()
	if !m.HasTable(&Plant{}) || m.HasColumn(&Plant{}, "NameKey") {
		return nil
	}
	if err := m.AddColumn(&Plant{}, "NameKey"); err != nil {
		return fmt.Errorf("cannot add name_key: %w", err)
	}
	var plants []Plant
	if err := db.Select("id", "name").Find(&plants).Error; err != nil {
		return fmt.Errorf("cannot backfill name_key: %w", err)
	}
	for _, p := range plants {
		err := db.Model(&Plant{}).Where("id = ?", p.ID).Update("name_key", nameKey(p.Name)).Error
		if err != nil {
			return fmt.Errorf("cannot backfill name_key: %w", err)
		}
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *Storage) CreatePlant(ctx context.Context, plant *Plant) error {
	plant.ID = 0
	tx := s.db.WithContext(ctx).Create(plant)
	if tx.Error != nil {
		return fmt.Errorf("cannot create plant %q: %w", plant.Name, tx.Error)
	}
	return nil
}

func (s *Storage) GetPlant(ctx context.Context, id uint) (*Plant, error) {
	var plant Plant
	err := s.db.WithContext(ctx).First(&plant, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &plant, nil
}

func (s *Storage) GetPlantByName(ctx context.Context, name string) (*Plant, error) {
	var plant Plant
	err := s.db.WithContext(ctx).
		Where("name_key = ?", nameKey(name)).
		First(&plant).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &plant, nil
}

func (s *Storage) ListPlants(ctx context.Context) ([]Plant, error) {
	var plants []Plant
	err := s.db.WithContext(ctx).Order("id").Find(&plants).Error
	if err != nil {
		return nil, fmt.Errorf("cannot list plants: %w", err)
	}
	return plants, nil
}

func (s *Storage) UpdatePlant(ctx context.Context, plant *Plant) error {
	if plant.ID == 0 {
		return ErrNotFound
	}
	plant.NameKey = nameKey(plant.Name)
	tx := s.db.WithContext(ctx).
		Model(plant).
		Select("Name", "NameKey", "Species", "Persona", "Personality", "Location", "MoistureThreshold").
		Updates(plant)
	if tx.Error != nil {
		return fmt.Errorf("cannot update plant %d: %w", plant.ID, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Storage) DeletePlant(ctx context.Context, id uint) error {
	tx := s.db.WithContext(ctx).Delete(&Plant{}, id)
	if tx.Error != nil {
		return fmt.Errorf("cannot delete plant %d: %w", id, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Storage) Put(ctx context.Context, reading *Reading) error {
	if reading.CreatedAt.IsZero() {
		reading.CreatedAt = time.Now()
	}
	reading.CreatedAt = reading.CreatedAt.UTC()
	tx := s.db.WithContext(ctx).Create(reading)
	return tx.Error
}

func (s *Storage) LatestReading(ctx context.Context, plantID uint) (*Reading, error) {
	var reading Reading
	err := s.db.WithContext(ctx).
		Where("plant_id = ?", plantID).
		Order("created_at desc, id desc").
		First(&reading).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &reading, nil
}

func (s *Storage) GetReadings(ctx context.Context, plantID uint, since time.Time) ([]Reading, error) {
	var readings []Reading
	err := s.db.WithContext(ctx).
		Where("plant_id = ? AND created_at >= ?", plantID, since.UTC()).
		Order("created_at asc, id asc").
		Find(&readings).Error
	if err != nil {
		return nil, fmt.Errorf("cannot get readings: %w", err)
	}
	return readings, nil
}

func (s *Storage) GetAvg(ctx context.Context, plantID uint, window time.Duration) (float64, error) {
	var avg sql.NullFloat64
	err := s.db.WithContext(ctx).
		Model(&Reading{}).
		Select("AVG(moisture)").
		Where("plant_id = ? AND created_at >= ?", plantID, time.Now().Add(-window).UTC()).
		Row().
		Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("cannot get average: %w", err)
	}
	if !avg.Valid {
		return 0, ErrNotFound
	}
	return avg.Float64, nil
}

// DailyMinimum returns the lowest moisture of every day in the last days
// calendar days (UTC), oldest first. Days without readings are omitted.
func (s *Storage) DailyMinimum(ctx context.Context, plantID uint, days int) ([]DailyValue, error) {
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(days - 1))

	var rows []dailyRow
	err := s.db.WithContext(ctx).
		Model(&Reading{}).
		Select(s.dayColumn()+" AS day, MIN(moisture) AS moisture").
		Where("plant_id = ? AND created_at >= ?", plantID, start).
		Group("day").
		Order("day").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("cannot get daily minimum: %w", err)
	}
	result := make([]DailyValue, 0, len(rows))
	for _, r := range rows {
		day, err := time.Parse(time.DateOnly, r.Day)
		if err != nil {
			return nil, fmt.Errorf("cannot parse day %q: %w", r.Day, err)
		}
		result = append(result, DailyValue{Day: day, Moisture: r.Moisture})
	}
	return result, nil
}

type dailyRow struct {
	Day      string
	Moisture float64
}

// dayColumn is the UTC calendar day of created_at as YYYY-MM-DD.
func (s *Storage) dayColumn() string {
	if s.driver == "sqlite" {
		return "date(created_at)"
	}
	return "to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')"
}

func (s *Storage) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC()
	tx := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&Reading{})
	if tx.Error != nil {
		return 0, fmt.Errorf("cannot purge readings: %w", tx.Error)
	}
	return tx.RowsAffected, nil
}

// Seed inserts the example plants when no plant exists yet and returns how
// many were created.
func (s *Storage) Seed(ctx context.Context) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Plant{}).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("cannot count plants: %w", err)
	}
	if count > 0 {
		return 0, nil
	}
	plants := make([]Plant, len(seedPlants))
	copy(plants, seedPlants)
	err = s.db.WithContext(ctx).Create(&plants).Error
	if err != nil {
		return 0, fmt.Errorf("cannot seed plants: %w", err)
	}
	return len(plants), nil
}

func (s *Storage) DropAll(ctx context.Context) error {
	err := s.db.WithContext(ctx).Migrator().DropTable(&Reading{}, &Plant{})
	if err != nil {
		return fmt.Errorf("cannot drop tables: %w", err)
	}
	return nil
}

func (s *Storage) GrantServiceAccount(ctx context.Context, role string) error {
	if s.driver != "postgres" {
		return fmt.Errorf("grants are not supported on %s", s.driver)
	}
	if !roleName.MatchString(role) {
		return fmt.Errorf("invalid role name %q", role)
	}
	db := s.db.WithContext(ctx)
	var database string
	err := db.Raw("SELECT current_database()").Scan(&database).Error
	if err != nil {
		return fmt.Errorf("cannot get database name: %w", err)
	}
	statements := []string{
		fmt.Sprintf(`GRANT CONNECT ON DATABASE %q TO %s`, database, role),
		fmt.Sprintf(`GRANT USAGE ON SCHEMA public TO %s`, role),
		fmt.Sprintf(`GRANT SELECT, INSERT, UPDATE ON plants TO %s`, role),
		fmt.Sprintf(`GRANT SELECT, INSERT, DELETE ON readings TO %s`, role),
		fmt.Sprintf(`GRANT USAGE, SELECT ON SEQUENCE plants_id_seq, readings_id_seq TO %s`, role),
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("cannot grant privileges to %s: %w", role, err)
		}
	}
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func NewStorage() Adapter {
	return &Storage{}
}
