package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	f := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(f, []byte(body), 0o600))
	return f
}

func TestNewConfigDefaults(t *testing.T) {
	conf, err := NewConfig("")
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, conf.Database.Driver)
	assert.Equal(t, "require", conf.Database.SSLMode)
	assert.Equal(t, SensorSeesaw, conf.Sensor.Driver)
	assert.Equal(t, uint16(0x36), conf.Sensor.Address)
	assert.Equal(t, time.Minute, conf.Sensor.Interval)
	assert.Equal(t, 200, conf.Sensor.DryValue)
	assert.Equal(t, 600, conf.Sensor.WetValue)
	assert.Equal(t, ":8501", conf.Dashboard.Listen)
	assert.Equal(t, "gpt-4o-mini", conf.OpenAI.Model)
	assert.Equal(t, 200, conf.OpenAI.MaxTokens)
	assert.Equal(t, 10, conf.Telegram.HistoryLength)
	assert.Equal(t, time.Hour, conf.Telegram.HistoryExpiry)
	assert.Equal(t, 5*time.Minute, conf.Telegram.Cooldown)
	assert.InDelta(t, 1.1, conf.OpenAI.Temperature, 0.0001)
	assert.InDelta(t, 0.05, conf.OpenAI.FrequencyPenalty, 0.0001)
	assert.InDelta(t, 1, conf.OpenAI.TopP, 0.0001)
}

func TestNewConfigKeepsZeroSampling(t *testing.T) {
	f := writeConfig(t, "openai:\n  temperature: 0\n  frequency_penalty: 0\n")
	conf, err := NewConfig(f)
	require.NoError(t, err)
	assert.Zero(t, conf.OpenAI.Temperature)
	assert.Zero(t, conf.OpenAI.FrequencyPenalty)
	assert.InDelta(t, 1, conf.OpenAI.TopP, 0.0001)
}

func TestNewConfigFromFile(t *testing.T) {
	f := writeConfig(t, `
database:
  driver: sqlite
  database: plants.db
  retention: 720h
telegram:
  key: file-token
  chat_id: -100
sensor:
  driver: mock
  plant_id: 2
  interval: 30s
dashboard:
  listen: ":9000"
`)
	conf, err := NewConfig(f)
	require.NoError(t, err)

	assert.Equal(t, DriverSqlite, conf.Database.Driver)
	assert.Equal(t, "plants.db", conf.Database.DSN())
	assert.Equal(t, 720*time.Hour, conf.Database.Retention)
	assert.Equal(t, "file-token", conf.Telegram.Key)
	assert.Equal(t, int64(-100), conf.Telegram.ChatID)
	assert.Equal(t, SensorMock, conf.Sensor.Driver)
	assert.Equal(t, uint(2), conf.Sensor.PlantID)
	assert.Equal(t, 30*time.Second, conf.Sensor.Interval)
	assert.Equal(t, ":9000", conf.Dashboard.Listen)
}

func TestNewConfigEnvOverrides(t *testing.T) {
	f := writeConfig(t, `
telegram:
  key: file-token
`)
	t.Setenv("DATABASE_URL", "postgres://svc:secret@db:5432/plants")
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("TELEGRAM_CHAT_ID", "12345")
	t.Setenv("OPENAI_API_TOKEN", "sk-test")
	t.Setenv("CLOUD_MODE", "true")
	t.Setenv("PLANT_ID", "7")

	conf, err := NewConfig(f)
	require.NoError(t, err)

	assert.Equal(t, "postgres://svc:secret@db:5432/plants", conf.Database.DSN())
	assert.Equal(t, "env-token", conf.Telegram.Key)
	assert.True(t, conf.Telegram.Enable)
	assert.Equal(t, int64(12345), conf.Telegram.ChatID)
	assert.Equal(t, "sk-test", conf.OpenAI.Key)
	assert.Equal(t, SensorMock, conf.Sensor.Driver)
	assert.Equal(t, uint(7), conf.Sensor.PlantID)
}

func TestNewConfigErrors(t *testing.T) {
	_, err := NewConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = NewConfig(writeConfig(t, "database: [broken"))
	assert.Error(t, err)

	_, err = NewConfig(writeConfig(t, "database:\n  driver: mysql\n"))
	assert.ErrorContains(t, err, "unknown database driver")

	_, err = NewConfig(writeConfig(t, "sensor:\n  dry_value: 600\n  wet_value: 200\n"))
	assert.ErrorContains(t, err, "dry_value")

	t.Setenv("TELEGRAM_CHAT_ID", "not-a-number")
	_, err = NewConfig("")
	assert.ErrorContains(t, err, "TELEGRAM_CHAT_ID")
}

func TestDSNFromParts(t *testing.T) {
	db := &Database{Driver: DriverPostgres, Host: "localhost", Port: "5432", User: "u", Password: "p", Database: "plants", SSLMode: "disable"}
	assert.Equal(t, "host=localhost user=u password=p dbname=plants port=5432 sslmode=disable", db.DSN())
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger(&Config{Log: Log{Level: "debug", Format: "json"}})
	assert.Equal(t, logrus.DebugLevel, logger.Level)
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	logger = NewLogger(&Config{Log: Log{Level: "nonsense"}})
	assert.Equal(t, logrus.InfoLevel, logger.Level)
}
