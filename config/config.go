package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSqlite   = "sqlite"

	SensorSeesaw = "seesaw"
	SensorAnalog = "analog"
	SensorMock   = "mock"
)

type telegram struct {
	Key            string        `yaml:"key"`
	ChatID         int64         `yaml:"chat_id"`
	Debug          bool          `yaml:"debug"`
	Enable         bool          `yaml:"enable"`
	NotifyInterval time.Duration `yaml:"notify_interval"`
	Cooldown       time.Duration `yaml:"cooldown"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	HistoryLength  int           `yaml:"history_length"`
	HistoryExpiry  time.Duration `yaml:"history_expiry"`
}

type Database struct {
	Driver    string        `yaml:"driver"`
	URL       string        `yaml:"url"`
	Host      string        `yaml:"host"`
	Port      string        `yaml:"port"`
	User      string        `yaml:"user"`
	Password  string        `yaml:"password"`
	Database  string        `yaml:"database"`
	SSLMode   string        `yaml:"sslmode"`
	Retention time.Duration `yaml:"retention"`
	Debug     bool          `yaml:"debug"`
}

// DSN returns the connection string for the configured driver. An explicit
// URL always wins over the individual fields.
func (d *Database) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	if d.Driver == DriverSqlite {
		return d.Database
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		d.Host,
		d.User,
		d.Password,
		d.Database,
		d.Port,
		d.SSLMode)
}

type OpenAI struct {
	Key              string        `yaml:"key"`
	Model            string        `yaml:"model"`
	BaseURL          string        `yaml:"base_url"`
	MaxTokens        int           `yaml:"max_tokens"`
	Temperature      float32       `yaml:"temperature"`
	TopP             float32       `yaml:"top_p"`
	FrequencyPenalty float32       `yaml:"frequency_penalty"`
	Household        []string      `yaml:"household"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
}

type Sensor struct {
	Driver        string        `yaml:"driver"`
	Bus           string        `yaml:"bus"`
	Address       uint16        `yaml:"address"`
	PlantID       uint          `yaml:"plant_id"`
	Interval      time.Duration `yaml:"interval"`
	DryValue      int           `yaml:"dry_value"`
	WetValue      int           `yaml:"wet_value"`
	DryVolts      float64       `yaml:"dry_volts"`
	WetVolts      float64       `yaml:"wet_volts"`
	EnvAddress    uint16        `yaml:"env_address"`
	MetricsListen string        `yaml:"metrics_listen"`
}

type Dashboard struct {
	Listen      string `yaml:"listen"`
	Title       string `yaml:"title"`
	HistoryDays int    `yaml:"history_days"`
}

type MQTT struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

type Influx struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Database  *Database `yaml:"database"`
	Telegram  telegram  `yaml:"telegram"`
	OpenAI    OpenAI    `yaml:"openai"`
	Sensor    Sensor    `yaml:"sensor"`
	Dashboard Dashboard `yaml:"dashboard"`
	MQTT      MQTT      `yaml:"mqtt"`
	Influx    Influx    `yaml:"influx"`
	Redis     Redis     `yaml:"redis"`
	Log       Log       `yaml:"log"`
}

// NewConfig loads the env file for the current ENVIRONMENT, then the yaml file
// f (optional when empty), then applies defaults and environment overrides.
func NewConfig(f string) (*Config, error) {
	loadEnvFile()

	// zero is a meaningful sampling value, so these defaults go in before
	// the file is read instead of in setDefaults
	conf := Config{OpenAI: OpenAI{
		Temperature:      1.1,
		TopP:             1,
		FrequencyPenalty: 0.05,
	}}
	if f != "" {
		rawConf, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("cannot open a Config: %w", err)
		}
		err = yaml.Unmarshal(rawConf, &conf)
		if err != nil {
			return nil, fmt.Errorf("cannot unmarshall a Config: %w", err)
		}
	}
	if conf.Database == nil {
		conf.Database = &Database{}
	}
	conf.setDefaults()
	if err := conf.applyEnv(); err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid Config: %w", err)
	}
	return &conf, nil
}

func loadEnvFile() {
	envFile := "env/development.env"
	if os.Getenv("ENVIRONMENT") == "production" {
		envFile = "env/production.env"
	}
	// a missing env file is fine, the variables may be set directly
	_ = godotenv.Load(envFile)
}

func (c *Config) setDefaults() {
	db := c.Database
	if db.Driver == "" {
		db.Driver = DriverPostgres
	}
	if db.Port == "" {
		db.Port = "5432"
	}
	if db.SSLMode == "" {
		db.SSLMode = "require"
	}

	if c.Telegram.Cooldown == 0 {
		c.Telegram.Cooldown = 5 * time.Minute
	}
	if c.Telegram.RetryDelay == 0 {
		c.Telegram.RetryDelay = 2 * time.Second
	}
	if c.Telegram.HistoryLength == 0 {
		c.Telegram.HistoryLength = 10
	}
	if c.Telegram.HistoryExpiry == 0 {
		c.Telegram.HistoryExpiry = time.Hour
	}

	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
	if c.OpenAI.MaxTokens == 0 {
		c.OpenAI.MaxTokens = 200
	}
	if c.OpenAI.RetryDelay == 0 {
		c.OpenAI.RetryDelay = 2 * time.Second
	}
	if len(c.OpenAI.Household) == 0 {
		c.OpenAI.Household = []string{"Martina", "Vítězslav"}
	}
	if c.OpenAI.CacheTTL == 0 {
		c.OpenAI.CacheTTL = 6 * time.Hour
	}

	if c.Sensor.Driver == "" {
		c.Sensor.Driver = SensorSeesaw
	}
	if c.Sensor.Address == 0 {
		c.Sensor.Address = 0x36
	}
	if c.Sensor.EnvAddress == 0 {
		c.Sensor.EnvAddress = 0x76
	}
	if c.Sensor.PlantID == 0 {
		c.Sensor.PlantID = 1
	}
	if c.Sensor.Interval == 0 {
		c.Sensor.Interval = time.Minute
	}
	if c.Sensor.DryValue == 0 && c.Sensor.WetValue == 0 {
		c.Sensor.DryValue = 200
		c.Sensor.WetValue = 600
	}
	if c.Sensor.DryVolts == 0 && c.Sensor.WetVolts == 0 {
		c.Sensor.DryVolts = 2.8
		c.Sensor.WetVolts = 1.2
	}

	if c.Dashboard.Listen == "" {
		c.Dashboard.Listen = ":8501"
	}
	if c.Dashboard.Title == "" {
		c.Dashboard.Title = "Plant Health Dashboard"
	}
	if c.Dashboard.HistoryDays == 0 {
		c.Dashboard.HistoryDays = 30
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "planthealth"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "planthealth"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) applyEnv() error {
	db := c.Database
	setString(&db.URL, "DATABASE_URL")
	setString(&db.Driver, "DB_DRIVER")
	setString(&db.Host, "DB_HOST")
	setString(&db.Port, "DB_PORT")
	setString(&db.Database, "DB_NAME")
	setString(&db.User, "DB_USER")
	setString(&db.Password, "DB_PASSWORD")

	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.Key = v
		c.Telegram.Enable = true
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("cannot parse TELEGRAM_CHAT_ID: %w", err)
		}
		c.Telegram.ChatID = id
	}

	setString(&c.OpenAI.Key, "OPENAI_API_KEY")
	setString(&c.OpenAI.Key, "OPENAI_API_TOKEN")
	setString(&c.OpenAI.Model, "OPENAI_MODEL")

	if strings.EqualFold(os.Getenv("CLOUD_MODE"), "true") {
		c.Sensor.Driver = SensorMock
	}
	if v := os.Getenv("PLANT_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("cannot parse PLANT_ID: %w", err)
		}
		c.Sensor.PlantID = uint(id)
	}

	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Dashboard.Listen, "DASHBOARD_LISTEN")
	setString(&c.MQTT.Broker, "MQTT_BROKER")
	setString(&c.Influx.URL, "INFLUX_URL")
	setString(&c.Influx.Token, "INFLUX_TOKEN")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	return nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// Validate checks settings shared by every process. Process specific
// requirements (bot token, api key) are checked where they are used.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSqlite:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Sensor.Driver {
	case SensorSeesaw, SensorAnalog, SensorMock:
	default:
		return fmt.Errorf("unknown sensor driver %q", c.Sensor.Driver)
	}
	if c.Sensor.Interval <= 0 {
		return errors.New("sensor interval must be positive")
	}
	if c.Sensor.DryValue >= c.Sensor.WetValue {
		return errors.New("sensor dry_value must be lower than wet_value")
	}
	if c.Sensor.DryVolts == c.Sensor.WetVolts {
		return errors.New("sensor dry_volts and wet_volts must differ")
	}
	if c.Database.Retention < 0 {
		return errors.New("database retention cannot be negative")
	}
	return nil
}
