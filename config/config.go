package config

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"healthcheckin-agent"`

	// 远端打卡 API 配置
	APIBaseURL string        `env:"API_BASE_URL" envDefault:"http://localhost:8080"`
	APIToken   string        `env:"API_TOKEN"`
	APITimeout time.Duration `env:"API_TIMEOUT" envDefault:"10s"`

	// 同步配置
	WeatherCacheTTL     time.Duration `env:"WEATHER_CACHE_TTL" envDefault:"30m"`
	RefreshInterval     time.Duration `env:"REFRESH_INTERVAL" envDefault:"10m"`
	SchemaCacheTTL      time.Duration `env:"SCHEMA_CACHE_TTL" envDefault:"1h"`
	CelebrationDuration time.Duration `env:"CELEBRATION_DURATION" envDefault:"3s"`
	PointsPopupDuration time.Duration `env:"POINTS_POPUP_DURATION" envDefault:"4s"`
	LocationGracePeriod time.Duration `env:"LOCATION_GRACE_PERIOD" envDefault:"3s"`
	FallbackLatitude    float64       `env:"FALLBACK_LATITUDE" envDefault:"37.7749"`
	FallbackLongitude   float64       `env:"FALLBACK_LONGITUDE" envDefault:"-122.4194"`

	// 定位配置，为空表示设备尚未给出坐标
	GeoLatitude  string `env:"GEO_LATITUDE"`
	GeoLongitude string `env:"GEO_LONGITUDE"`

	// Redis 配置
	RedisEnabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"hci"`

	// RabbitMQ 配置
	RabbitMQEnabled  bool   `env:"RABBITMQ_ENABLED" envDefault:"false"`
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`
	EventExchange    string `env:"EVENT_EXCHANGE" envDefault:"checkin.events"`

	// PostgreSQL 配置，用于本地归档提交记录
	DatabaseEnabled    bool   `env:"DATABASE_ENABLED" envDefault:"false"`
	PostgreSQLHost     string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort     string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser     string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase string `env:"POSTGRESQL_DATABASE" envDefault:"healthcheckin"`
	PostgreSQLSchema   string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode  string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle  int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"5"`
	PostgreSQLMaxOpen  int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"20"`

	// 链路追踪 / 指标
	OTelEnabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint    string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4317"`
	OTelSampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"0.1"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`
}

func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	cfg, err := Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	Cfg = cfg
}

// Load 从环境变量解析并校验配置
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.WeatherCacheTTL <= 0 {
		return fmt.Errorf("WEATHER_CACHE_TTL must be positive, got %s", c.WeatherCacheTTL)
	}
	if c.SchemaCacheTTL <= 0 {
		return fmt.Errorf("SCHEMA_CACHE_TTL must be positive, got %s", c.SchemaCacheTTL)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL must be positive, got %s", c.RefreshInterval)
	}
	if c.CelebrationDuration <= 0 || c.PointsPopupDuration <= 0 {
		return fmt.Errorf("CELEBRATION_DURATION and POINTS_POPUP_DURATION must be positive")
	}
	if c.LocationGracePeriod < 0 {
		return fmt.Errorf("LOCATION_GRACE_PERIOD must not be negative, got %s", c.LocationGracePeriod)
	}
	if c.FallbackLatitude < -90 || c.FallbackLatitude > 90 || c.FallbackLongitude < -180 || c.FallbackLongitude > 180 {
		return fmt.Errorf("fallback coordinate out of range: %f,%f", c.FallbackLatitude, c.FallbackLongitude)
	}
	if (c.GeoLatitude == "") != (c.GeoLongitude == "") {
		return fmt.Errorf("GEO_LATITUDE and GEO_LONGITUDE must be set together")
	}
	if _, _, _, err := c.DeviceCoordinate(); err != nil {
		return err
	}

	if c.APIToken == "" {
		log.Printf("WARN: API_TOKEN is not set, remote API calls will be unauthenticated")
	}

	return nil
}

// DeviceCoordinate 返回配置中的设备坐标，ok=false 表示尚未提供
func (c *Config) DeviceCoordinate() (lat, lon float64, ok bool, err error) {
	if c.GeoLatitude == "" || c.GeoLongitude == "" {
		return 0, 0, false, nil
	}
	if lat, err = strconv.ParseFloat(c.GeoLatitude, 64); err != nil {
		return 0, 0, false, fmt.Errorf("invalid GEO_LATITUDE %q: %w", c.GeoLatitude, err)
	}
	if lon, err = strconv.ParseFloat(c.GeoLongitude, 64); err != nil {
		return 0, 0, false, fmt.Errorf("invalid GEO_LONGITUDE %q: %w", c.GeoLongitude, err)
	}
	return lat, lon, true, nil
}

func (c *Config) GetDSN() string {
	return "host=" + c.PostgreSQLHost +
		" port=" + c.PostgreSQLPort +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
