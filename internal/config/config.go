package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App         AppConfig         `yaml:"app"`
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Storage     StorageConfig     `yaml:"storage"`
	ExternalAPI ExternalAPIConfig `yaml:"external_api"`
	Sync        SyncConfig        `yaml:"sync"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Workers     WorkersConfig     `yaml:"workers"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// Driver is "mysql" or "sqlite3". Path is only used by sqlite3.
	Driver             string        `yaml:"driver"`
	Path               string        `yaml:"path"`
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	Charset            string        `yaml:"charset"`
	Loc                string        `yaml:"loc"`
	MaxConnections     int           `yaml:"max_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections"`
	ConnectionLifetime time.Duration `yaml:"connection_lifetime"`
}

type RedisConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PoolSize    int           `yaml:"pool_size"`
	SyncQueue   string        `yaml:"sync_queue"`
	ReportQueue string        `yaml:"report_queue"`
	DLQSuffix   string        `yaml:"dlq_suffix"`
	LockKey     string        `yaml:"lock_key"`
	LockTTL     time.Duration `yaml:"lock_ttl"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled      bool   `yaml:"enabled"`
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	UseSSL       bool   `yaml:"use_ssl"`
	ReportPrefix string `yaml:"report_prefix"`
}

type ExternalAPIConfig struct {
	APIDirectory APIDirectoryConfig `yaml:"api_directory"`
	Canvas       CanvasConfig       `yaml:"canvas"`
	MPathways    MPathwaysConfig    `yaml:"mpathways"`
}

// APIDirectoryConfig holds the gateway fronting both Canvas and M-Pathways.
type APIDirectoryConfig struct {
	BaseURL      string        `yaml:"base_url"`
	TokenURL     string        `yaml:"token_url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	Timeout      time.Duration `yaml:"timeout"`
}

type CanvasConfig struct {
	URLPrefix string `yaml:"url_prefix"`
	Scope     string `yaml:"scope"`
	PageSize  int    `yaml:"page_size"`
}

type MPathwaysConfig struct {
	ScoresPath string `yaml:"scores_path"`
	Scope      string `yaml:"scope"`
	SchemaName string `yaml:"schema_name"`
}

type SyncConfig struct {
	MaxReqAttempts int           `yaml:"max_req_attempts"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	ChunkSize      int           `yaml:"chunk_size"`
}

type ScheduleConfig struct {
	Spec       string `yaml:"spec"`
	RunOnStart bool   `yaml:"run_on_start"`
}

type WorkersConfig struct {
	Sync SyncWorkerConfig `yaml:"sync"`
}

type SyncWorkerConfig struct {
	Count int `yaml:"count"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	return LoadFile(configPath)
}

func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "placement-exams"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Charset == "" {
		c.Database.Charset = "utf8mb4"
	}
	if c.Database.Loc == "" {
		c.Database.Loc = "UTC"
	}
	if c.Redis.SyncQueue == "" {
		c.Redis.SyncQueue = "pe:sync"
	}
	if c.Redis.ReportQueue == "" {
		c.Redis.ReportQueue = "pe:reports"
	}
	if c.Redis.DLQSuffix == "" {
		c.Redis.DLQSuffix = ":dlq"
	}
	if c.Redis.LockKey == "" {
		c.Redis.LockKey = "pe:run-lock"
	}
	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = time.Hour
	}
	if c.Storage.S3.ReportPrefix == "" {
		c.Storage.S3.ReportPrefix = "reports"
	}

	api := &c.ExternalAPI
	if api.APIDirectory.Timeout == 0 {
		api.APIDirectory.Timeout = 60 * time.Second
	}
	if api.Canvas.URLPrefix == "" {
		api.Canvas.URLPrefix = "aa/CanvasReadOnly"
	}
	if api.Canvas.Scope == "" {
		api.Canvas.Scope = "canvasreadonly"
	}
	if api.Canvas.PageSize <= 0 {
		api.Canvas.PageSize = 50
	}
	if api.MPathways.ScoresPath == "" {
		api.MPathways.ScoresPath = "aa/SpanishPlacementScores/Scores"
	}
	if api.MPathways.Scope == "" {
		api.MPathways.Scope = "spanishplacementscores"
	}
	if api.MPathways.SchemaName == "" {
		api.MPathways.SchemaName = "putExamScore"
	}

	if c.Sync.MaxReqAttempts == 0 {
		c.Sync.MaxReqAttempts = 3
	}
	if c.Sync.ChunkSize <= 0 {
		c.Sync.ChunkSize = 100
	}
	if c.Schedule.Spec == "" {
		c.Schedule.Spec = "0 0 * * * *"
	}
	if c.Workers.Sync.Count <= 0 {
		c.Workers.Sync.Count = 1
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// MySQL DSN format: [username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
// parseTime is always on; the repository scans DATETIME columns into time.Time.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=true&loc=%s",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port,
		c.Database.Name, c.Database.Charset, c.Database.Loc)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
