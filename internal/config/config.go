// Package config loads konarr-core's configuration: a base YAML file merged
// with environment variables prefixed KONARR_, split into the subtrees the
// agent and server halves of the system care about.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig holds the persisted-state connection settings (spec §6).
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	Token           string        `mapstructure:"token"`
	Driver          string        `mapstructure:"driver"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ServerConfig holds the server-side settings.
type ServerConfig struct {
	Secret      string `mapstructure:"secret"`
	Domain      string `mapstructure:"domain"`
	Port        int    `mapstructure:"port"`
	Scheme      string `mapstructure:"scheme"`
	CORS        bool   `mapstructure:"cors"`
	FrontendDir string `mapstructure:"frontend_path"`
	APIPrefix   string `mapstructure:"api_prefix"`

	// DataDir is the root of all on-disk state this core owns: the advisory
	// DB mirror (<data_dir>/grypedb/<version>/vulnerability.db) and any
	// legacy on-disk SBOM files (<data_dir>/sboms/).
	DataDir string `mapstructure:"data_dir"`
}

// AgentConfig holds the agent-side settings.
type AgentConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	Host            string `mapstructure:"host"`
	Create          bool   `mapstructure:"create"`
	Token           string `mapstructure:"token"`
	Monitoring      bool   `mapstructure:"monitoring"`
	DockerSocket    string `mapstructure:"docker_socket"`
	Tool            string `mapstructure:"tool"`
	ToolAutoInstall bool   `mapstructure:"tool_auto_install"`
	ToolAutoUpdate  bool   `mapstructure:"tool_auto_update"`
}

// SessionsConfig holds per-role session lifetimes, in hours.
type SessionsConfig struct {
	Expires map[string]int `mapstructure:"expires"`
}

// CacheConfig configures the optional shared Redis tier in front of
// catalogue classification (internal/cache). Address
// empty means no L2 is configured and the fleet falls back to per-process
// LRU only.
type CacheConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	Database     int           `mapstructure:"database"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
	L1MaxSize    int           `mapstructure:"l1_max_size"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
}

// BlobConfig configures the legacy on-disk SBOM migration store (spec §9).
// Backend is "local" (default) or "s3".
type BlobConfig struct {
	Backend string `mapstructure:"backend"`

	LocalDir string `mapstructure:"local_dir"`

	S3Region           string        `mapstructure:"s3_region"`
	S3Bucket           string        `mapstructure:"s3_bucket"`
	S3Endpoint         string        `mapstructure:"s3_endpoint"`
	S3ForcePathStyle   bool          `mapstructure:"s3_force_path_style"`
	S3UploadPartSize   int64         `mapstructure:"s3_upload_part_size"`
	S3DownloadPartSize int64         `mapstructure:"s3_download_part_size"`
	S3Concurrency      int           `mapstructure:"s3_concurrency"`
	S3RequestTimeout   time.Duration `mapstructure:"s3_request_timeout"`
}

// TasksConfig controls the background orchestrator's tick period.
type TasksConfig struct {
	Period time.Duration `mapstructure:"period"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// Config is the complete application configuration tree.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Sessions SessionsConfig `mapstructure:"sessions"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Tasks    TasksConfig    `mapstructure:"tasks"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

const envPrefix = "KONARR"

// Load reads configuration from a YAML file (if present) and overlays
// KONARR_-prefixed environment variables, matching spec §6: per-subtree env
// vars such as KONARR_DB_PATH, KONARR_SERVER_DOMAIN, KONARR_AGENT_TOKEN.
// Every key is also read under its full dotted path with dots turned into
// underscores (KONARR_DATABASE_PATH); for database.* keys that form wins
// when both it and the KONARR_DB_* name are set.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath == "" {
		configPath = os.Getenv("KONARR_CONFIG_FILE")
	}
	if configPath == "" {
		configPath = "konarr.yaml"
	}
	v.SetConfigFile(configPath)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"path", "token", "driver", "max_open_conns", "max_idle_conns", "conn_max_lifetime"} {
		_ = v.BindEnv("database."+key, envPrefix+"_DB_"+strings.ToUpper(key))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "konarr.db")
	v.SetDefault("database.token", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("server.secret", "")
	v.SetDefault("server.domain", "localhost")
	v.SetDefault("server.frontend_path", "")
	v.SetDefault("server.port", 9000)
	v.SetDefault("server.scheme", "http")
	v.SetDefault("server.cors", false)
	v.SetDefault("server.api_prefix", "/api")
	v.SetDefault("server.data_dir", "/var/lib/konarr")

	v.SetDefault("agent.project_id", "")
	v.SetDefault("agent.host", "")
	v.SetDefault("agent.token", "")
	v.SetDefault("agent.monitoring", false)
	v.SetDefault("agent.create", false)
	v.SetDefault("agent.docker_socket", "/var/run/docker.sock")
	v.SetDefault("agent.tool", "syft")
	v.SetDefault("agent.tool_auto_install", true)
	v.SetDefault("agent.tool_auto_update", false)

	v.SetDefault("sessions.expires", map[string]int{
		"admin": 24,
		"user":  24 * 7,
		"agent": 24 * 30,
	})

	v.SetDefault("cache.address", "")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.database", 0)
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.dial_timeout", 5*time.Second)
	v.SetDefault("cache.read_timeout", 3*time.Second)
	v.SetDefault("cache.write_timeout", 3*time.Second)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.min_idle_conns", 2)
	v.SetDefault("cache.pool_timeout", 4*time.Second)
	v.SetDefault("cache.l1_max_size", 4096)
	v.SetDefault("cache.default_ttl", 15*time.Minute)

	v.SetDefault("blob.backend", "local")
	v.SetDefault("blob.local_dir", "/var/lib/konarr/sboms")
	v.SetDefault("blob.s3_region", "")
	v.SetDefault("blob.s3_bucket", "")
	v.SetDefault("blob.s3_endpoint", "")
	v.SetDefault("blob.s3_force_path_style", false)
	v.SetDefault("blob.s3_upload_part_size", 5*1024*1024)
	v.SetDefault("blob.s3_download_part_size", 5*1024*1024)
	v.SetDefault("blob.s3_concurrency", 4)
	v.SetDefault("blob.s3_request_timeout", 30*time.Second)

	v.SetDefault("tasks.period", 60*time.Minute)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.address", ":9090")
}
