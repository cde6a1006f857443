// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"nexus-settlement/internal/pkg/logger"
	"nexus-settlement/internal/pkg/nacos"
)

// Config is the whole service configuration. The YAML file gives the base,
// environment variables override it, and Nacos can replace it at runtime.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Infra      InfraConfig      `yaml:"infra"`
	Settlement SettlementConfig `yaml:"settlement"`
}

type ServiceConfig struct {
	Name              string        `yaml:"name"`
	Port              int           `yaml:"port"`
	LogLevel          string        `yaml:"log_level"`
	LogPretty         bool          `yaml:"log_pretty"`
	ProcessingTimeout time.Duration `yaml:"processing_timeout"`
}

type InfraConfig struct {
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	MySQL     MySQLConfig     `yaml:"mysql"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	Nacos     NacosConfig     `yaml:"nacos"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type KafkaConfig struct {
	Brokers           []string `yaml:"brokers"`
	NotificationTopic string   `yaml:"notification_topic"`
	CascadeTopic      string   `yaml:"cascade_topic"`
	CascadeGroup      string   `yaml:"cascade_group"`
}

type RedisConfig struct {
	Addrs          []string      `yaml:"addrs"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
	PendingTTL     time.Duration `yaml:"pending_ttl"`
	CouponCacheTTL time.Duration `yaml:"coupon_cache_ttl"`
}

type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Migrate  bool   `yaml:"migrate"`
}

type ZookeeperConfig struct {
	Servers        []string      `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
	LockRoot       string        `yaml:"lock_root"`
}

type NacosConfig struct {
	ServerAddrs string `yaml:"server_addrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
	DataID      string `yaml:"data_id"`
}

// SettlementConfig holds the business defaults. site_settings rows override
// shipping and loyalty values key by key.
type SettlementConfig struct {
	// Store is "mysql" or "memory".
	Store           string                      `yaml:"store"`
	Shipping        map[string]map[string]int64 `yaml:"shipping"`
	FreeThreshold   int64                       `yaml:"free_threshold"`
	EarningRate     int64                       `yaml:"earning_rate"`
	RedemptionRate  int64                       `yaml:"redemption_rate"`
	LoyaltyAttempts int                         `yaml:"loyalty_attempts"`
	Cascade         CascadeConfig               `yaml:"cascade"`
}

type CascadeConfig struct {
	Attempts     int           `yaml:"attempts"`
	Backoff      time.Duration `yaml:"backoff"`
	MaxScheduled int           `yaml:"max_scheduled"`
	// Delay is how long a scheduled task waits per attempt before it runs.
	Delay        time.Duration `yaml:"delay"`
}

// DefaultConfig is used for every key the file and environment leave out.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:              "settlement-service",
			Port:              8080,
			LogLevel:          "info",
			ProcessingTimeout: 10 * time.Second,
		},
		Infra: InfraConfig{
			Kafka: KafkaConfig{
				NotificationTopic: "notifications",
				CascadeTopic:      "return-cascade-retry",
				CascadeGroup:      "settlement-cascade",
			},
			Redis: RedisConfig{
				IdempotencyTTL: 24 * time.Hour,
				PendingTTL:     30 * time.Second,
				CouponCacheTTL: time.Minute,
			},
			MySQL:     MySQLConfig{Host: "localhost", Port: 3306, User: "root", Database: "settlement"},
			Zookeeper: ZookeeperConfig{SessionTimeout: 5 * time.Second, LockRoot: "/settlement/locks"},
			Nacos:     NacosConfig{Group: nacos.DefaultGroup},
		},
		Settlement: SettlementConfig{
			Store: "memory",
			Shipping: map[string]map[string]int64{
				"local":         {"standard": 1500, "express": 3000},
				"national":      {"standard": 2500, "express": 4500},
				"international": {"air": 9000, "sea": 5000},
			},
			FreeThreshold:   50000,
			EarningRate:     1000,
			RedemptionRate:  10,
			LoyaltyAttempts: 3,
			Cascade:         CascadeConfig{Attempts: 3, Backoff: 100 * time.Millisecond, MaxScheduled: 5, Delay: 5 * time.Second},
		},
	}
}

var current atomic.Pointer[Config]

// GetCurrentConfig returns the live configuration snapshot.
func GetCurrentConfig() *Config {
	if c := current.Load(); c != nil {
		return c
	}
	return DefaultConfig()
}

var nacosConfigClient *nacos.Client

// Init loads the configuration: defaults, then the file named by CONFIG_FILE,
// then environment variables, then the Nacos config item when one is set.
func Init() *Config {
	cfg, err := Load(getEnv("CONFIG_FILE", "configs/settlement.yaml"))
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	applyEnv(cfg)
	current.Store(cfg)

	if cfg.Infra.Nacos.ServerAddrs != "" && cfg.Infra.Nacos.DataID != "" {
		if err := watchNacos(cfg); err != nil {
			logger.Logger.Error().Err(err).Msg("nacos config unavailable, keeping local configuration")
		}
	}

	logger.Init(cfg.Service.Name, cfg.Service.LogLevel, cfg.Service.LogPretty)
	return GetCurrentConfig()
}

// Load reads a YAML file over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return cfg, nil
}

// Clone returns a deep copy. Published snapshots are never written again.
func (c *Config) Clone() *Config {
	out := *c
	out.Infra.Kafka.Brokers = slices.Clone(c.Infra.Kafka.Brokers)
	out.Infra.Redis.Addrs = slices.Clone(c.Infra.Redis.Addrs)
	out.Infra.Zookeeper.Servers = slices.Clone(c.Infra.Zookeeper.Servers)
	if c.Settlement.Shipping != nil {
		out.Settlement.Shipping = make(map[string]map[string]int64, len(c.Settlement.Shipping))
		for zone, methods := range c.Settlement.Shipping {
			out.Settlement.Shipping[zone] = maps.Clone(methods)
		}
	}
	return &out
}

// Overlay parses a YAML document over a copy of base. base is left untouched.
func Overlay(base *Config, content string) (*Config, error) {
	next := base.Clone()
	if err := yaml.Unmarshal([]byte(content), next); err != nil {
		return nil, errors.Wrap(err, "parse remote config")
	}
	return next, nil
}

func watchNacos(base *Config) error {
	n := base.Infra.Nacos
	client, err := nacos.NewNacosClient(n.ServerAddrs, n.Namespace, n.Group)
	if err != nil {
		return err
	}
	nacosConfigClient = client

	apply := func(content string) {
		next, err := Overlay(GetCurrentConfig(), content)
		if err != nil {
			logger.Logger.Error().Err(err).Str("data_id", n.DataID).Msg("ignoring invalid nacos config")
			return
		}
		current.Store(next)
	}

	content, err := client.GetConfig(n.DataID)
	if err != nil {
		return err
	}
	if content != "" {
		apply(content)
	}
	return client.ListenConfig(n.DataID, apply)
}

func applyEnv(cfg *Config) {
	cfg.Service.Name = getEnv("SERVICE_NAME", cfg.Service.Name)
	cfg.Service.Port = getEnvInt("PORT", cfg.Service.Port)
	cfg.Service.LogLevel = getEnv("LOG_LEVEL", cfg.Service.LogLevel)
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)
	cfg.Infra.Kafka.Brokers = getEnvList("KAFKA_BROKERS", cfg.Infra.Kafka.Brokers)
	cfg.Infra.Redis.Addrs = getEnvList("REDIS_ADDRS", cfg.Infra.Redis.Addrs)
	cfg.Infra.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Infra.Redis.Password)
	cfg.Infra.MySQL.Host = getEnv("MYSQL_HOST", cfg.Infra.MySQL.Host)
	cfg.Infra.MySQL.Port = getEnvInt("MYSQL_PORT", cfg.Infra.MySQL.Port)
	cfg.Infra.MySQL.User = getEnv("MYSQL_USER", cfg.Infra.MySQL.User)
	cfg.Infra.MySQL.Password = getEnv("MYSQL_PASSWORD", cfg.Infra.MySQL.Password)
	cfg.Infra.MySQL.Database = getEnv("MYSQL_DATABASE", cfg.Infra.MySQL.Database)
	cfg.Infra.Zookeeper.Servers = getEnvList("ZOOKEEPER_SERVERS", cfg.Infra.Zookeeper.Servers)
	cfg.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", cfg.Infra.Nacos.ServerAddrs)
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", cfg.Infra.Nacos.Group)
	cfg.Infra.Nacos.DataID = getEnv("NACOS_DATA_ID", cfg.Infra.Nacos.DataID)
	cfg.Settlement.Store = getEnv("SETTLEMENT_STORE", cfg.Settlement.Store)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Logger.Warn().Str("key", key).Str("value", v).Msg("ignoring non-numeric environment value")
		return fallback
	}
	return n
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
