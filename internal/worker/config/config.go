package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"token-analyzer/pkg/logger"
)

const envPrefix = "ANALYZER"

// Config 定义整个配置的结构
type Config struct {
	Log           LogConfig           `mapstructure:"log"`
	Server        ServerConfig        `mapstructure:"server"`
	MirrorNode    MirrorNodeConfig    `mapstructure:"mirror_node"`
	RateLimiting  RateLimitingConfig  `mapstructure:"rate_limiting"`
	Analysis      AnalysisConfig      `mapstructure:"analysis"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Monitor       MonitorConfig       `mapstructure:"monitor"`
	Schedule      ScheduleConfig      `mapstructure:"schedule"`
}

// LogConfig Log 日志配置
type LogConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// MirrorNodeConfig 镜像节点 REST 接口
type MirrorNodeConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RateLimit  int           `mapstructure:"rate_limit"` // 每分钟
	UserAgent  string        `mapstructure:"user_agent"`
}

type RateLimitingConfig struct {
	PageSize           int           `mapstructure:"page_size"`
	HolderBatchSize    int           `mapstructure:"holder_batch_size"`
	ProcessingDelay    time.Duration `mapstructure:"processing_delay"`
	MinRequestInterval time.Duration `mapstructure:"min_request_interval"`
	GatewayMaxDelay    time.Duration `mapstructure:"gateway_max_delay"`
	ThrottleMaxDelay   time.Duration `mapstructure:"throttle_max_delay"`
	ThrottleMaxRetries int           `mapstructure:"throttle_max_retries"`
	TxBackoffBase      time.Duration `mapstructure:"tx_backoff_base"`
	TxBackoffMax       time.Duration `mapstructure:"tx_backoff_max"`
	HolderRetryStep    time.Duration `mapstructure:"holder_retry_step"`
}

type AnalysisConfig struct {
	WindowDays           int           `mapstructure:"window_days"`
	StrictHolders        bool          `mapstructure:"strict_holders"`
	Incremental          bool          `mapstructure:"incremental"`
	TransactionWriteMode string        `mapstructure:"transaction_write_mode"` // append | rewrite
	StatusTTL            time.Duration `mapstructure:"status_ttl"`
	RetentionDays        int           `mapstructure:"retention_days"` // 仅数据库存储，0 表示不清理
}

// StorageConfig backend 为 csv 或 db
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	BaseDir string `mapstructure:"base_dir"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// RedisConfig Redis 配置，用于跨进程进度快照
type RedisConfig struct {
	Enable      bool          `mapstructure:"enable"`
	Address     string        `mapstructure:"address"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	ProgressTTL time.Duration `mapstructure:"progress_ttl"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Enable         bool     `mapstructure:"enable"`
	Brokers        []string `mapstructure:"brokers"`
	TopicTransfers string   `mapstructure:"topic_transfers"`
	TopicRequests  string   `mapstructure:"topic_requests"`
	GroupID        string   `mapstructure:"group_id"`
}

type ElasticsearchConfig struct {
	Enable         bool     `mapstructure:"enable"`
	Addresses      []string `mapstructure:"addresses"`
	Username       string   `mapstructure:"username"`
	Password       string   `mapstructure:"password"`
	HoldersIndex   string   `mapstructure:"holders_index"`
	TransfersIndex string   `mapstructure:"transfers_index"`
}

type MonitorConfig struct {
	Enable         bool   `mapstructure:"enable"`
	PrometheusAddr string `mapstructure:"prometheus_addr"`
}

// ScheduleConfig 定时重新分析的代币列表
type ScheduleConfig struct {
	Enable   bool          `mapstructure:"enable"`
	Tokens   []string      `mapstructure:"tokens"`
	Interval time.Duration `mapstructure:"interval"`
}

// Default 没有配置文件时的默认值
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Dir: "logs"},
		Server: ServerConfig{
			Addr:           ":10000",
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   60 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		MirrorNode: MirrorNodeConfig{
			BaseURL:    "https://mainnet-public.mirrornode.hedera.com/api/v1",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			RateLimit:  150 * 60,
			UserAgent:  "token-analyzer/1.0",
		},
		RateLimiting: RateLimitingConfig{
			PageSize:           50,
			HolderBatchSize:    25,
			ProcessingDelay:    200 * time.Millisecond,
			MinRequestInterval: 100 * time.Millisecond,
			GatewayMaxDelay:    5 * time.Second,
			ThrottleMaxDelay:   30 * time.Second,
			ThrottleMaxRetries: 5,
			TxBackoffBase:      time.Second,
			TxBackoffMax:       30 * time.Second,
			HolderRetryStep:    2 * time.Second,
		},
		Analysis: AnalysisConfig{
			WindowDays:           180,
			Incremental:          true,
			TransactionWriteMode: "append",
			StatusTTL:            30 * time.Minute,
			RetentionDays:        365,
		},
		Storage:  StorageConfig{Backend: "csv", BaseDir: "token_data"},
		Database: DatabaseConfig{Driver: "postgres", AutoMigrate: true},
		Redis:    RedisConfig{Address: "127.0.0.1:6379", ProgressTTL: 24 * time.Hour},
		Kafka: KafkaConfig{
			TopicTransfers: "token_analyzer_transfers",
			TopicRequests:  "token_analyzer_requests",
			GroupID:        "token-analyzer",
		},
		Elasticsearch: ElasticsearchConfig{
			HoldersIndex:   "hedera_token_holders",
			TransfersIndex: "hedera_token_transfers",
		},
		Monitor:  MonitorConfig{PrometheusAddr: ":9100"},
		Schedule: ScheduleConfig{Interval: 6 * time.Hour},
	}
}

// 允许通过环境变量覆盖的键，ANALYZER_SERVER_ADDR 对应 server.addr
var envKeys = []string{
	"log.level",
	"server.addr",
	"mirror_node.base_url",
	"mirror_node.rate_limit",
	"analysis.window_days",
	"analysis.strict_holders",
	"analysis.transaction_write_mode",
	"storage.backend",
	"storage.base_dir",
	"database.driver",
	"database.dsn",
	"redis.enable",
	"redis.address",
	"redis.password",
	"kafka.enable",
	"kafka.brokers",
	"elasticsearch.enable",
	"elasticsearch.addresses",
	"elasticsearch.username",
	"elasticsearch.password",
	"monitor.enable",
	"schedule.enable",
	"schedule.tokens",
}

// InitConfig 读取 ./config/config.analyzer.yaml，文件缺失时使用默认值
func InitConfig() Config {
	_ = godotenv.Load(".env")

	viper.SetConfigName("config.analyzer")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config/")

	config, err := load(viper.GetViper(), true)
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %s", err))
	}
	return config
}

// LoadFile 读取指定文件，CLI --config 与测试使用
func LoadFile(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v, false)
}

func load(v *viper.Viper, optional bool) (Config, error) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !optional || !errors.As(err, &notFound) {
			return Config{}, err
		}
	}

	config := Default()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &config,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return Config{}, err
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return Config{}, err
	}
	return config, nil
}

func WatchConfig(config *Config) {
	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		newConfig, err := load(viper.GetViper(), true)
		if err != nil {
			return
		}
		*config = newConfig
		logger.SetLogLevel(config.Log.Level)
	})
}
