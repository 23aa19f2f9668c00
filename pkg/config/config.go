// Package config 提供 TOML 配置加载与环境变量覆盖
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/ronalzhang/lawsker-sub001/pkg/logger"
)

// Config 服务配置
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 服务版本
	Version string `mapstructure:"version"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// HTTP 服务配置
	HTTP HTTPConfig `mapstructure:"http"`
	// 数据库配置
	Database DatabaseConfig `mapstructure:"database"`
	// Redis 配置
	Redis RedisConfig `mapstructure:"redis"`
	// Kafka 配置
	Kafka KafkaConfig `mapstructure:"kafka"`
	// 日志配置
	Logger logger.Config `mapstructure:"logger"`
	// 积分引擎配置
	Engine EngineConfig `mapstructure:"engine"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	// 监听地址
	Host string `mapstructure:"host"`
	// 监听端口
	Port int `mapstructure:"port"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout"`
	// 写超时（秒）
	WriteTimeout int `mapstructure:"write_timeout"`
	// 限流配置
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig 接口限流配置：qps/burst 按来源 IP，
// account_qps/account_burst 按律师账户叠加（0 关闭账户维度限速）
type RateLimitConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	QPS          int  `mapstructure:"qps"`
	Burst        int  `mapstructure:"burst"`
	AccountQPS   int  `mapstructure:"account_qps"`
	AccountBurst int  `mapstructure:"account_burst"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动：mysql
	Driver string `mapstructure:"driver"`
	// 数据源名称
	DSN string `mapstructure:"dsn"`
	// 最大连接数
	MaxOpenConns int `mapstructure:"max_open_conns"`
	// 最大空闲连接数
	MaxIdleConns int `mapstructure:"max_idle_conns"`
	// 连接最大生命周期（秒）
	ConnMaxLifetime int `mapstructure:"conn_max_lifetime"`
	// 是否启用日志
	LogEnabled bool `mapstructure:"log_enabled"`
	// 慢查询阈值（毫秒）
	SlowQueryThreshold int `mapstructure:"slow_query_threshold"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 主机地址
	Host string `mapstructure:"host"`
	// 端口
	Port int `mapstructure:"port"`
	// 密码
	Password string `mapstructure:"password"`
	// 数据库编号
	DB int `mapstructure:"db"`
	// 最大连接数
	MaxPoolSize int `mapstructure:"max_pool_size"`
	// 连接超时（秒）
	ConnTimeout int `mapstructure:"conn_timeout"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout"`
	// 写超时（秒）
	WriteTimeout int `mapstructure:"write_timeout"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	// Broker 地址列表
	Brokers []string `mapstructure:"brokers"`
	// 消费组 ID
	GroupID string `mapstructure:"group_id"`
	// 最大重试次数
	MaxRetries int `mapstructure:"max_retries"`
	// 重试退避（毫秒）
	RetryBackoff int `mapstructure:"retry_backoff"`
}

// EngineConfig 积分引擎配置
type EngineConfig struct {
	// 乘数下限
	MultiplierFloor float64 `mapstructure:"multiplier_floor"`
	// 乘数上限
	MultiplierCeiling float64 `mapstructure:"multiplier_ceiling"`
	// 账本写冲突最大重试次数
	MaxWriteRetries int `mapstructure:"max_write_retries"`
	// 重试初始退避（毫秒）
	RetryBackoffMs int `mapstructure:"retry_backoff_ms"`
	// 连续拒单触发风控阈值
	AbuseDeclineThreshold int `mapstructure:"abuse_decline_threshold"`
	// 各行为每日上限（action -> 次数），未配置的行为不限次
	DailyCaps map[string]int `mapstructure:"daily_caps"`
	// Outbox 中继轮询间隔（秒）
	OutboxRelayInterval int `mapstructure:"outbox_relay_interval"`
}

// Load 加载配置文件，支持 LAWSKER_ 前缀环境变量覆盖
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("LAWSKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 配置文件缺失时允许仅靠默认值 + 环境变量启动
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "pointsengine")
	v.SetDefault("version", "1.0.0")
	v.SetDefault("environment", "dev")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)
	v.SetDefault("http.rate_limit.enabled", false)
	v.SetDefault("http.rate_limit.qps", 50)
	v.SetDefault("http.rate_limit.burst", 100)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.slow_query_threshold", 1000)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.conn_timeout", 5)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "pointsengine")
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/pointsengine.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	v.SetDefault("engine.multiplier_floor", 0.1)
	v.SetDefault("engine.multiplier_ceiling", 10.0)
	v.SetDefault("engine.max_write_retries", 3)
	v.SetDefault("engine.retry_backoff_ms", 20)
	v.SetDefault("engine.abuse_decline_threshold", 5)
	v.SetDefault("engine.outbox_relay_interval", 2)
}

func validate(cfg *Config) error {
	if cfg.Engine.MultiplierFloor <= 0 {
		return fmt.Errorf("engine.multiplier_floor must be positive, got %v", cfg.Engine.MultiplierFloor)
	}
	if cfg.Engine.MultiplierCeiling < cfg.Engine.MultiplierFloor {
		return fmt.Errorf("engine.multiplier_ceiling must be >= floor")
	}
	if cfg.Engine.MaxWriteRetries < 0 {
		return fmt.Errorf("engine.max_write_retries must be non-negative")
	}
	return nil
}
