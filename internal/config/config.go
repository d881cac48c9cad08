package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/gSa1fe/isusP-sub000/internal/model"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Wallet   WalletConfig   `mapstructure:"wallet"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin 运行模式：debug / release / test
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"` // gorm 日志级别：silent / error / warn / info
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	TopupEvents  string `mapstructure:"topup_events"`
	LedgerEvents string `mapstructure:"ledger_events"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`  // debug / info / warn / error
	Format     string `mapstructure:"format"` // text / json
	Prefix     string `mapstructure:"prefix"`
	TimeFormat string `mapstructure:"time_format"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type WalletConfig struct {
	MaxPendingTopups int                 `mapstructure:"max_pending_topups"`
	SettleLockTTL    time.Duration       `mapstructure:"settle_lock_ttl"`
	Packages         []model.CoinPackage `mapstructure:"packages"`
}

type BusinessConfig struct {
	MaxRetryCount     int           `mapstructure:"max_retry_count"`
	OutboxInterval    time.Duration `mapstructure:"outbox_interval"`
	OutboxBatchSize   int           `mapstructure:"outbox_batch_size"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	ReconcileBatch    int           `mapstructure:"reconcile_batch"`
}

// DefaultMaxPendingTopups 每个用户同时处于 pending 的充值申请上限
const DefaultMaxPendingTopups = 5

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.log_level", "warn")
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic.topup_events", "wallet.topup.events")
	v.SetDefault("kafka.topic.ledger_events", "wallet.ledger.events")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.prefix", "wallet")
	v.SetDefault("log.time_format", time.DateTime)
	v.SetDefault("auth.issuer", "toon-auth")
	v.SetDefault("wallet.max_pending_topups", DefaultMaxPendingTopups)
	v.SetDefault("wallet.settle_lock_ttl", 30*time.Second)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.outbox_interval", 200*time.Millisecond)
	v.SetDefault("business.outbox_batch_size", 100)
	v.SetDefault("business.reconcile_interval", 5*time.Minute)
	v.SetDefault("business.reconcile_batch", 200)
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
//
// 优先级：环境变量（WALLET_ 前缀，如 WALLET_MYSQL_PASSWORD）> 配置文件 > 默认值。
// 当前目录存在 .env 时先加载到进程环境变量里。
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WALLET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &Config{}
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		decimalHook,
	)
	if err := v.Unmarshal(cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	GlobalConfig = cfg
	return cfg, nil
}

// Validate 校验关键配置
func (c *Config) Validate() error {
	if c.Wallet.MaxPendingTopups <= 0 {
		return errors.New("wallet.max_pending_topups 必须大于 0")
	}
	seen := make(map[string]struct{}, len(c.Wallet.Packages))
	for _, p := range c.Wallet.Packages {
		if p.Code == "" {
			return errors.New("wallet.packages 存在空 code")
		}
		if _, dup := seen[p.Code]; dup {
			return fmt.Errorf("wallet.packages code 重复: %s", p.Code)
		}
		seen[p.Code] = struct{}{}
		if !p.Price.IsPositive() || p.Coins <= 0 || p.BonusCoins < 0 {
			return fmt.Errorf("wallet.packages 配置不合法: %s", p.Code)
		}
	}
	return nil
}

// decimalHook 把 yaml 里的数字/字符串转成 decimal.Decimal
func decimalHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(decimal.Decimal{}) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return decimal.NewFromString(v)
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	}
	return data, nil
}
