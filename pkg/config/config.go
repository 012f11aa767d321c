package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Etcd    EtcdConfig    `mapstructure:"etcd"`
	Redis   RedisConfig   `mapstructure:"redis"`
	MySQL   MySQLConfig   `mapstructure:"mysql"`
	MongoDB MongoDBConfig `mapstructure:"mongodb"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Pricing PricingConfig `mapstructure:"pricing"`
	Jobs    JobsConfig    `mapstructure:"jobs"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Name string `mapstructure:"name"`
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Prefix      string        `mapstructure:"prefix"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type MongoDBConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// PricingConfig carries the global charge defaults applied when no admin
// charge rule matches, plus the free-shipping threshold.
type PricingConfig struct {
	FreeShippingThreshold float64 `mapstructure:"free_shipping_threshold"`
	DefaultShippingFee    float64 `mapstructure:"default_shipping_fee"`
	DefaultConvenienceFee float64 `mapstructure:"default_convenience_fee"`
	DefaultPlatformFee    float64 `mapstructure:"default_platform_fee"`
}

type JobsConfig struct {
	BatchSize        int           `mapstructure:"batch_size"`
	MaxReminders     int           `mapstructure:"max_reminders"`
	ReminderAfter    time.Duration `mapstructure:"reminder_after"`
	ReminderEvery    time.Duration `mapstructure:"reminder_every"`
	ProcessedMarkTTL time.Duration `mapstructure:"processed_mark_ttl"`
}

type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Encoding    string   `mapstructure:"encoding"`
	OutputPaths []string `mapstructure:"output_paths"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetDefault("jobs.batch_size", 200)
	v.SetDefault("jobs.max_reminders", 3)
	v.SetDefault("jobs.reminder_after", 24*time.Hour)
	v.SetDefault("jobs.reminder_every", 48*time.Hour)
	v.SetDefault("jobs.processed_mark_ttl", 72*time.Hour)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.Username, c.Password, c.Host, c.Port, c.Database)
}

// Threshold returns the free-shipping threshold as a decimal amount.
func (c *PricingConfig) Threshold() decimal.Decimal {
	return decimal.NewFromFloat(c.FreeShippingThreshold)
}

// DefaultRuleFees returns the global default fees as decimals, in the order
// shipping, convenience, platform.
func (c *PricingConfig) DefaultRuleFees() (decimal.Decimal, decimal.Decimal, decimal.Decimal) {
	return decimal.NewFromFloat(c.DefaultShippingFee),
		decimal.NewFromFloat(c.DefaultConvenienceFee),
		decimal.NewFromFloat(c.DefaultPlatformFee)
}
