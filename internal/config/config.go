package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	MySQL  MySQLConfig  `mapstructure:"mysql"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	Worker WorkerConfig `mapstructure:"worker"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
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
	PublishResult string `mapstructure:"publish_result"`
}

// WorkerConfig 发布队列 worker 配置
//
// CronSecret 支持通过环境变量 CRON_SECRET 覆盖，便于部署时注入。
type WorkerConfig struct {
	CronSecret          string `mapstructure:"cron_secret"`
	MaxItemsPerRun      int    `mapstructure:"max_items_per_run"`
	PublishLimit        int    `mapstructure:"publish_limit"`
	MaxProcessingTimeMs int    `mapstructure:"max_processing_time_ms"`
	MaxRetryCount       int    `mapstructure:"max_retry_count"`
	SchedulerEnabled    bool   `mapstructure:"scheduler_enabled"`
	SchedulerIntervalS  int    `mapstructure:"scheduler_interval_s"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.SetDefault("worker.max_items_per_run", 20)
	viper.SetDefault("worker.publish_limit", 10)
	viper.SetDefault("worker.max_processing_time_ms", 120000)
	viper.SetDefault("worker.max_retry_count", 5)
	viper.SetDefault("worker.scheduler_interval_s", 60)

	// 环境变量优先于配置文件
	viper.BindEnv("worker.cron_secret", "CRON_SECRET")
	viper.BindEnv("worker.max_items_per_run", "MAX_ITEMS_PER_RUN")
	viper.BindEnv("worker.max_processing_time_ms", "MAX_PROCESSING_TIME_MS")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	return config
}
