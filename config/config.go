package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"

	BusLocal = "local"
	BusRedis = "redis"
)

type Config struct {
	Port    string
	GinMode string

	StoreDriver    string
	MongoURI       string
	MongoDatabase  string
	ConnectRetries int
	JWTSecret      string
	CORSOrigins    []string
	ChatHistory    int
	ChatBus        string
	RedisAddr      string
	RedisChannel   string
	ActivityQueue  int
	RateLimit      int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("STORE_DRIVER", DriverMongo)
	v.SetDefault("MONGODB_DATABASE", "agora")
	v.SetDefault("MONGO_CONNECT_RETRIES", 3)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("CHAT_HISTORY_LIMIT", 50)
	v.SetDefault("CHAT_BUS", BusLocal)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_CHANNEL", "agora:chat")
	v.SetDefault("ACTIVITY_QUEUE_SIZE", 1024)
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 120)
}

// Load reads .env files (when present) and the environment. Environment
// variables win over .env values.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Port:           v.GetString("PORT"),
		GinMode:        v.GetString("GIN_MODE"),
		StoreDriver:    strings.ToLower(v.GetString("STORE_DRIVER")),
		MongoURI:       v.GetString("MONGODB_URI"),
		MongoDatabase:  v.GetString("MONGODB_DATABASE"),
		ConnectRetries: v.GetInt("MONGO_CONNECT_RETRIES"),
		JWTSecret:      v.GetString("JWT_SECRET"),
		CORSOrigins:    splitList(v.GetString("CORS_ORIGINS")),
		ChatHistory:    v.GetInt("CHAT_HISTORY_LIMIT"),
		ChatBus:        strings.ToLower(v.GetString("CHAT_BUS")),
		RedisAddr:      v.GetString("REDIS_ADDR"),
		RedisChannel:   v.GetString("REDIS_CHANNEL"),
		ActivityQueue:  v.GetInt("ACTIVITY_QUEUE_SIZE"),
		RateLimit:      v.GetInt("RATE_LIMIT_PER_MINUTE"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var problems []string
	if c.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET is required")
	}
	switch c.StoreDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			problems = append(problems, "MONGODB_URI is required for the mongo store driver")
		}
	case DriverMemory:
	default:
		problems = append(problems, fmt.Sprintf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	switch c.ChatBus {
	case BusLocal:
	case BusRedis:
		if c.RedisAddr == "" {
			problems = append(problems, "REDIS_ADDR is required for the redis chat bus")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown CHAT_BUS %q", c.ChatBus))
	}
	if c.ChatHistory <= 0 {
		problems = append(problems, "CHAT_HISTORY_LIMIT must be positive")
	}
	if c.ActivityQueue <= 0 {
		problems = append(problems, "ACTIVITY_QUEUE_SIZE must be positive")
	}
	if c.RateLimit <= 0 {
		problems = append(problems, "RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.ConnectRetries <= 0 {
		problems = append(problems, "MONGO_CONNECT_RETRIES must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) Addr() string {
	return ":" + c.Port
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
