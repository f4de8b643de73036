package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Environment string            `json:"environment"`
	Database    DatabaseConfig    `json:"database"`
	Paystack    PaystackConfig    `json:"paystack"`
	Server      ServerConfig      `json:"server"`
	Redis       RedisConfig       `json:"redis"`
	Security    SecurityConfig    `json:"security"`
	Entitlement EntitlementConfig `json:"entitlement"`
	Generation  GenerationConfig  `json:"generation"`
}

type DatabaseConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	User         string        `json:"user"`
	Password     string        `json:"password"`
	DBName       string        `json:"dbname"`
	SSLMode      string        `json:"sslmode"`
	MaxOpenConns int           `json:"max_open_conns"`
	MaxIdleConns int           `json:"max_idle_conns"`
	MaxLifetime  time.Duration `json:"max_lifetime"`
	MaxIdleTime  time.Duration `json:"max_idle_time"`
}

type PaystackConfig struct {
	SecretKey     string `json:"secret_key"`
	PublicKey     string `json:"public_key"`
	WebhookSecret string `json:"webhook_secret"`
	BaseURL       string `json:"base_url"`
	CallbackURL   string `json:"callback_url"`
}

type ServerConfig struct {
	Port           string        `json:"port"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	IdleTimeout    time.Duration `json:"idle_timeout"`
	MaxHeaderBytes int           `json:"max_header_bytes"`
}

type RedisConfig struct {
	Host     string        `json:"host"`
	Port     int           `json:"port"`
	Password string        `json:"password"`
	DB       int           `json:"db"`
	TTL      time.Duration `json:"ttl"`
}

type SecurityConfig struct {
	AdminJWTSecret   string        `json:"admin_jwt_secret"`
	AdminJWTDuration time.Duration `json:"admin_jwt_duration"`
	RateLimitRPS     float64       `json:"rate_limit_rps"`
	RateLimitBurst   int           `json:"rate_limit_burst"`
}

// EntitlementConfig holds the admission limits. AnonymousFreeLimit applies
// per client address and never resets; AuthFreeLimit applies per account
// within AuthFreeWindow of the account's first generation.
type EntitlementConfig struct {
	AnonymousFreeLimit int           `json:"anonymous_free_limit"`
	AuthFreeLimit      int           `json:"auth_free_limit"`
	AuthFreeWindow     time.Duration `json:"auth_free_window"`
	PlanAmount         int64         `json:"plan_amount"`
	PlanCurrency       string        `json:"plan_currency"`
	PlanGenerations    int64         `json:"plan_generations"`
}

type GenerationConfig struct {
	Model           string        `json:"model"`
	APIKey          string        `json:"api_key"`
	MaxPromptLength int           `json:"max_prompt_length"`
	Timeout         time.Duration `json:"timeout"`
}

func LoadConfig() (*Config, error) {
	config := &Config{}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	config.Environment = env

	configDir, err := filepath.Abs("config")
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(configDir, "config.json")

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %v", err)
		}
	}

	config.applyEnvironmentOverrides()
	config.setDefaults()

	return config, nil
}

func (c *Config) applyEnvironmentOverrides() {
	if host := os.Getenv("DB_HOST"); host != "" {
		c.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Database.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		c.Database.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		c.Database.Password = password
	}
	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		c.Database.DBName = dbname
	}

	if secret := os.Getenv("PAYSTACK_SECRET_KEY"); secret != "" {
		c.Paystack.SecretKey = secret
	}
	if public := os.Getenv("PAYSTACK_PUBLIC_KEY"); public != "" {
		c.Paystack.PublicKey = public
	}
	if webhook := os.Getenv("PAYSTACK_WEBHOOK_SECRET"); webhook != "" {
		c.Paystack.WebhookSecret = webhook
	}
	if callback := os.Getenv("PAYSTACK_CALLBACK_URL"); callback != "" {
		c.Paystack.CallbackURL = callback
	}

	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		c.Redis.Host = redisHost
	}

	if serverPort := os.Getenv("SERVER_PORT"); serverPort != "" {
		c.Server.Port = serverPort
	}

	if jwtSecret := os.Getenv("ADMIN_JWT_SECRET"); jwtSecret != "" {
		c.Security.AdminJWTSecret = jwtSecret
	}

	if apiKey := os.Getenv("GENERATION_API_KEY"); apiKey != "" {
		c.Generation.APIKey = apiKey
	}
}

func (c *Config) setDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		// The external generation call dominates request latency.
		c.Server.WriteTimeout = 120 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.MaxHeaderBytes == 0 {
		c.Server.MaxHeaderBytes = 1 << 20
	}

	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 50
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Database.MaxLifetime == 0 {
		c.Database.MaxLifetime = time.Hour
	}
	if c.Database.MaxIdleTime == 0 {
		c.Database.MaxIdleTime = 10 * time.Minute
	}

	if c.Redis.TTL == 0 {
		c.Redis.TTL = time.Hour
	}

	if c.Paystack.BaseURL == "" {
		c.Paystack.BaseURL = "https://api.paystack.co"
	}

	if c.Security.AdminJWTDuration == 0 {
		c.Security.AdminJWTDuration = 12 * time.Hour
	}
	if c.Security.RateLimitRPS == 0 {
		c.Security.RateLimitRPS = 10.0
	}
	if c.Security.RateLimitBurst == 0 {
		c.Security.RateLimitBurst = 20
	}

	if c.Entitlement.AnonymousFreeLimit == 0 {
		c.Entitlement.AnonymousFreeLimit = 2
	}
	if c.Entitlement.AuthFreeLimit == 0 {
		c.Entitlement.AuthFreeLimit = 3
	}
	if c.Entitlement.AuthFreeWindow == 0 {
		c.Entitlement.AuthFreeWindow = 7 * 24 * time.Hour
	}
	if c.Entitlement.PlanAmount == 0 {
		// KES 5 in the smallest currency unit.
		c.Entitlement.PlanAmount = 500
	}
	if c.Entitlement.PlanCurrency == "" {
		c.Entitlement.PlanCurrency = "KES"
	}
	if c.Entitlement.PlanGenerations == 0 {
		c.Entitlement.PlanGenerations = 5
	}

	if c.Generation.Model == "" {
		c.Generation.Model = "google/gemini-3-pro-image-preview"
	}
	if c.Generation.MaxPromptLength == 0 {
		c.Generation.MaxPromptLength = 5000
	}
	if c.Generation.Timeout == 0 {
		c.Generation.Timeout = 90 * time.Second
	}
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password,
		c.Database.DBName, c.Database.SSLMode)
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
