package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App      AppConfig      `json:"app"`
	MySQL    MySQLConfig    `json:"mysql"`
	Redis    RedisConfig    `json:"redis"`
	Stripe   StripeConfig   `json:"stripe"`
	Email    EmailConfig    `json:"email"`
	Security SecurityConfig `json:"security"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env                  string        `json:"env"`                     // 运行环境: local / prod
	LogLevel             string        `json:"log_level"`               // 日志级别: debug / info / warn / error
	HTTPAddr             string        `json:"http_addr"`               // API 服务监听地址
	MSPCheckInterval     time.Duration `json:"msp_check_interval"`      // 低于 MSP 对账间隔（如 "10m"）
	MSPSeason            string        `json:"msp_season"`              // 当前 MSP 价格季节（如 "2024-25"）
	MaxListingsPerFarmer int           `json:"max_listings_per_farmer"` // 每个农户最大在售挂单数
	WorkerPoolSize       int           `json:"worker_pool_size"`        // Worker Pool 大小
	QueueCapacity        int           `json:"queue_capacity"`          // 队列容量
	CheckoutRateLimit    float64       `json:"checkout_rate_limit"`     // 支付会话限流速率（token/s）
	CheckoutRateBurst    float64       `json:"checkout_rate_burst"`     // 支付会话限流桶容量
	WebhookDedupWindow   int           `json:"webhook_dedup_window"`    // 网关事件去重窗口（秒）
}

// MySQLConfig MySQL 数据库配置。
type MySQLConfig struct {
	DSN string `json:"dsn"` // 数据库连接字符串
}

// RedisConfig Redis 缓存配置。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
}

// StripeConfig 支付网关配置。
type StripeConfig struct {
	SecretKey     string `json:"secret_key"`     // API 密钥
	WebhookSecret string `json:"webhook_secret"` // 通知签名密钥
	SuccessURL    string `json:"success_url"`    // 支付成功跳转地址
	CancelURL     string `json:"cancel_url"`     // 支付取消跳转地址
	Currency      string `json:"currency"`       // 结算货币（默认 inr）
}

// EmailConfig 邮件通知配置。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
}

// SecurityConfig 安全相关配置。
type SecurityConfig struct {
	JWTSecret     string `json:"jwt_secret"`     // JWT 签名密钥
	AdminEmail    string `json:"admin_email"`    // 初始管理员邮箱（为空则不创建）
	AdminPassword string `json:"admin_password"` // 初始管理员密码
}

// Load 从 JSON 文件加载配置。
//
// 它会尝试读取 configs/config.json 文件，如果不存在则使用默认值。
//
// 参数:
//
//	configPath: 配置文件路径（如果为空则使用默认路径 "configs/config.json")
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 加载失败返回错误
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	// 如果配置文件不存在，使用默认配置
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		// 即使没有配置文件，也允许环境变量覆盖默认值
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	// 应用默认值（对于未设置的字段）
	applyDefaults(cfg)

	// 环境变量优先覆盖配置
	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadOrDefault 加载配置，如果失败则返回默认配置（不报错）。
func LoadOrDefault(configPath ...string) *Config {
	cfg, err := Load(configPath...)
	if err != nil {
		fallback := getDefaultConfig()
		applyEnvOverrides(fallback)
		return fallback
	}
	return cfg
}

// Save 保存配置到 JSON 文件。
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:                  "local",
			LogLevel:             "info",
			HTTPAddr:             ":8082",
			MSPCheckInterval:     10 * time.Minute,
			MSPSeason:            "2024-25",
			MaxListingsPerFarmer: 20,
			WorkerPoolSize:       10,
			QueueCapacity:        200,
			CheckoutRateLimit:    1,
			CheckoutRateBurst:    3,
			WebhookDedupWindow:   86400,
		},
		MySQL: MySQLConfig{
			DSN: "root:password@tcp(localhost:3306)/agrimandi?parseTime=true&loc=Local",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
		},
		Stripe: StripeConfig{
			SecretKey:     "",
			WebhookSecret: "",
			SuccessURL:    "http://localhost:3000/payment/success",
			CancelURL:     "http://localhost:3000/payment/cancel",
			Currency:      "inr",
		},
		Email: EmailConfig{
			SMTPHost:  "smtp.gmail.com",
			SMTPPort:  587,
			SMTPUser:  "",
			SMTPPass:  "",
			FromEmail: "",
		},
		Security: SecurityConfig{
			JWTSecret:     "dev_secret_change_me",
			AdminEmail:    "",
			AdminPassword: "",
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.MSPCheckInterval == 0 {
		cfg.App.MSPCheckInterval = defaults.App.MSPCheckInterval
	}
	if cfg.App.MSPSeason == "" {
		cfg.App.MSPSeason = defaults.App.MSPSeason
	}
	if cfg.App.MaxListingsPerFarmer == 0 {
		cfg.App.MaxListingsPerFarmer = defaults.App.MaxListingsPerFarmer
	}
	if cfg.App.WorkerPoolSize == 0 {
		cfg.App.WorkerPoolSize = defaults.App.WorkerPoolSize
	}
	if cfg.App.QueueCapacity == 0 {
		cfg.App.QueueCapacity = defaults.App.QueueCapacity
	}
	if cfg.App.CheckoutRateLimit == 0 {
		cfg.App.CheckoutRateLimit = defaults.App.CheckoutRateLimit
	}
	if cfg.App.CheckoutRateBurst == 0 {
		cfg.App.CheckoutRateBurst = defaults.App.CheckoutRateBurst
	}
	if cfg.App.WebhookDedupWindow == 0 {
		cfg.App.WebhookDedupWindow = defaults.App.WebhookDedupWindow
	}
	if cfg.Stripe.SuccessURL == "" {
		cfg.Stripe.SuccessURL = defaults.Stripe.SuccessURL
	}
	if cfg.Stripe.CancelURL == "" {
		cfg.Stripe.CancelURL = defaults.Stripe.CancelURL
	}
	if cfg.Stripe.Currency == "" {
		cfg.Stripe.Currency = defaults.Stripe.Currency
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_host", "DB_HOST")
	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("stripe_secret_key", "STRIPE_SECRET_KEY")
	_ = viper.BindEnv("stripe_webhook_secret", "STRIPE_WEBHOOK_SECRET")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("APP_MSP_CHECK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.MSPCheckInterval = d
		}
	}
	if v := os.Getenv("APP_MSP_SEASON"); v != "" {
		cfg.App.MSPSeason = v
	}
	if v := os.Getenv("APP_MAX_LISTINGS_PER_FARMER"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.MaxListingsPerFarmer = i
		}
	}
	if v := os.Getenv("APP_WORKER_POOL_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.WorkerPoolSize = i
		}
	}
	if v := os.Getenv("APP_QUEUE_CAPACITY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.QueueCapacity = i
		}
	}
	if v := os.Getenv("APP_CHECKOUT_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.CheckoutRateLimit = f
		}
	}
	if v := os.Getenv("APP_CHECKOUT_RATE_BURST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.CheckoutRateBurst = f
		}
	}
	if v := os.Getenv("APP_WEBHOOK_DEDUP_WINDOW"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.WebhookDedupWindow = i
		}
	}

	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}
	if v := os.Getenv("ADMIN_EMAIL"); v != "" {
		cfg.Security.AdminEmail = v
	}
	if v := os.Getenv("ADMIN_PASSWORD"); v != "" {
		cfg.Security.AdminPassword = v
	}

	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.MySQL.DSN = v
	} else if hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") || viper.GetString("db_host") != "" || viper.GetString("db_password") != "" {
		parsed := parseMySQLDSN(cfg.MySQL.DSN)
		if v := viper.GetString("db_host"); v != "" {
			host := v
			port := getenvDefault("DB_PORT", parsed.Addr, "3306")
			parsed.Addr = host + ":" + port
		} else if v := os.Getenv("DB_PORT"); v != "" {
			host := parsed.Addr
			if strings.Contains(host, ":") {
				host = strings.Split(host, ":")[0]
			}
			parsed.Addr = host + ":" + v
		}
		if v := os.Getenv("DB_USER"); v != "" {
			parsed.User = v
		}
		if v := viper.GetString("db_password"); v != "" {
			parsed.Passwd = v
		}
		if v := os.Getenv("DB_NAME"); v != "" {
			parsed.DBName = v
		}
		cfg.MySQL.DSN = parsed.FormatDSN()
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := viper.GetString("stripe_secret_key"); v != "" {
		cfg.Stripe.SecretKey = v
	}
	if v := viper.GetString("stripe_webhook_secret"); v != "" {
		cfg.Stripe.WebhookSecret = v
	}
	if v := os.Getenv("STRIPE_SUCCESS_URL"); v != "" {
		cfg.Stripe.SuccessURL = v
	}
	if v := os.Getenv("STRIPE_CANCEL_URL"); v != "" {
		cfg.Stripe.CancelURL = v
	}
	if v := os.Getenv("STRIPE_CURRENCY"); v != "" {
		cfg.Stripe.Currency = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}
}

func hasAnyEnv(keys ...string) bool {
	for _, key := range keys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func getenvDefault(envKey, fallbackAddr, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if fallbackAddr == "" {
		return defaultValue
	}
	if strings.Contains(fallbackAddr, ":") {
		parts := strings.Split(fallbackAddr, ":")
		if len(parts) == 2 && parts[1] != "" {
			return parts[1]
		}
	}
	return defaultValue
}

func parseMySQLDSN(dsn string) *mysql.Config {
	fallback := &mysql.Config{
		User:   "root",
		Passwd: "",
		Net:    "tcp",
		Addr:   "localhost:3306",
		DBName: "agrimandi",
		Params: map[string]string{
			"parseTime": "true",
			"loc":       "Local",
		},
	}
	if dsn == "" {
		return fallback
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fallback
	}
	return parsed
}

// UnmarshalJSON 自定义 JSON 解析，支持时间Duration字符串。
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type Alias AppConfig
	aux := &struct {
		MSPCheckInterval string `json:"msp_check_interval"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.MSPCheckInterval != "" {
		duration, err := time.ParseDuration(aux.MSPCheckInterval)
		if err != nil {
			return fmt.Errorf("invalid msp_check_interval format: %w", err)
		}
		a.MSPCheckInterval = duration
	}

	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (a AppConfig) MarshalJSON() ([]byte, error) {
	type Alias AppConfig
	return json.Marshal(&struct {
		MSPCheckInterval string `json:"msp_check_interval"`
		*Alias
	}{
		MSPCheckInterval: a.MSPCheckInterval.String(),
		Alias:            (*Alias)(&a),
	})
}
