package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Mail     MailConfig     `mapstructure:"mail"`
	Log      LogConfig      `mapstructure:"log"`
	Feature  FeatureConfig  `mapstructure:"feature"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port      int             `mapstructure:"port"`
	BaseURL   string          `mapstructure:"base_url"`
	SiteURL   string          `mapstructure:"site_url"` // 前端站点地址，用于邮件中的跳转链接
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	BodyLimit int64           `mapstructure:"body_limit"` // 请求体上限（字节）
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// RateLimitConfig 写操作限流配置
type RateLimitConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（分钟）
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接最大存活时间（分钟）
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 配置（Token 黑名单、限流、实时事件广播）
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"` // 实时变更事件的发布频道
}

// AuthConfig JWT 认证配置
type AuthConfig struct {
	JWTSecret                string        `mapstructure:"jwt_secret"`
	AccessTokenTTL           time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTLDefault   time.Duration `mapstructure:"refresh_token_ttl_default"`
	RefreshTokenTTLRemember  time.Duration `mapstructure:"refresh_token_ttl_remember_me"`
	ConfirmTokenTTL          time.Duration `mapstructure:"confirm_token_ttl"`
	RequireEmailConfirmation bool          `mapstructure:"require_email_confirmation"`
	AdminEmails              []string      `mapstructure:"admin_emails"` // 注册时自动授予 admin 角色
}

// MailConfig 邮件发送配置
// Provider: resend | smtp | log（log 仅打印日志，用于本地开发）
type MailConfig struct {
	Provider    string        `mapstructure:"provider"`
	From        string        `mapstructure:"from"`
	Timeout     time.Duration `mapstructure:"timeout"`       // 单次投递超时
	MaxInFlight int           `mapstructure:"max_in_flight"` // 同时进行的异步投递上限
	Resend      ResendConfig  `mapstructure:"resend"`
	SMTP        SMTPConfig    `mapstructure:"smtp"`
}

// ResendConfig Resend HTTP API 配置
type ResendConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"` // 为空时使用官方地址
}

// SMTPConfig SMTP 邮件配置
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// FeatureConfig 功能开关配置
type FeatureConfig struct {
	DuplicateRequestGuard bool `mapstructure:"duplicate_request_guard"` // 禁止对同一用户重复发起待处理申请
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()

	// ── 默认值 ──
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.site_url", "http://localhost:5173")
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.rate_limit.limit", 30)
	v.SetDefault("server.rate_limit.window", "1m")
	v.SetDefault("server.body_limit", 4<<20)

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "skill_swap")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)  // 60分钟
	v.SetDefault("db.conn_max_idle_time", 30) // 30分钟

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "skillswap:changes")

	v.SetDefault("auth.access_token_ttl", "15m")
	v.SetDefault("auth.refresh_token_ttl_default", "24h")
	v.SetDefault("auth.refresh_token_ttl_remember_me", "168h")
	v.SetDefault("auth.confirm_token_ttl", "48h")
	v.SetDefault("auth.require_email_confirmation", true)

	v.SetDefault("mail.provider", "log")
	v.SetDefault("mail.from", "SkillSwap <noreply@skillswap.com>")
	v.SetDefault("mail.timeout", "10s")
	v.SetDefault("mail.max_in_flight", 16)
	v.SetDefault("mail.smtp.port", 587)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("feature.duplicate_request_guard", true)

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("SKILLSWAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件不存在时仅依赖默认值和环境变量
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// ── 关键配置校验 ──
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	switch c.Mail.Provider {
	case "log":
	case "resend":
		if c.Mail.Resend.APIKey == "" {
			return fmt.Errorf("配置校验失败: mail.resend.api_key 不能为空")
		}
	case "smtp":
		if c.Mail.SMTP.Host == "" {
			return fmt.Errorf("配置校验失败: mail.smtp.host 不能为空")
		}
	default:
		return fmt.Errorf("配置校验失败: 未知的 mail.provider %q", c.Mail.Provider)
	}
	if c.Mail.Timeout <= 0 {
		return fmt.Errorf("配置校验失败: mail.timeout 必须大于 0")
	}
	return nil
}
