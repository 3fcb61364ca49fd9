// Package config 应用配置加载
package config

import (
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Ticket   TicketConfig   `mapstructure:"ticket"`
	Cookie   CookieConfig   `mapstructure:"cookie"`
	Authn    AuthnConfig    `mapstructure:"authn"`
	MFA      MFAConfig      `mapstructure:"mfa"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// MySQLConfig MySQL 配置
type MySQLConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
	DBName    string `mapstructure:"dbname"`
	Charset   string `mapstructure:"charset"`
	ParseTime bool   `mapstructure:"parse_time"`
	Loc       string `mapstructure:"loc"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// TicketConfig 票据配置
type TicketConfig struct {
	// Registry 注册表后端：memory / redis / database
	Registry string `mapstructure:"registry"`

	// Crypto 票据体加密；密钥为空时不加密
	EncryptionKey string `mapstructure:"encryption_key"` // base64 或原文，32 字节
	SigningKey    string `mapstructure:"signing_key"`

	// TGT 会话票据过期策略
	TGTMaxTimeToLive time.Duration `mapstructure:"tgt_max_time_to_live"` // 硬超时
	TGTTimeToKill    time.Duration `mapstructure:"tgt_time_to_kill"`    // 空闲超时
	RememberMeTTL    time.Duration `mapstructure:"remember_me_ttl"`     // 记住我会话寿命

	// ST 服务票据过期策略
	STTimeToLive   time.Duration `mapstructure:"st_time_to_live"`
	STNumberOfUses int           `mapstructure:"st_number_of_uses"`

	// OnlyTrackMostRecent 同一服务重复授予时仅保留最近一次
	OnlyTrackMostRecent bool `mapstructure:"only_track_most_recent"`

	// Cleaner 过期票据清理器
	CleanerEnabled      bool          `mapstructure:"cleaner_enabled"`
	CleanerInitialDelay time.Duration `mapstructure:"cleaner_initial_delay"`
	CleanerInterval     time.Duration `mapstructure:"cleaner_interval"`
}

// CookieConfig 会话 Cookie 配置
type CookieConfig struct {
	Name          string        `mapstructure:"name"`
	SigningKey    string        `mapstructure:"signing_key"`
	Issuer        string        `mapstructure:"issuer"`
	MaxAge        time.Duration `mapstructure:"max_age"`
	RememberMeAge time.Duration `mapstructure:"remember_me_age"`
	Secure        bool          `mapstructure:"secure"`
	Path          string        `mapstructure:"path"`
	Domain        string        `mapstructure:"domain"`
}

// AuthnConfig 认证引擎配置
type AuthnConfig struct {
	// Policy 成功策略：any / all / required_handler / not_prevented
	Policy          string        `mapstructure:"policy"`
	TryAll          bool          `mapstructure:"try_all"`
	RequiredHandler string        `mapstructure:"required_handler"`
	HandlerTimeout  time.Duration `mapstructure:"handler_timeout"`

	// AcceptUsers 静态账户表（用户名 -> 密码），适合开箱演示
	AcceptUsers map[string]string `mapstructure:"accept_users"`
	// DatabaseHandler 是否启用数据库凭据源
	DatabaseHandler bool `mapstructure:"database_handler"`
}

// MFAConfig 多因子认证配置
type MFAConfig struct {
	Providers []MFAProviderConfig `mapstructure:"providers"`
	// BypassAttrName / BypassAttrValue 属性旁路判定正则
	BypassAttrName  string `mapstructure:"bypass_attr_name"`
	BypassAttrValue string `mapstructure:"bypass_attr_value"`
}

// MFAProviderConfig 单个 MFA 提供方配置
type MFAProviderConfig struct {
	ID   string `mapstructure:"id"`
	Rank int    `mapstructure:"rank"`
}

var (
	mu     sync.RWMutex
	loaded *Config
)

// Load 从默认位置加载配置
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")
	return load(v, true)
}

// LoadFromFile 从指定文件加载配置
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v, false)
}

// Get 返回最近一次成功加载的配置，未加载过时为 nil
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return loaded
}

func load(v *viper.Viper, optional bool) (*Config, error) {
	// 支持环境变量覆盖
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 默认位置允许配置文件缺失，回落到默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || !optional {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	mu.Lock()
	loaded = &cfg
	mu.Unlock()
	return &cfg, nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")

	// 数据库默认配置
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "sso_core")
	v.SetDefault("database.postgres.sslmode", "disable")

	// Redis 默认配置
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// 票据默认配置
	v.SetDefault("ticket.registry", "memory")
	v.SetDefault("ticket.tgt_max_time_to_live", "8h")
	v.SetDefault("ticket.tgt_time_to_kill", "2h")
	v.SetDefault("ticket.remember_me_ttl", "336h")
	v.SetDefault("ticket.st_time_to_live", "10s")
	v.SetDefault("ticket.st_number_of_uses", 1)
	v.SetDefault("ticket.only_track_most_recent", true)
	v.SetDefault("ticket.cleaner_enabled", true)
	v.SetDefault("ticket.cleaner_initial_delay", "10s")
	v.SetDefault("ticket.cleaner_interval", "1m")

	// 会话 Cookie 默认配置
	v.SetDefault("cookie.name", "TGC")
	v.SetDefault("cookie.issuer", "sso-core")
	v.SetDefault("cookie.max_age", "8h")
	v.SetDefault("cookie.remember_me_age", "336h")
	v.SetDefault("cookie.path", "/")

	// 认证引擎默认配置
	v.SetDefault("authn.policy", "any")
	v.SetDefault("authn.try_all", false)
	v.SetDefault("authn.handler_timeout", "10s")
	v.SetDefault("authn.database_handler", true)
}
