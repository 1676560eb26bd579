package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type HTTP struct {
	Host            string
	Port            int
	ReadTimeoutSec  int
	WriteTimeoutSec int
	IdleTimeoutSec  int
	// 请求级超时，0 使用默认 10s
	RequestTimeoutSec int
	RateLimitRPS      float64
	RateLimitBurst    int
	MaxConcurrent     int64
	MaxBodyBytes      int64
	// 重置密码邮件里的链接前缀，如 https://example.com
	PublicURL string
}

type AdminHTTP struct {
	Host string
	Port int
}

type App struct {
	Name  string
	Env   string
	HTTP  HTTP
	Admin AdminHTTP
}

func (a App) Production() bool { return a.Env == "production" }

type Rotate struct {
	Enable     bool
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type Log struct {
	Level  string
	JSON   bool
	Rotate Rotate
}

type JWT struct {
	Secret            string
	Issuer            string
	AccessTokenTTLMin int
	CookieExpiresDays int
}

func (j JWT) TTL() time.Duration { return time.Duration(j.AccessTokenTTLMin) * time.Minute }

func (j JWT) CookieTTL() time.Duration {
	if j.CookieExpiresDays <= 0 {
		return j.TTL()
	}
	return time.Duration(j.CookieExpiresDays) * 24 * time.Hour
}

type Mongo struct {
	URI                       string
	Database                  string
	MaxPoolSize               uint64
	MinPoolSize               uint64
	ConnectTimeoutSec         int
	ServerSelectionTimeoutSec int
	EnsureIndexes             bool
}

type Redis struct {
	Enable          bool   `mapstructure:"enable"`
	Addr            string `mapstructure:"addr"`
	Password        string `mapstructure:"password"`
	DB              int    `mapstructure:"db"`
	AnalyticsTTLSec int    `mapstructure:"analyticsTTLSec"`
}

func (r Redis) AnalyticsTTL() time.Duration {
	if r.AnalyticsTTLSec <= 0 {
		return time.Minute
	}
	return time.Duration(r.AnalyticsTTLSec) * time.Second
}

type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type Reconcile struct {
	Enable     bool
	Spec       string
	TimeoutSec int
}

type Config struct {
	App       App
	Log       Log
	JWT       JWT
	Mongo     Mongo
	Redis     Redis `mapstructure:"redis"`
	SMTP      SMTP
	Reconcile Reconcile
}

func (c *Config) Validate() error {
	if c.Mongo.URI == "" || c.Mongo.Database == "" {
		return fmt.Errorf("mongo.uri and mongo.database are required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.JWT.AccessTokenTTLMin <= 0 {
		return fmt.Errorf("jwt.accessTokenTTLMin must be positive")
	}
	return nil
}

// Load 读取 yaml，APP_ 前缀环境变量覆盖（APP_MONGO_URI → mongo.uri）
func Load(path string) (*Config, error) {
	v := viper.New()
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		if path == "" {
			path = "./configs/config.local.yaml"
		}
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "tour-booking-api")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.http.port", 8080)
	v.SetDefault("app.http.readTimeoutSec", 5)
	v.SetDefault("app.http.writeTimeoutSec", 10)
	v.SetDefault("app.http.idleTimeoutSec", 60)
	v.SetDefault("app.http.requestTimeoutSec", 10)
	v.SetDefault("app.http.rateLimitRPS", 200)
	v.SetDefault("app.http.rateLimitBurst", 400)
	v.SetDefault("app.http.maxConcurrent", 300)
	v.SetDefault("app.http.maxBodyBytes", 10<<10)
	v.SetDefault("app.admin.port", 8081)
	v.SetDefault("log.level", "info")
	v.SetDefault("jwt.issuer", "tour-booking-api")
	v.SetDefault("jwt.accessTokenTTLMin", 90*24*60)
	v.SetDefault("jwt.cookieExpiresDays", 90)
	v.SetDefault("mongo.connectTimeoutSec", 10)
	v.SetDefault("mongo.serverSelectionTimeoutSec", 10)
	v.SetDefault("mongo.ensureIndexes", true)
	v.SetDefault("redis.analyticsTTLSec", 300)
	v.SetDefault("smtp.port", 587)
	v.SetDefault("reconcile.spec", "0 30 3 * * *")
	v.SetDefault("reconcile.timeoutSec", 300)
}
