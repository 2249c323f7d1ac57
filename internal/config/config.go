package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 実行環境
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// データストアのドライバー
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
	StoreDriverMemory   = "memory"
)

// ログイン時のプロフィール更新ポリシー
const (
	// ProfilePolicyKeep は既存ユーザーのプロフィールを一切更新しない。
	ProfilePolicyKeep = "keep"
	// ProfilePolicyRefreshAvatar は既存ユーザーのアバターURLをログインのたびに上書きする。
	ProfilePolicyRefreshAvatar = "refresh-avatar"
)

// DevTokenSecret は本番以外で使用するトークン署名用のプレースホルダー。
const DevTokenSecret = "dev_secret"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	AppEnv string

	// WeChat
	AppID           string
	AppSecret       string
	WeChatAPIBase   string
	ExchangeTimeout time.Duration

	// Token
	TokenSecret string
	TokenTTL    time.Duration

	// Store
	StoreDriver  string
	DatabaseURL  string
	MongoURI     string
	DatabaseName string
	StoreTimeout time.Duration

	// Login
	ProfilePolicy string

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// IsProduction は本番環境かどうかを返す。
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// StoreURL は選択されたドライバーの接続文字列を返す。
func (c *Config) StoreURL() string {
	switch c.StoreDriver {
	case StoreDriverMongo:
		return c.MongoURI
	case StoreDriverPostgres:
		return c.DatabaseURL
	default:
		return ""
	}
}

// LoadDotEnv は本番以外の環境で.envファイルを読み込む。
// ファイルが存在しない場合は何もしない。既に設定済みの環境変数は上書きしない。
func LoadDotEnv(files ...string) error {
	if os.Getenv("APP_ENV") == EnvProduction {
		return nil
	}
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 本番環境で必須の環境変数が未設定の場合はエラーを返す。
// 本番以外ではデータストアやIdPの設定がなくても起動でき、縮退モードで動作する。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.AppEnv = getEnvString("APP_ENV", EnvDevelopment)

	cfg.AppID = os.Getenv("APPID")
	cfg.AppSecret = os.Getenv("APPSECRET")
	cfg.TokenSecret = os.Getenv("JWT_SECRET")

	if cfg.IsProduction() {
		var missing []string
		if cfg.AppID == "" {
			missing = append(missing, "APPID")
		}
		if cfg.AppSecret == "" {
			missing = append(missing, "APPSECRET")
		}
		if cfg.TokenSecret == "" {
			missing = append(missing, "JWT_SECRET")
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("required environment variables are not set: %v", missing)
		}
	} else if cfg.TokenSecret == "" {
		cfg.TokenSecret = DevTokenSecret
	}

	cfg.StoreDriver = strings.ToLower(getEnvString("STORE_DRIVER", StoreDriverPostgres))
	switch cfg.StoreDriver {
	case StoreDriverPostgres, StoreDriverMongo, StoreDriverMemory:
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER: %q", cfg.StoreDriver)
	}
	if cfg.IsProduction() && cfg.StoreDriver == StoreDriverMemory {
		return nil, fmt.Errorf("STORE_DRIVER=%s is not allowed in production", StoreDriverMemory)
	}

	cfg.ProfilePolicy = getEnvString("LOGIN_PROFILE_POLICY", ProfilePolicyKeep)
	switch cfg.ProfilePolicy {
	case ProfilePolicyKeep, ProfilePolicyRefreshAvatar:
	default:
		return nil, fmt.Errorf("unsupported LOGIN_PROFILE_POLICY: %q", cfg.ProfilePolicy)
	}

	// Optional fields with defaults
	cfg.WeChatAPIBase = getEnvString("WECHAT_API_BASE_URL", "https://api.weixin.qq.com")
	cfg.ExchangeTimeout = getEnvDuration("EXCHANGE_TIMEOUT", 10*time.Second)
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", 7*24*time.Hour)
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.MongoURI = os.Getenv("MONGODB_URI")
	cfg.DatabaseName = getEnvString("DATABASE_NAME", "miniprogram")
	cfg.StoreTimeout = getEnvDuration("STORE_TIMEOUT", 5*time.Second)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
