package config

import (
	"os"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

// Provider holds the OAuth client registration for one social platform.
type Provider struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

func (p Provider) Configured() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

type Config struct {
	Facebook           Provider
	Instagram          Provider
	Tiktok             Provider
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string
	PostgresURI        string
	RedisURI           string
	FrontendURL        string
	R2                 R2
	SecretKey          string
	CookieName         string
	Port               string
	WSAddr             string
	AggregationTimeout time.Duration
	PublishTimeout     time.Duration
	LinkNonceTTL       time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Facebook: Provider{
			ClientID:     getEnv("FACEBOOK_APP_ID", ""),
			ClientSecret: getEnv("FACEBOOK_APP_SECRET", ""),
			RedirectURI:  getEnv("FACEBOOK_REDIRECT_URI", "http://localhost:3000/auth/facebook/callback"),
		},
		Instagram: Provider{
			ClientID:     getEnv("INSTAGRAM_CLIENT_ID", ""),
			ClientSecret: getEnv("INSTAGRAM_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("INSTAGRAM_REDIRECT_URI", "http://localhost:3000/auth/instagram/callback"),
		},
		Tiktok: Provider{
			ClientID:     getEnv("TIKTOK_CLIENT_KEY", ""),
			ClientSecret: getEnv("TIKTOK_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("TIKTOK_REDIRECT_URI", "http://localhost:3000/auth/tiktok/callback"),
		},
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:  getEnv("GOOGLE_REDIRECT_URI", "http://localhost:3000/login/callback"),
		PostgresURI:        getEnv("POSTGRES_URI", ""),
		RedisURI:           getEnv("REDIS_URI", "localhost:6379"),
		FrontendURL:        getEnv("FRONTEND_URL", "http://localhost:5173"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
		SecretKey:          getEnv("SECRET_KEY", ""),
		CookieName:         getEnv("COOKIE_NAME", "socialhub_session"),
		Port:               getEnv("PORT", "3000"),
		WSAddr:             getEnv("WS_ADDR", ":3001"),
		AggregationTimeout: getDuration("AGGREGATION_TIMEOUT", 10*time.Second),
		PublishTimeout:     getDuration("PUBLISH_TIMEOUT", 90*time.Second),
		LinkNonceTTL:       getDuration("LINK_NONCE_TTL", 10*time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
