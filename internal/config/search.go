package config

import (
	"os"

	"github.com/spf13/viper"
)

// LoadSearchConfig reads the search API settings.
// The access token follows this precedence:
// 1. Viper configuration (from config file or ENRICH_ env vars)
// 2. Direct environment variables (FACEBOOK_ACCESS_TOKEN, then META_ACCESS_TOKEN)
func LoadSearchConfig(v *viper.Viper) SearchConfig {
	cfg := SearchConfig{
		BaseURL:           v.GetString("search.base_url"),
		APIVersion:        v.GetString("search.api_version"),
		AccessToken:       v.GetString("search.access_token"),
		Limit:             v.GetInt("search.limit"),
		Timeout:           v.GetDuration("search.timeout"),
		RequestsPerSecond: v.GetFloat64("search.requests_per_second"),
		Burst:             v.GetInt("search.burst"),
	}

	if cfg.AccessToken == "" {
		cfg.AccessToken = os.Getenv("FACEBOOK_ACCESS_TOKEN")
	}
	if cfg.AccessToken == "" {
		cfg.AccessToken = os.Getenv("META_ACCESS_TOKEN")
	}
	return cfg
}
