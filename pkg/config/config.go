package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/shouni/gemini-mask-kit/pkg/generator"
)

const (
	DefaultModel    = "gemini-2.5-flash-image"
	DefaultHTTPAddr = ":8080"
	DefaultCacheTTL = 30 * time.Minute
)

// Config は環境変数から読み込むサーバー設定です。
type Config struct {
	GeminiAPIKey    string
	GeminiModel     string
	RedisAddr       string // 空の場合はメモリ上のストアを使う
	HTTPAddr        string
	CacheTTL        time.Duration
	SafetyThreshold genai.HarmBlockThreshold
	Generator       generator.Options
}

// Load は os.Getenv から設定を読み込みます。
func Load() (Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom は getenv から設定を読み込みます。
func LoadFrom(getenv func(string) string) (Config, error) {
	cfg := Config{
		GeminiAPIKey:    strings.TrimSpace(getenv("GEMINI_API_KEY")),
		GeminiModel:     orDefault(getenv("GEMINI_MODEL"), DefaultModel),
		RedisAddr:       strings.TrimSpace(getenv("REDIS_ADDR")),
		HTTPAddr:        orDefault(getenv("HTTP_ADDR"), DefaultHTTPAddr),
		SafetyThreshold: genai.HarmBlockThreshold(strings.ToUpper(strings.TrimSpace(getenv("SAFETY_THRESHOLD")))),
	}
	if cfg.GeminiAPIKey == "" {
		return Config{}, errors.New("GEMINI_API_KEY is required")
	}

	var err error
	if cfg.CacheTTL, err = durationEnv(getenv, "CACHE_TTL", DefaultCacheTTL); err != nil {
		return Config{}, err
	}
	if cfg.Generator.ProviderTimeout, err = durationEnv(getenv, "PROVIDER_TIMEOUT", generator.DefaultProviderTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Generator.BatchTimeout, err = durationEnv(getenv, "BATCH_TIMEOUT", 0); err != nil {
		return Config{}, err
	}
	if cfg.Generator.Variations, err = intEnv(getenv, "VARIATIONS", generator.DefaultVariations); err != nil {
		return Config{}, err
	}
	if cfg.Generator.Variations < 1 {
		return Config{}, fmt.Errorf("VARIATIONS must be at least 1: %d", cfg.Generator.Variations)
	}
	return cfg, nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

func durationEnv(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s の値が不正です: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s は 0 以上で指定してください: %s", key, v)
	}
	return d, nil
}

func intEnv(getenv func(string) string, key string, def int) (int, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s の値が不正です: %w", key, err)
	}
	return n, nil
}
