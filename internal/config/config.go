package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"mwlister/internal/models"
	"mwlister/internal/xerrors"
)

// Flags mirrors the CLI surface one to one. Raw strings only; Load turns
// it into a validated Config.
type Flags struct {
	Keyword      string
	MaxResults   int
	TemplatePath string
	OutputPath   string
	DescTemplate string
	CategoryID   string
	Brand        string
	Price        string
	Stock        int
	WeightKG     float64
	Dims         string
	SKUPrefix    string
	MetaOutPath  string
	DownloadDir  string
	AllowGIF     bool
	SheetName    string
	Proxy        string
	Headless     bool
	RunTimeout   time.Duration
}

type Config struct {
	Keyword      string
	MaxResults   int
	TemplatePath string
	OutputPath   string
	DescTemplate string
	SKUPrefix    string
	MetaOutPath  string
	DownloadDir  string
	AllowGIF     bool
	SheetName    string
	RunTimeout   time.Duration

	Commerce models.CommerceParams

	Browser BrowserConfig
	Scraper ScraperConfig
	Media   MediaConfig
	Logging LoggingConfig
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	UserAgent      string
	StateFile      string
}

type ScraperConfig struct {
	BaseURL      string
	RateLimitMin time.Duration
	RateLimitMax time.Duration
	MaxRetries   int
}

type MediaConfig struct {
	DownloadTimeout time.Duration
	ConvertTimeout  time.Duration
	ConcurrentLimit int
	FFmpegPath      string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// commerceInput carries the raw commerce parameters through validator
// before they are converted into models.CommerceParams.
type commerceInput struct {
	CategoryID string  `validate:"required"`
	Brand      string  `validate:"required"`
	Stock      int     `validate:"gte=0"`
	WeightKG   float64 `validate:"gte=0"`
	SKUPrefix  string  `validate:"required"`
}

var validate = validator.New()

// Load builds the immutable run configuration from the parsed flags and
// the environment. It fails fast: any malformed commerce parameter or
// missing input aborts before a browser or network connection is opened.
func Load(f Flags) (*Config, error) {
	if strings.TrimSpace(f.Keyword) == "" {
		return nil, xerrors.Config("keyword (-k) is required")
	}
	if f.MaxResults < 1 {
		return nil, xerrors.Config("max results (-m) must be at least 1, got %d", f.MaxResults)
	}
	if f.TemplatePath == "" {
		return nil, xerrors.Config("template path (--template) is required")
	}
	if _, err := os.Stat(f.TemplatePath); err != nil {
		return nil, xerrors.Config("template not found: %s", f.TemplatePath)
	}
	if f.DescTemplate != "" {
		if _, err := os.Stat(f.DescTemplate); err != nil {
			return nil, xerrors.Config("description template not found: %s", f.DescTemplate)
		}
	}

	in := commerceInput{
		CategoryID: strings.TrimSpace(f.CategoryID),
		Brand:      strings.TrimSpace(f.Brand),
		Stock:      f.Stock,
		WeightKG:   f.WeightKG,
		SKUPrefix:  strings.TrimSpace(f.SKUPrefix),
	}
	if err := validate.Struct(in); err != nil {
		return nil, xerrors.Validation("commerce parameters: %s", validationMessage(err))
	}

	price, err := decimal.NewFromString(strings.TrimSpace(f.Price))
	if err != nil {
		return nil, xerrors.Validation("price %q is not numeric", f.Price)
	}
	if price.IsNegative() {
		return nil, xerrors.Validation("price must not be negative, got %s", price)
	}

	dims, err := parseDims(f.Dims)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Keyword:      strings.TrimSpace(f.Keyword),
		MaxResults:   f.MaxResults,
		TemplatePath: f.TemplatePath,
		OutputPath:   f.OutputPath,
		DescTemplate: f.DescTemplate,
		SKUPrefix:    in.SKUPrefix,
		MetaOutPath:  f.MetaOutPath,
		DownloadDir:  f.DownloadDir,
		AllowGIF:     f.AllowGIF,
		SheetName:    f.SheetName,
		RunTimeout:   f.RunTimeout,
		Commerce: models.CommerceParams{
			CategoryID: in.CategoryID,
			Brand:      in.Brand,
			Price:      price,
			Stock:      in.Stock,
			WeightKG:   in.WeightKG,
			DimsCM:     dims,
		},
		Browser: BrowserConfig{
			Headless:       f.Headless && getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1400),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 900),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Asia/Jakarta"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
			ProxyServer:    f.Proxy,
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", defaultUserAgent),
			StateFile:      getEnvOrDefault("BROWSER_STATE_FILE", "makerworld_state.json"),
		},
		Scraper: ScraperConfig{
			BaseURL:      getEnvOrDefault("SCRAPER_BASE_URL", "https://makerworld.com"),
			RateLimitMin: getDurationOrDefault("SCRAPER_RATE_LIMIT_MIN", 2*time.Second),
			RateLimitMax: getDurationOrDefault("SCRAPER_RATE_LIMIT_MAX", 6*time.Second),
			MaxRetries:   getIntOrDefault("SCRAPER_MAX_RETRIES", 3),
		},
		Media: MediaConfig{
			DownloadTimeout: getDurationOrDefault("MEDIA_DOWNLOAD_TIMEOUT", 60*time.Second),
			ConvertTimeout:  getDurationOrDefault("MEDIA_CONVERT_TIMEOUT", 2*time.Minute),
			ConcurrentLimit: getIntOrDefault("MEDIA_CONCURRENT_LIMIT", 4),
			FFmpegPath:      getEnvOrDefault("FFMPEG_PATH", "ffmpeg"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
		},
	}

	if cfg.Scraper.RateLimitMin > cfg.Scraper.RateLimitMax {
		return nil, xerrors.Config("SCRAPER_RATE_LIMIT_MIN cannot be greater than SCRAPER_RATE_LIMIT_MAX")
	}
	if cfg.Media.ConcurrentLimit < 1 {
		return nil, xerrors.Config("MEDIA_CONCURRENT_LIMIT must be at least 1")
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 15 * time.Minute
	}

	return cfg, nil
}

func parseDims(s string) ([3]float64, error) {
	var dims [3]float64
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return dims, xerrors.Validation("dims must be length,width,height, got %q", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return dims, xerrors.Validation("dims component %q is not numeric", p)
		}
		if v <= 0 {
			return dims, xerrors.Validation("dims components must be positive, got %v", v)
		}
		dims[i] = v
	}
	return dims, nil
}

func validationMessage(err error) string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, strings.ToLower(fe.Field())+" is required")
		case "gte":
			msgs = append(msgs, strings.ToLower(fe.Field())+" must be at least "+fe.Param())
		case "gt":
			msgs = append(msgs, strings.ToLower(fe.Field())+" must be greater than "+fe.Param())
		default:
			msgs = append(msgs, strings.ToLower(fe.Field())+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
