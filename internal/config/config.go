package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/timeline-renderer/pkg/log"
)

// Config holds all application configuration, read from environment
// variables with defaults.
//
// Environment Variables:
// HTTP:
// - HTTP_ADDR: listen address (default: :8080)
// - RENDER_SECRET: shared secret for POST /render; empty leaves it open
// - RATE_LIMIT_RPS / RATE_LIMIT_BURST: token bucket on /render and /upload (default: 5 / 10, 0 disables)
// - PUBLIC_BASE_URL: prefix for returned render URLs (default: empty, relative URLs)
//
// Storage:
// - DATA_DIR: root of uploads/, renders/ and tmp/ (default: /app/data)
//
// Engine:
// - FFMPEG_PATH / FFPROBE_PATH: engine binaries (default: ffmpeg / ffprobe)
// - FONT_FILE / FONT_FILE_CJK: fonts for burned-in text
// - ENCODE_PRESET / ENCODE_CRF: x264 preset and quality (default: veryfast / 23)
// - ENCODE_TIMEOUT: bound on one engine run (default: 30m, 0 disables)
//
// Fetch:
// - FETCH_TIMEOUT: per download (default: 60s)
//
// Jobs:
// - RENDER_WORKERS: concurrent renders (default: 2)
// - JOB_RETENTION: how long jobs stay queryable (default: 1h)
// - SWEEP_CRON: eviction schedule (default: @every 1m)
// - JOB_DB_PATH: SQLite file for job durability (default: empty, disabled)
//
// Record:
// - MONGO_URI / MONGO_DATABASE / MONGO_COLLECTION: external project records (empty URI disables)
//
// S3:
// - S3_BUCKET / S3_REGION / S3_PREFIX / S3_PUBLIC_BASE_URL / S3_PATH_STYLE: publish renders (empty bucket disables)
//
// Telemetry:
// - OTEL_EXPORTER_OTLP_ENDPOINT / OTEL_SERVICE_NAME / OTEL_TRACES_SAMPLER_ARG
//
// System:
// - LOG_LEVEL: debug, info, warn or error (default: info)
// - SETTINGS_FILE: runtime settings JSON (default: /app/config/settings.json)
type Config struct {
	HTTP      HTTPConfig      `json:"http"`
	Storage   StorageConfig   `json:"storage"`
	Engine    EngineConfig    `json:"engine"`
	Fetch     FetchConfig     `json:"fetch"`
	Jobs      JobsConfig      `json:"jobs"`
	Record    RecordConfig    `json:"record"`
	S3        S3Config        `json:"s3"`
	Telemetry TelemetryConfig `json:"telemetry"`
	System    SystemConfig    `json:"system"`
}

type HTTPConfig struct {
	Addr           string  `json:"addr"`
	RenderSecret   string  `json:"-"`
	RateLimitRPS   float64 `json:"rate_limit_rps"`
	RateLimitBurst int     `json:"rate_limit_burst"`
	PublicBaseURL  string  `json:"public_base_url"`
}

type StorageConfig struct {
	DataDir string `json:"data_dir"`
}

type EngineConfig struct {
	FFmpegPath    string        `json:"ffmpeg_path"`
	FFprobePath   string        `json:"ffprobe_path"`
	FontFile      string        `json:"font_file"`
	FontFileCJK   string        `json:"font_file_cjk"`
	Preset        string        `json:"preset"`
	CRF           int           `json:"crf"`
	EncodeTimeout time.Duration `json:"encode_timeout"`
}

type FetchConfig struct {
	Timeout time.Duration `json:"timeout"`
}

type JobsConfig struct {
	Workers   int           `json:"workers"`
	Retention time.Duration `json:"retention"`
	SweepCron string        `json:"sweep_cron"`
	DBPath    string        `json:"db_path"`
}

type RecordConfig struct {
	MongoURI   string `json:"-"`
	Database   string `json:"database"`
	Collection string `json:"collection"`
}

type S3Config struct {
	Bucket        string `json:"bucket"`
	Region        string `json:"region"`
	Prefix        string `json:"prefix"`
	PublicBaseURL string `json:"public_base_url"`
	PathStyle     bool   `json:"path_style"`
}

type TelemetryConfig struct {
	Endpoint    string `json:"endpoint"`
	ServiceName string `json:"service_name"`
	SampleRate  string `json:"sample_rate"`
}

type SystemConfig struct {
	LogLevel     string `json:"log_level"`
	SettingsFile string `json:"settings_file"`
}

const (
	DefaultDataDir     = "/app/data"
	DefaultFontFile    = "/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf"
	DefaultFontFileCJK = "/usr/share/fonts/opentype/noto/NotoSansCJK-Regular.ttc"
	DefaultPreset      = "veryfast"
	DefaultCRF         = 23
	DefaultSweepCron   = "@every 1m"
)

// Option is a function type for configuring Config
type Option func(*Config)

// LoadDotEnv loads .env files when present; missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		HTTP: HTTPConfig{
			Addr:           getEnvString("HTTP_ADDR", ":8080"),
			RenderSecret:   getEnvString("RENDER_SECRET", ""),
			RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 5),
			RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 10),
			PublicBaseURL:  strings.TrimRight(getEnvString("PUBLIC_BASE_URL", ""), "/"),
		},
		Storage: StorageConfig{
			DataDir: getEnvString("DATA_DIR", DefaultDataDir),
		},
		Engine: EngineConfig{
			FFmpegPath:    getEnvString("FFMPEG_PATH", "ffmpeg"),
			FFprobePath:   getEnvString("FFPROBE_PATH", "ffprobe"),
			FontFile:      getEnvString("FONT_FILE", DefaultFontFile),
			FontFileCJK:   getEnvString("FONT_FILE_CJK", DefaultFontFileCJK),
			Preset:        getEnvString("ENCODE_PRESET", DefaultPreset),
			CRF:           getEnvInt("ENCODE_CRF", DefaultCRF),
			EncodeTimeout: getEnvDuration("ENCODE_TIMEOUT", 30*time.Minute),
		},
		Fetch: FetchConfig{
			Timeout: getEnvDuration("FETCH_TIMEOUT", 60*time.Second),
		},
		Jobs: JobsConfig{
			Workers:   getEnvInt("RENDER_WORKERS", 2),
			Retention: getEnvDuration("JOB_RETENTION", time.Hour),
			SweepCron: getEnvString("SWEEP_CRON", DefaultSweepCron),
			DBPath:    getEnvString("JOB_DB_PATH", ""),
		},
		Record: RecordConfig{
			MongoURI:   getEnvString("MONGO_URI", ""),
			Database:   getEnvString("MONGO_DATABASE", "renderer"),
			Collection: getEnvString("MONGO_COLLECTION", "projects"),
		},
		S3: S3Config{
			Bucket:        getEnvString("S3_BUCKET", ""),
			Region:        getEnvString("S3_REGION", ""),
			Prefix:        getEnvString("S3_PREFIX", "renders"),
			PublicBaseURL: getEnvString("S3_PUBLIC_BASE_URL", ""),
			PathStyle:     getEnvBool("S3_PATH_STYLE", false),
		},
		Telemetry: TelemetryConfig{
			Endpoint:    getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ServiceName: getEnvString("OTEL_SERVICE_NAME", "timeline-renderer"),
			SampleRate:  getEnvString("OTEL_TRACES_SAMPLER_ARG", ""),
		},
		System: SystemConfig{
			LogLevel:     getEnvString("LOG_LEVEL", "info"),
			SettingsFile: RuntimeSettingsFilePath(),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Info("Config: addr=%s data=%s workers=%d retention=%s sweep=%q s3=%t record=%t",
		config.HTTP.Addr, config.Storage.DataDir, config.Jobs.Workers, config.Jobs.Retention,
		config.Jobs.SweepCron, config.S3.Bucket != "", config.Record.MongoURI != "")

	return config, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Jobs.Workers <= 0 {
		errs = append(errs, fmt.Errorf("RENDER_WORKERS must be positive, got %d", c.Jobs.Workers))
	}
	if c.Jobs.Retention <= 0 {
		errs = append(errs, fmt.Errorf("JOB_RETENTION must be positive, got %s", c.Jobs.Retention))
	}
	if _, err := cron.ParseStandard(c.Jobs.SweepCron); err != nil {
		errs = append(errs, fmt.Errorf("invalid SWEEP_CRON: %w", err))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_TIMEOUT must be positive, got %s", c.Fetch.Timeout))
	}
	if c.Engine.EncodeTimeout < 0 {
		errs = append(errs, fmt.Errorf("ENCODE_TIMEOUT must not be negative, got %s", c.Engine.EncodeTimeout))
	}
	if err := validateEncoding(c.Engine.Preset, c.Engine.CRF); err != nil {
		errs = append(errs, err)
	}
	if c.HTTP.RateLimitRPS < 0 || c.HTTP.RateLimitBurst < 0 {
		errs = append(errs, fmt.Errorf("rate limit must not be negative"))
	}
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		errs = append(errs, fmt.Errorf("DATA_DIR is required"))
	}
	return errors.Join(errs...)
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s", "30m") or bare seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
