package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Vision   VisionConfig   `yaml:"vision"`
	Tracking TrackingConfig `yaml:"tracking"`
	Pitch    PitchConfig    `yaml:"pitch"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	APIKey      string `yaml:"api_key"`
	MetricsAddr string `yaml:"metrics_addr"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type VisionConfig struct {
	ModelsDir   string  `yaml:"models_dir"`
	Model       string  `yaml:"model"`
	ONNXLib     string  `yaml:"onnx_lib"` // empty uses the platform default
	Confidence  float64 `yaml:"confidence"`
	TargetClass string  `yaml:"target_class"` // empty keeps every class
	DefaultFPS  int     `yaml:"default_fps"`
	WorkerCount int     `yaml:"worker_count"`
	FrameWidth  int     `yaml:"frame_width"`
}

// TrackingConfig configures every tracker the worker creates. Each match gets
// its own tracker, so the values apply for that tracker's lifetime.
type TrackingConfig struct {
	IoUThreshold float64 `yaml:"iou_threshold"`
	MaxAge       int     `yaml:"max_age"`
	MinHits      int     `yaml:"min_hits"`
}

type PitchConfig struct {
	Length float64 `yaml:"length"`
	Width  float64 `yaml:"width"`
}

type StorageConfig struct {
	FrameRetention int `yaml:"frame_retention"` // frames kept per match, 0 keeps all
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a config with every default applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			MetricsAddr: ":8082",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Name:     "pitchtrack",
			User:     "pitchtrack",
			MaxConns: 20,
		},
		NATS: NATSConfig{URL: "nats://localhost:4222"},
		MinIO: MinIOConfig{
			Endpoint: "localhost:9000",
			Bucket:   "pitchtrack",
		},
		Vision: VisionConfig{
			ModelsDir:   "models",
			Model:       "yolov8n.onnx",
			Confidence:  0.3,
			TargetClass: "person",
			DefaultFPS:  25,
			WorkerCount: 4,
			FrameWidth:  1280,
		},
		Tracking: TrackingConfig{
			IoUThreshold: 0.3,
			MaxAge:       30,
			MinHits:      1,
		},
		Pitch: PitchConfig{
			Length: 105.0,
			Width:  68.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads an optional .env file, overlays the YAML file on the defaults,
// applies environment overrides and validates the result.
// A missing YAML file is not an error; the defaults and environment are used.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("load .env file", "error", err)
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		slog.Warn("config file not found, using defaults", "path", path)
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that cannot work at runtime.
func (c *Config) Validate() error {
	t := c.Tracking
	if t.IoUThreshold < 0 || t.IoUThreshold > 1 {
		return fmt.Errorf("config: tracking.iou_threshold %v outside [0,1]", t.IoUThreshold)
	}
	if t.MaxAge < 0 {
		return fmt.Errorf("config: tracking.max_age %d is negative", t.MaxAge)
	}
	if t.MinHits < 1 {
		return fmt.Errorf("config: tracking.min_hits %d must be at least 1", t.MinHits)
	}
	if c.Vision.Confidence < 0 || c.Vision.Confidence > 1 {
		return fmt.Errorf("config: vision.confidence %v outside [0,1]", c.Vision.Confidence)
	}
	if c.Vision.WorkerCount < 1 {
		return fmt.Errorf("config: vision.worker_count %d must be at least 1", c.Vision.WorkerCount)
	}
	if c.Pitch.Length <= 0 || c.Pitch.Width <= 0 {
		return fmt.Errorf("config: pitch dimensions must be positive, got %vx%v", c.Pitch.Length, c.Pitch.Width)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PT_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("PT_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("PT_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("PT_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("PT_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("PT_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("PT_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("PT_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("PT_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("PT_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("PT_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("PT_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("PT_ONNX_LIB"); v != "" {
		cfg.Vision.ONNXLib = v
	}
	if v := os.Getenv("PT_VISION_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Vision.WorkerCount = n
		}
	}
	if v := os.Getenv("PT_IOU_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Tracking.IoUThreshold = f
		}
	}
	if v := os.Getenv("PT_MAX_AGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Tracking.MaxAge = n
		}
	}
	if v := os.Getenv("PT_MIN_HITS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Tracking.MinHits = n
		}
	}
	if v := os.Getenv("PT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
