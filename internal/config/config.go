// Package config loads service configuration: environment first, with an
// optional yaml file override pointed to by TENBIO_CONFIG.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BackendConfig configures one prediction backend process.
type BackendConfig struct {
	// Kind is "protenix" or "esm".
	Kind string `yaml:"kind"`
	Port int    `yaml:"port"`
	// OutputDir is the base directory for per-job output.
	OutputDir string `yaml:"output_dir"`
	// CatalogFile optionally overrides the built-in model catalog.
	CatalogFile string `yaml:"catalog_file"`
	// PreloadModel is loaded in the background at startup when set.
	PreloadModel string `yaml:"preload_model"`
	// RunnerCommand is the inference runner executable.
	RunnerCommand string `yaml:"runner_command"`

	// QueueBackend is "memory" (default) or "redis".
	QueueBackend  string `yaml:"queue_backend"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisKey      string `yaml:"redis_key"`

	// MinIOEndpoint enables artifact mirroring when set.
	MinIOEndpoint  string `yaml:"minio_endpoint"`
	MinIOAccessKey string `yaml:"minio_access_key"`
	MinIOSecretKey string `yaml:"minio_secret_key"`
	MinIOBucket    string `yaml:"minio_bucket"`
	MinIOUseSSL    bool   `yaml:"minio_use_ssl"`
}

// GatewayBackend is one downstream entry in the gateway config.
type GatewayBackend struct {
	Name        string   `yaml:"name"`
	BaseURL     string   `yaml:"base_url"`
	Prefixes    []string `yaml:"prefixes"`
	DisplayName string   `yaml:"display_name"`
}

// GatewayConfig configures the gateway process. Backend order is probe order;
// the first backend is the routing fallback.
type GatewayConfig struct {
	Port           int              `yaml:"port"`
	Backends       []GatewayBackend `yaml:"backends"`
	RequestTimeout time.Duration    `yaml:"request_timeout"`
}

// LoadBackend builds the backend config from env, then applies the yaml
// override when TENBIO_CONFIG is set.
func LoadBackend() (BackendConfig, error) {
	cfg := BackendConfig{
		Kind:          getenv("TENBIO_BACKEND_KIND", "protenix"),
		Port:          getenvInt("TENBIO_BACKEND_PORT", 8001),
		OutputDir:     getenv("TENBIO_OUTPUT_DIR", "/app/output"),
		CatalogFile:   getenv("TENBIO_CATALOG_FILE", ""),
		PreloadModel:  getenv("PRELOAD_MODEL", ""),
		RunnerCommand: getenv("TENBIO_RUNNER_COMMAND", "protenix-runner"),
		QueueBackend:  getenv("TENBIO_QUEUE_BACKEND", "memory"),
		RedisAddr:     getenv("TENBIO_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("TENBIO_REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("TENBIO_REDIS_DB", 0),
		RedisKey:      getenv("TENBIO_REDIS_KEY", ""),

		MinIOEndpoint:  getenv("TENBIO_MINIO_ENDPOINT", ""),
		MinIOAccessKey: getenv("TENBIO_MINIO_ACCESS_KEY", ""),
		MinIOSecretKey: getenv("TENBIO_MINIO_SECRET_KEY", ""),
		MinIOBucket:    getenv("TENBIO_MINIO_BUCKET", "tenbio-structures"),
		MinIOUseSSL:    getenvBool("TENBIO_MINIO_USE_SSL", false),
	}
	if cfg.Kind == "esm" && os.Getenv("TENBIO_BACKEND_PORT") == "" {
		cfg.Port = 8002
	}
	if err := applyOverride(&cfg); err != nil {
		return BackendConfig{}, err
	}
	switch cfg.QueueBackend {
	case "memory", "redis":
	default:
		return BackendConfig{}, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
	return cfg, nil
}

// LoadGateway builds the gateway config from env, then applies the yaml
// override when TENBIO_CONFIG is set.
func LoadGateway() (GatewayConfig, error) {
	cfg := GatewayConfig{
		Port: getenvInt("TENBIO_GATEWAY_PORT", 8080),
		Backends: []GatewayBackend{
			{
				Name:        "protenix",
				BaseURL:     getenv("PROTENIX_SERVICE_URL", "http://localhost:8001"),
				Prefixes:    []string{"protenix_"},
				DisplayName: "Protenix",
			},
			{
				Name:        "esm",
				BaseURL:     getenv("ESM_SERVICE_URL", "http://localhost:8002"),
				Prefixes:    []string{"esm"},
				DisplayName: "ESM",
			},
		},
		RequestTimeout: getenvDuration("TENBIO_REQUEST_TIMEOUT", 30*time.Second),
	}
	if err := applyOverride(&cfg); err != nil {
		return GatewayConfig{}, err
	}
	if len(cfg.Backends) == 0 {
		return GatewayConfig{}, fmt.Errorf("gateway config lists no backends")
	}
	return cfg, nil
}

func applyOverride(out any) error {
	path := strings.TrimSpace(os.Getenv("TENBIO_CONFIG"))
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, out); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func getenv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
