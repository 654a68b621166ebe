package config

import (
	_ "embed"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/class-attendance/internal/constants"
	"github.com/kozaktomas/class-attendance/internal/quality"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	FaceService FaceServiceConfig
	Attendance  AttendanceConfig
	Storage     StorageConfig
	Web         WebConfig
}

type AppConfig struct {
	Name string
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Directory to persist per-class enrollment indexes (optional)
}

// FaceServiceConfig points at the detector/embedder model server.
type FaceServiceConfig struct {
	URL     string        // defaults to http://localhost:8000
	Timeout time.Duration // per request, defaults to 60s
}

// QualityConfig holds the quality gate thresholds.
type QualityConfig struct {
	MinConf float64 `yaml:"min_conf" json:"min_conf"`
	MinFace int     `yaml:"min_face" json:"min_face"`
	MinBlur float64 `yaml:"min_blur" json:"min_blur"`
}

// Thresholds converts the configured values for the quality gate.
func (q QualityConfig) Thresholds() quality.Thresholds {
	return quality.Thresholds{MinConf: q.MinConf, MinFaceSize: q.MinFace, MinBlur: q.MinBlur}
}

type EnrollConfig struct {
	DuplicateDistance float64 `yaml:"duplicate_distance" json:"duplicate_distance"`
}

type AttendanceConfig struct {
	Threshold float64       `yaml:"threshold" json:"threshold"`
	Workers   int           `yaml:"workers" json:"workers"`
	Quality   QualityConfig `yaml:"quality" json:"quality"`
	Enroll    EnrollConfig  `yaml:"enroll" json:"enroll"`
}

type StorageConfig struct {
	Dir           string
	RetentionDays int
}

type WebConfig struct {
	APIToken       string // optional bearer token for /api/v1
	AllowedOrigins string // comma-separated CORS origins
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float64.
// Thresholds are passed through unvalidated, so negative values are accepted.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// Defaults returns the attendance settings from the embedded defaults.yaml.
func Defaults() AttendanceConfig {
	var defaults AttendanceConfig
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return defaults
}

func Load() *Config {
	defaults := Defaults()

	return &Config{
		App: AppConfig{
			Name: envString("APP_NAME", "face-attendance"),
		},
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		FaceService: FaceServiceConfig{
			URL:     os.Getenv("FACE_SERVICE_URL"),
			Timeout: time.Duration(envInt("FACE_SERVICE_TIMEOUT_SEC", 60)) * time.Second,
		},
		Attendance: AttendanceConfig{
			Threshold: envFloat("ATTENDANCE_THRESHOLD", defaults.Threshold),
			Workers:   envInt("ATTENDANCE_WORKERS", defaults.Workers),
			Quality: QualityConfig{
				MinConf: envFloat("QUALITY_MIN_CONF", defaults.Quality.MinConf),
				MinFace: envInt("QUALITY_MIN_FACE", defaults.Quality.MinFace),
				MinBlur: envFloat("QUALITY_MIN_BLUR", defaults.Quality.MinBlur),
			},
			Enroll: EnrollConfig{
				DuplicateDistance: envFloat("ENROLL_DUPLICATE_DISTANCE", defaults.Enroll.DuplicateDistance),
			},
		},
		Storage: StorageConfig{
			Dir:           envString("STORAGE_DIR", "./storage"),
			RetentionDays: envInt("RETENTION_DAYS", constants.DefaultRetentionDays),
		},
		Web: WebConfig{
			APIToken:       os.Getenv("WEB_API_TOKEN"),
			AllowedOrigins: os.Getenv("WEB_ALLOWED_ORIGINS"),
		},
	}
}
