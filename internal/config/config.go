package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             int
	APIKey           string
	ModelID          string
	DetectBaseURL    string
	Confidence       int
	Overlap          int
	RTSPURL          string
	ShowWindow       bool
	MaxUploadDim     int // Longest frame dimension sent to the detector
	ReconnectBackoff int // Seconds to wait before reopening a lost stream
	DispatchBackoff  int // Seconds to wait after a failed detection round
	IdleWaitMillis   int // Dispatcher wait when no frame is available yet
	SnapshotQuality  int // JPEG quality for the /api/snapshot encoder
	LogDirectory     string
}

// Load reads configuration from the environment, after loading a local
// .env file when one exists.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:             getEnvAsInt("PORT", 8000),
		APIKey:           getEnv("ROBOFLOW_API_KEY", ""),
		ModelID:          getEnv("MODEL_ID", "thesis-flood-pixel/4"),
		DetectBaseURL:    getEnv("DETECT_BASE_URL", "https://detect.roboflow.com"),
		Confidence:       getEnvAsInt("CONFIDENCE", 40),
		Overlap:          getEnvAsInt("OVERLAP", 30),
		RTSPURL:          getEnv("RTSP_URL", "rtsp://127.0.0.1:554/stream"),
		ShowWindow:       getEnvAsBool("SHOW_WINDOW", false),
		MaxUploadDim:     getEnvAsInt("MAX_UPLOAD_DIM", 640),
		ReconnectBackoff: getEnvAsInt("RECONNECT_BACKOFF_SEC", 2),
		DispatchBackoff:  getEnvAsInt("DISPATCH_BACKOFF_SEC", 1),
		IdleWaitMillis:   getEnvAsInt("IDLE_WAIT_MS", 100),
		SnapshotQuality:  getEnvAsInt("JPEG_QUALITY", 70),
		LogDirectory:     getEnv("LOG_DIR", filepath.Join(".", "logs")),
	}
}

// DetectURL returns the full detection endpoint for the configured model.
func (c *Config) DetectURL() string {
	return fmt.Sprintf("%s/%s", c.DetectBaseURL, c.ModelID)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
