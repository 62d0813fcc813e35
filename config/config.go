package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	DefaultAvatarsSubDir   = "avatars"
	DefaultHeadshotsSubDir = "headshots"
)

const (
	defaultHeadshotQueueSize = 100
	defaultNumWorkers        = 2

	defaultCameraWidth      = 640
	defaultCameraHeight     = 480
	defaultReadinessTimeout = 4 // seconds

	defaultZoomMin = 1.0
	defaultZoomMax = 3.0

	defaultAvatarOutputSize = 200
	defaultHeadshotSize     = 48
	defaultJpegQuality      = 85
)

type Config struct {
	// database path (sqlite file)
	DatabasePath string

	// media storage configuration
	MediaStoragePath string // root for stored avatar assets
	AvatarsPath      string // full-calculated path for avatars
	HeadshotsPath    string // full-calculated path for headshot variants
	PublicBaseURL    string // prefix used to build public URLs for stored objects

	// camera acquisition settings
	CameraDeviceID   int
	CameraWidth      int
	CameraHeight     int
	ReadinessTimeout time.Duration

	// crop/zoom settings
	ZoomMin float64
	ZoomMax float64

	// compositor settings
	AvatarOutputSize int // 0 keeps native crop resolution
	HeadshotSize     int
	JpegQuality      int

	// worker settings
	HeadshotQueueSize int
	NumWorkers        int

	// auth settings
	JWTSecret string
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvFloatOrDefault(envVar string, defaultVal float64) float64 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid %s '%s'. Using default %g. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func LoadConfig() (Config, error) {
	dbPath := getEnvOrDefault("DATABASE_PATH", "avatars.db")

	mediaStorage := getEnvOrDefault("MEDIA_STORAGE_PATH", filepath.Join(".", "media_storage"))
	absMediaStorage, err := filepath.Abs(mediaStorage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for media storage '%s': %w", mediaStorage, err)
	}

	avatarsSubDir := getEnvOrDefault("AVATARS_SUBDIR", DefaultAvatarsSubDir)
	absAvatarsPath := filepath.Join(absMediaStorage, avatarsSubDir)

	headshotsSubDir := getEnvOrDefault("HEADSHOTS_SUBDIR", DefaultHeadshotsSubDir)
	absHeadshotsPath := filepath.Join(absMediaStorage, headshotsSubDir)

	zoomMin := getEnvFloatOrDefault("ZOOM_MIN", defaultZoomMin)
	zoomMax := getEnvFloatOrDefault("ZOOM_MAX", defaultZoomMax)
	if zoomMin < 1.0 {
		log.Printf("Warning: ZOOM_MIN %g below 1.0 would show padding, clamping to 1.0", zoomMin)
		zoomMin = 1.0
	}
	if zoomMax < zoomMin {
		return Config{}, fmt.Errorf("invalid zoom bounds: min %g > max %g", zoomMin, zoomMax)
	}

	quality := getEnvIntOrDefault("JPEG_QUALITY", defaultJpegQuality)
	if quality < 1 || quality > 100 {
		log.Printf("Warning: JPEG_QUALITY %d out of range, using default %d", quality, defaultJpegQuality)
		quality = defaultJpegQuality
	}

	readinessSecs := getEnvIntOrDefault("CAMERA_READINESS_TIMEOUT_SECS", defaultReadinessTimeout)

	cfg := Config{
		DatabasePath:      dbPath,
		MediaStoragePath:  absMediaStorage,
		AvatarsPath:       absAvatarsPath,
		HeadshotsPath:     absHeadshotsPath,
		PublicBaseURL:     getEnvOrDefault("PUBLIC_BASE_URL", "http://localhost:8080/api"),
		CameraDeviceID:    getEnvIntOrDefault("CAMERA_DEVICE_ID", 0),
		CameraWidth:       getEnvIntOrDefault("CAMERA_WIDTH", defaultCameraWidth),
		CameraHeight:      getEnvIntOrDefault("CAMERA_HEIGHT", defaultCameraHeight),
		ReadinessTimeout:  time.Duration(readinessSecs) * time.Second,
		ZoomMin:           zoomMin,
		ZoomMax:           zoomMax,
		AvatarOutputSize:  getEnvIntOrDefault("AVATAR_OUTPUT_SIZE", defaultAvatarOutputSize),
		HeadshotSize:      getEnvIntOrDefault("HEADSHOT_SIZE", defaultHeadshotSize),
		JpegQuality:       quality,
		HeadshotQueueSize: getEnvIntOrDefault("HEADSHOT_QUEUE_SIZE", defaultHeadshotQueueSize),
		NumWorkers:        getEnvIntOrDefault("NUM_WORKERS", defaultNumWorkers),
		JWTSecret:         getEnvOrDefault("JWT_SECRET", ""),
	}

	if cfg.JWTSecret == "" {
		log.Printf("Warning: JWT_SECRET not set, using an insecure development default")
		cfg.JWTSecret = "insecure-dev-secret"
	}

	return cfg, nil
}
