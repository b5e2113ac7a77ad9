package main

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/AcousticID/pkg/acousticid"
	"github.com/himanishpuri/AcousticID/pkg/acousticid/fingerprint"
	"github.com/himanishpuri/AcousticID/pkg/acousticid/intake"
	"github.com/himanishpuri/AcousticID/pkg/acousticid/lookup"
	"github.com/himanishpuri/AcousticID/pkg/logger"
	"github.com/joho/godotenv"
)

var (
	port               int
	apiKey             string
	apiURL             string
	uploadDir          string
	maxUploadBytes     int64
	fpcalcPath         string
	fingerprintTimeout time.Duration
	lookupTimeout      time.Duration
	dbPath             string
	allowedOrigins     string
	debugErrors        bool
)

func registerFlags() {
	flag.IntVar(&port, "port", getEnvInt("PORT", 3001), "HTTP server port")
	flag.StringVar(&apiKey, "api-key", os.Getenv("ACOUSTID_API_KEY"), "AcoustID application API key (required)")
	flag.StringVar(&apiURL, "api-url", getEnvOrDefault("ACOUSTID_API_URL", lookup.DefaultBaseURL), "AcoustID lookup endpoint")
	flag.StringVar(&uploadDir, "uploads", getEnvOrDefault("UPLOAD_DIR", "uploads"), "Transient upload directory")
	flag.Int64Var(&maxUploadBytes, "max-upload", int64(getEnvInt("MAX_UPLOAD_BYTES", int(intake.DefaultMaxBytes))), "Maximum upload size in bytes")
	flag.StringVar(&fpcalcPath, "fpcalc", getEnvOrDefault("FPCALC_PATH", fingerprint.DefaultBinary), "Path to the fpcalc binary")
	flag.DurationVar(&fingerprintTimeout, "fpcalc-timeout", getEnvDuration("FPCALC_TIMEOUT", fingerprint.DefaultTimeout), "fpcalc run timeout")
	flag.DurationVar(&lookupTimeout, "lookup-timeout", getEnvDuration("LOOKUP_TIMEOUT", lookup.DefaultTimeout), "AcoustID request timeout")
	flag.StringVar(&dbPath, "db", getEnvOrDefault("ACOUSTID_DB_PATH", "acousticid.sqlite3"), "Path to the analysis history database (empty disables history)")
	flag.StringVar(&allowedOrigins, "origins", getEnvOrDefault("CORS_ORIGINS", "*"), "Comma-separated list of allowed CORS origins (use * for all)")
	flag.BoolVar(&debugErrors, "debug-errors", getEnvBool("DEBUG_ERRORS"), "Include failure causes in error responses")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}

func getEnvBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

func parseOrigins(s string) []string {
	if s == "*" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func main() {
	log := logger.GetLogger()

	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("Failed to load .env: %v", err)
	}

	registerFlags()
	flag.Parse()

	if apiKey == "" {
		log.Fatalf("ACOUSTID_API_KEY is not set; refusing to start")
	}

	service, err := acousticid.NewService(
		acousticid.WithAPIKey(apiKey),
		acousticid.WithLookupURL(apiURL),
		acousticid.WithLookupTimeout(lookupTimeout),
		acousticid.WithFpcalcPath(fpcalcPath),
		acousticid.WithFingerprintTimeout(fingerprintTimeout),
		acousticid.WithUploadDir(uploadDir),
		acousticid.WithMaxUploadBytes(maxUploadBytes),
		acousticid.WithDBPath(dbPath),
		acousticid.WithLogger(log),
	)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	config := &ServerConfig{
		Port:           port,
		UploadDir:      uploadDir,
		MaxUploadBytes: maxUploadBytes,
		DBPath:         dbPath,
		AllowedOrigins: parseOrigins(allowedOrigins),
		DebugErrors:    debugErrors,
	}

	server := NewServer(service, config)
	if err := server.Start(); err != nil {
		log.Errorf("Server failed: %v", err)
		service.Close()
		os.Exit(1)
	}
}
