package acousticid

import (
	"time"

	"github.com/himanishpuri/AcousticID/pkg/acousticid/fingerprint"
	"github.com/himanishpuri/AcousticID/pkg/acousticid/intake"
	"github.com/himanishpuri/AcousticID/pkg/acousticid/lookup"
)

type Config struct {
	APIKey             string
	LookupURL          string
	LookupTimeout      time.Duration
	FpcalcPath         string
	FingerprintTimeout time.Duration
	UploadDir          string
	MaxUploadBytes     int64
	DBPath             string // empty disables analysis history
	Logger             Logger
	Storage            Storage
	Fingerprinter      Fingerprinter
	LookupClient       LookupClient
}

type Option func(*Config)

func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

func WithLookupURL(u string) Option {
	return func(c *Config) {
		c.LookupURL = u
	}
}

func WithLookupTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.LookupTimeout = d
	}
}

func WithFpcalcPath(path string) Option {
	return func(c *Config) {
		c.FpcalcPath = path
	}
}

func WithFingerprintTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.FingerprintTimeout = d
	}
}

func WithUploadDir(dir string) Option {
	return func(c *Config) {
		c.UploadDir = dir
	}
}

func WithMaxUploadBytes(n int64) Option {
	return func(c *Config) {
		c.MaxUploadBytes = n
	}
}

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithStorage(storage Storage) Option {
	return func(c *Config) {
		c.Storage = storage
	}
}

// WithFingerprinter replaces the fpcalc-backed generator.
func WithFingerprinter(f Fingerprinter) Option {
	return func(c *Config) {
		c.Fingerprinter = f
	}
}

// WithLookupClient replaces the AcoustID client. No API key is needed then.
func WithLookupClient(l LookupClient) Option {
	return func(c *Config) {
		c.LookupClient = l
	}
}

func defaultConfig() *Config {
	return &Config{
		LookupURL:          lookup.DefaultBaseURL,
		LookupTimeout:      lookup.DefaultTimeout,
		FpcalcPath:         fingerprint.DefaultBinary,
		FingerprintTimeout: fingerprint.DefaultTimeout,
		UploadDir:          "uploads",
		MaxUploadBytes:     intake.DefaultMaxBytes,
	}
}
