// Package config loads run settings from .env, CATWATCH_* variables and
// command-line flags, in that order of increasing precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ayusman/catwatch/internal/app"
	"github.com/ayusman/catwatch/internal/capture"
	"github.com/ayusman/catwatch/internal/detector"
	"github.com/ayusman/catwatch/internal/notify"
	"github.com/ayusman/catwatch/internal/snapshot"
)

// Mode selects the detection strategy.
type Mode string

const (
	ModeBasic    Mode = "basic"
	ModeSafe     Mode = "safe"
	ModeAdvanced Mode = "advanced"
)

// Default resource locations, relative to a resources directory search.
const (
	DefaultCascade     = "resources/haarcascade_frontalcatface.xml"
	DefaultYOLOWeights = "resources/models/yolov3-tiny.weights"
	DefaultYOLOConfig  = "resources/models/yolov3-tiny.cfg"
	DefaultNames       = "resources/models/coco.names"
	DefaultSound       = "resources/pug-woof-2-103762.mp3"
)

var (
	// ErrInvalidMode is returned for an unknown -mode value.
	ErrInvalidMode = errors.New("invalid mode")
	// ErrInvalidConfig is returned when a setting is out of range.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Preset holds the per-mode tuning.
type Preset struct {
	Cooldown  time.Duration
	FrameSkip int
	Cascade   detector.CascadeParams
	Validate  bool
	Neural    bool
}

// Presets returns the tuning for m.
func Presets(m Mode) (Preset, error) {
	switch m {
	case ModeBasic:
		return Preset{
			Cooldown:  5 * time.Second,
			FrameSkip: 2,
			Cascade:   detector.BasicCascade,
		}, nil
	case ModeSafe:
		return Preset{
			Cooldown:  3 * time.Second,
			FrameSkip: 2,
			Cascade:   detector.StrictCascade,
			Validate:  true,
		}, nil
	case ModeAdvanced:
		return Preset{
			Cooldown:  5 * time.Second,
			FrameSkip: 1,
			Cascade:   detector.FallbackCascade,
			Neural:    true,
		}, nil
	default:
		return Preset{}, fmt.Errorf("%w: %q (want basic, safe or advanced)", ErrInvalidMode, m)
	}
}

// Config is the resolved run configuration.
type Config struct {
	Mode     Mode
	CameraID int
	// FPS is the capture rate requested from the camera driver.
	FPS int

	OutputDir   string
	SoundPath   string
	CascadePath string
	YOLOWeights string
	YOLOConfig  string
	NamesPath   string

	// Cooldown of zero means "use the mode preset".
	Cooldown           time.Duration
	FrameSkip          int
	RetryDelay         time.Duration
	MaxCaptureFailures int

	Headless bool
	Tray     bool

	HTTPAddr    string
	DBPath      string
	NATSURL     string
	NATSSubject string

	LogLevel string

	Preset Preset
}

// Load builds a Config from the environment and args (without the program
// name). A missing .env file is not an error.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	cfg := fromEnv()

	fs := flag.NewFlagSet("catwatch", flag.ContinueOnError)
	mode := fs.String("mode", string(cfg.Mode), "detection mode: basic, safe or advanced")
	fs.IntVar(&cfg.CameraID, "camera", cfg.CameraID, "camera device index")
	fs.IntVar(&cfg.FPS, "fps", cfg.FPS, "requested camera frame rate")
	fs.StringVar(&cfg.OutputDir, "output", cfg.OutputDir, "directory for cat snapshots")
	fs.StringVar(&cfg.SoundPath, "sound", cfg.SoundPath, "alert sound file")
	fs.StringVar(&cfg.CascadePath, "cascade", cfg.CascadePath, "Haar cascade XML")
	fs.StringVar(&cfg.YOLOWeights, "yolo-weights", cfg.YOLOWeights, "Darknet weights file")
	fs.StringVar(&cfg.YOLOConfig, "yolo-config", cfg.YOLOConfig, "Darknet cfg file")
	fs.StringVar(&cfg.NamesPath, "names", cfg.NamesPath, "class names file")
	fs.DurationVar(&cfg.Cooldown, "cooldown", cfg.Cooldown, "minimum time between alerts (0 = mode default)")
	fs.BoolVar(&cfg.Headless, "headless", cfg.Headless, "run without a preview window")
	fs.BoolVar(&cfg.Tray, "tray", cfg.Tray, "show a system tray icon (implies -headless)")
	fs.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "serve the alert API on this address, e.g. :8080")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "alert history database (empty disables)")
	fs.StringVar(&cfg.NATSURL, "nats-url", cfg.NATSURL, "publish alerts to this NATS server")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Mode = Mode(*mode)

	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() *Config {
	return &Config{
		Mode:               Mode(getEnv("CATWATCH_MODE", string(ModeAdvanced))),
		CameraID:           getEnvInt("CATWATCH_CAMERA", 0),
		FPS:                getEnvInt("CATWATCH_FPS", capture.DefaultFPS),
		OutputDir:          getEnv("CATWATCH_OUTPUT_DIR", snapshot.DefaultDir),
		SoundPath:          getEnv("CATWATCH_SOUND", DefaultSound),
		CascadePath:        getEnv("CATWATCH_CASCADE", DefaultCascade),
		YOLOWeights:        getEnv("CATWATCH_YOLO_WEIGHTS", DefaultYOLOWeights),
		YOLOConfig:         getEnv("CATWATCH_YOLO_CONFIG", DefaultYOLOConfig),
		NamesPath:          getEnv("CATWATCH_NAMES", DefaultNames),
		Cooldown:           getEnvDuration("CATWATCH_COOLDOWN", 0),
		RetryDelay:         getEnvDuration("CATWATCH_RETRY_DELAY", app.DefaultRetryDelay),
		MaxCaptureFailures: getEnvInt("CATWATCH_MAX_CAPTURE_FAILURES", app.DefaultMaxCaptureFailures),
		Headless:           getEnvBool("CATWATCH_HEADLESS", false),
		Tray:               getEnvBool("CATWATCH_TRAY", false),
		HTTPAddr:           getEnv("CATWATCH_HTTP", ""),
		DBPath:             getEnv("CATWATCH_DB", ""),
		NATSURL:            getEnv("CATWATCH_NATS_URL", ""),
		NATSSubject:        getEnv("CATWATCH_NATS_SUBJECT", notify.DefaultSubject),
		LogLevel:           getEnv("CATWATCH_LOG_LEVEL", "info"),
	}
}

// resolve applies the mode preset, validates and locates resources.
func (c *Config) resolve() error {
	p, err := Presets(c.Mode)
	if err != nil {
		return err
	}
	c.Preset = p
	if c.Cooldown == 0 {
		c.Cooldown = p.Cooldown
	}
	c.FrameSkip = p.FrameSkip

	// The tray owns the main thread, which the preview window also needs.
	if c.Tray {
		c.Headless = true
	}

	if err := c.Validate(); err != nil {
		return err
	}

	c.CascadePath = FindResource(c.CascadePath, OpenCVDataDirs()...)
	c.YOLOWeights = FindResource(c.YOLOWeights)
	c.YOLOConfig = FindResource(c.YOLOConfig)
	c.NamesPath = FindResource(c.NamesPath)
	c.SoundPath = FindResource(c.SoundPath)
	return nil
}

// Validate checks ranges. It does not touch the filesystem.
func (c *Config) Validate() error {
	if _, err := Presets(c.Mode); err != nil {
		return err
	}
	if c.CameraID < 0 {
		return fmt.Errorf("%w: camera index %d", ErrInvalidConfig, c.CameraID)
	}
	if c.FPS < 1 {
		return fmt.Errorf("%w: fps %d", ErrInvalidConfig, c.FPS)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("%w: negative cooldown %s", ErrInvalidConfig, c.Cooldown)
	}
	if c.FrameSkip < 1 {
		return fmt.Errorf("%w: frame skip %d", ErrInvalidConfig, c.FrameSkip)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("%w: negative retry delay %s", ErrInvalidConfig, c.RetryDelay)
	}
	if c.MaxCaptureFailures < 0 {
		return fmt.Errorf("%w: max capture failures %d", ErrInvalidConfig, c.MaxCaptureFailures)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("%w: empty output directory", ErrInvalidConfig)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.LogLevel)
	}
	return nil
}

// Level returns the parsed log level, defaulting to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
