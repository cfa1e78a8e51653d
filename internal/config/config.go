package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/PiLapse/internal/domain"
)

// MaxConfigFileBytes caps the size of a YAML config file.
const MaxConfigFileBytes = 64 * 1024

// Default values applied when neither the YAML file nor the environment sets them.
const (
	DefaultBaseDir       = "/home/pi/timelapse"
	DefaultMockFile      = "222.png"
	DefaultWidth         = 1920
	DefaultHeight        = 1080
	DefaultRetryCount    = 3
	DefaultRetentionDays = 7
	DefaultLogLevel      = "info"
)

// OSSConfig holds object store credentials and location.
type OSSConfig struct {
	AccessKeyID     string `yaml:"access_key_id"`
	AccessKeySecret string `yaml:"access_key_secret"`
	Bucket          string `yaml:"bucket"`
	Endpoint        string `yaml:"endpoint"` // e.g. oss-cn-hangzhou.aliyuncs.com
}

// CameraConfig describes the capture device.
type CameraConfig struct {
	DeviceIndex  int    `yaml:"device_index"`  // N in /dev/videoN
	Width        int    `yaml:"width"`         // requested frame width (px)
	Height       int    `yaml:"height"`        // requested frame height (px)
	RetryCount   int    `yaml:"retry_count"`   // read attempts per capture
	Mock         bool   `yaml:"mock"`          // skip the device, use MockFile
	MockFile     string `yaml:"mock_file"`     // file name under <base_dir>/images
	IndicatorPin int    `yaml:"indicator_pin"` // BCM pin lit while capturing. 0 = not used.
	MockGPIO     bool   `yaml:"mock_gpio"`     // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// StorageConfig describes the local image directory.
type StorageConfig struct {
	BaseDir        string `yaml:"base_dir"`
	RetentionDays  int    `yaml:"retention_days"`
	CleanupEnabled bool   `yaml:"cleanup_enabled"` // sweep old images after each cycle
}

// NotifyConfig holds the operator channel.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url"` // empty disables notifications
}

// LogConfig controls log verbosity.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Config aggregates all application configuration.
type Config struct {
	OSS     OSSConfig     `yaml:"oss"`
	Camera  CameraConfig  `yaml:"camera"`
	Storage StorageConfig `yaml:"storage"`
	Notify  NotifyConfig  `yaml:"notify"`
	Log     LogConfig     `yaml:"log"`
}

// Environment variable names. The OSS names keep the casing used by the
// existing deployments' .env files.
const (
	EnvAccessKeyID     = "accessKeyID"
	EnvAccessKeySecret = "accessKeySecret"
	EnvBucket          = "bucketName"
	EnvEndpoint        = "endpoint"
	EnvBaseDir         = "TIMELAPSE_BASE_DIR"
	EnvMockFile        = "MOCK_FILE"
	EnvMockMode        = "MOCK_MODE"
	EnvCameraID        = "CAMERA_ID"
	EnvCameraWidth     = "CAMERA_WIDTH"
	EnvCameraHeight    = "CAMERA_HEIGHT"
	EnvRetryCount      = "CAPTURE_RETRY_COUNT"
	EnvIndicatorPin    = "INDICATOR_PIN"
	EnvMockGPIO        = "MOCK_GPIO"
	EnvRetentionDays   = "FILE_RETENTION_DAYS"
	EnvCleanupEnabled  = "FILE_CLEANUP_ENABLED"
	EnvWebhookURL      = "FEISHU_WEBHOOK_URL"
	EnvLogLevel        = "LOG_LEVEL"
)

// Load builds the configuration from an optional YAML file (path may be
// empty) overlaid with environment variables, then applies defaults and
// validates. Every error it returns is of kind domain.KindConfig.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if err := readFile(path, &cfg); err != nil {
			return nil, domain.Wrap(domain.KindConfig, "load config", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, domain.Wrap(domain.KindConfig, "load config", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, domain.Wrap(domain.KindConfig, "validate config", err)
	}
	return &cfg, nil
}

func readFile(path string, cfg *Config) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return fmt.Errorf("config file %s is %d bytes, limit is %d", path, info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("unmarshal yaml: %w", err)
	}
	return checkExplicitPositive(data)
}

// positiveFields mirrors the settings whose zero value means "use the
// default", so a zero written in the file can be told apart from no value.
type positiveFields struct {
	Camera struct {
		Width      *int `yaml:"width"`
		Height     *int `yaml:"height"`
		RetryCount *int `yaml:"retry_count"`
	} `yaml:"camera"`
	Storage struct {
		RetentionDays *int `yaml:"retention_days"`
	} `yaml:"storage"`
}

func checkExplicitPositive(data []byte) error {
	var p positiveFields
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("unmarshal yaml: %w", err)
	}
	var errs []error
	for name, v := range map[string]*int{
		"camera.width":           p.Camera.Width,
		"camera.height":          p.Camera.Height,
		"camera.retry_count":     p.Camera.RetryCount,
		"storage.retention_days": p.Storage.RetentionDays,
	} {
		if v != nil && *v < 1 {
			errs = append(errs, fmt.Errorf("%s must be >= 1, got %d", name, *v))
		}
	}
	return errors.Join(errs...)
}

type lookupFunc func(string) (string, bool)

// applyEnv overrides fields with any environment variable that is set and non-empty.
func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	parseInt := func(key string) (int, bool) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return 0, false
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
			return 0, false
		}
		return n, true
	}
	num := func(key string, dst *int) {
		if n, ok := parseInt(key); ok {
			*dst = n
		}
	}
	// Settings with a default reject an explicit zero instead of falling back.
	positive := func(key string, dst *int) {
		n, ok := parseInt(key)
		if !ok {
			return
		}
		if n < 1 {
			errs = append(errs, fmt.Errorf("%s must be >= 1, got %d", key, n))
			return
		}
		*dst = n
	}
	flag := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
			return
		}
		*dst = b
	}

	str(EnvAccessKeyID, &c.OSS.AccessKeyID)
	str(EnvAccessKeySecret, &c.OSS.AccessKeySecret)
	str(EnvBucket, &c.OSS.Bucket)
	str(EnvEndpoint, &c.OSS.Endpoint)
	str(EnvBaseDir, &c.Storage.BaseDir)
	str(EnvMockFile, &c.Camera.MockFile)
	flag(EnvMockMode, &c.Camera.Mock)
	num(EnvCameraID, &c.Camera.DeviceIndex)
	positive(EnvCameraWidth, &c.Camera.Width)
	positive(EnvCameraHeight, &c.Camera.Height)
	positive(EnvRetryCount, &c.Camera.RetryCount)
	num(EnvIndicatorPin, &c.Camera.IndicatorPin)
	flag(EnvMockGPIO, &c.Camera.MockGPIO)
	positive(EnvRetentionDays, &c.Storage.RetentionDays)
	flag(EnvCleanupEnabled, &c.Storage.CleanupEnabled)
	str(EnvWebhookURL, &c.Notify.WebhookURL)
	str(EnvLogLevel, &c.Log.Level)

	return errors.Join(errs...)
}

// applyDefaults fills zero values. Width, height and retry count are only
// defaulted when unset, so an explicit negative value still fails validation.
func (c *Config) applyDefaults() {
	if c.Storage.BaseDir == "" {
		c.Storage.BaseDir = DefaultBaseDir
	}
	if c.Camera.MockFile == "" {
		c.Camera.MockFile = DefaultMockFile
	}
	if c.Camera.Width == 0 {
		c.Camera.Width = DefaultWidth
	}
	if c.Camera.Height == 0 {
		c.Camera.Height = DefaultHeight
	}
	if c.Camera.RetryCount == 0 {
		c.Camera.RetryCount = DefaultRetryCount
	}
	if c.Storage.RetentionDays == 0 {
		c.Storage.RetentionDays = DefaultRetentionDays
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// MissingRequired lists the environment names of required settings that are empty.
func (c *Config) MissingRequired() []string {
	var missing []string
	if c.OSS.AccessKeyID == "" {
		missing = append(missing, EnvAccessKeyID)
	}
	if c.OSS.AccessKeySecret == "" {
		missing = append(missing, EnvAccessKeySecret)
	}
	if c.OSS.Endpoint == "" {
		missing = append(missing, EnvEndpoint)
	}
	return missing
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	if missing := c.MissingRequired(); len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("camera width and height must be > 0, got %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.RetryCount < 1 {
		return fmt.Errorf("capture retry count must be >= 1, got %d", c.Camera.RetryCount)
	}
	if c.Camera.DeviceIndex < 0 {
		return fmt.Errorf("camera device index must be >= 0, got %d", c.Camera.DeviceIndex)
	}
	if c.Camera.IndicatorPin < 0 {
		return fmt.Errorf("indicator pin must be >= 0, got %d", c.Camera.IndicatorPin)
	}
	if c.Storage.RetentionDays < 0 {
		return fmt.Errorf("retention days must be >= 0, got %d", c.Storage.RetentionDays)
	}
	if c.OSS.Bucket != "" && !validBucketName(c.OSS.Bucket) {
		return fmt.Errorf("bucket name %q must be 3-63 lowercase letters, digits or hyphens, starting and ending with a letter or digit", c.OSS.Bucket)
	}
	if c.Camera.MockFile != filepath.Base(c.Camera.MockFile) {
		return fmt.Errorf("mock file must be a bare file name, got %q", c.Camera.MockFile)
	}
	return nil
}

func validBucketName(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '-' && i > 0 && i < len(name)-1:
		default:
			return false
		}
	}
	return true
}

// ImagesDir is where captured images are written.
func (c *Config) ImagesDir() string {
	return filepath.Join(c.Storage.BaseDir, "images")
}

// LogFile is the rotating log file path.
func (c *Config) LogFile() string {
	return filepath.Join(c.Storage.BaseDir, "timelapse.log")
}

// MockPath is the stand-in image used in mock mode.
func (c *Config) MockPath() string {
	return filepath.Join(c.ImagesDir(), c.Camera.MockFile)
}

// DevicePath is the V4L2 device node for the configured index.
func (c *Config) DevicePath() string {
	return fmt.Sprintf("/dev/video%d", c.Camera.DeviceIndex)
}

// Retention returns how long images are kept by the cleanup sweep.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Storage.RetentionDays) * 24 * time.Hour
}
