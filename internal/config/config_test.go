package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/cjeanneret/PiLapse/internal/domain"
)

var allEnv = []string{
	EnvAccessKeyID, EnvAccessKeySecret, EnvBucket, EnvEndpoint, EnvBaseDir,
	EnvMockFile, EnvMockMode, EnvCameraID, EnvCameraWidth, EnvCameraHeight,
	EnvRetryCount, EnvIndicatorPin, EnvMockGPIO, EnvRetentionDays,
	EnvCleanupEnabled, EnvWebhookURL, EnvLogLevel,
}

// clearEnv blanks every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allEnv {
		t.Setenv(k, "")
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv(EnvAccessKeyID, "id")
	t.Setenv(EnvAccessKeySecret, "secret")
	t.Setenv(EnvEndpoint, "oss-cn-hangzhou.aliyuncs.com")
}

// writeConfig creates a YAML file with the given content and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pilapse.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// ---------- Load ----------

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)
	setRequired(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := &Config{
		OSS: OSSConfig{
			AccessKeyID:     "id",
			AccessKeySecret: "secret",
			Endpoint:        "oss-cn-hangzhou.aliyuncs.com",
		},
		Camera: CameraConfig{
			Width:      1920,
			Height:     1080,
			RetryCount: 3,
			MockFile:   "222.png",
		},
		Storage: StorageConfig{
			BaseDir:       "/home/pi/timelapse",
			RetentionDays: 7,
		},
		Log: LogConfig{Level: "info"},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_MissingRequiredListsAll(t *testing.T) {
	clearEnv(t)

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error for missing credentials, got nil")
	}
	if !domain.IsKind(err, domain.KindConfig) {
		t.Errorf("kind = %q, want %q", domain.KindOf(err), domain.KindConfig)
	}
	for _, name := range []string{EnvAccessKeyID, EnvAccessKeySecret, EnvEndpoint} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not mention %s", err, name)
		}
	}
}

func TestLoad_MissingOneRequired(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv(EnvEndpoint, "")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if strings.Contains(err.Error(), EnvAccessKeyID) {
		t.Errorf("error %q should only list the missing name", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv(EnvBucket, "photos")
	t.Setenv(EnvBaseDir, "/srv/lapse")
	t.Setenv(EnvCameraID, "2")
	t.Setenv(EnvCameraWidth, "640")
	t.Setenv(EnvCameraHeight, "480")
	t.Setenv(EnvRetryCount, "5")
	t.Setenv(EnvMockMode, "true")
	t.Setenv(EnvMockFile, "ref.jpg")
	t.Setenv(EnvIndicatorPin, "18")
	t.Setenv(EnvMockGPIO, "1")
	t.Setenv(EnvRetentionDays, "30")
	t.Setenv(EnvCleanupEnabled, "true")
	t.Setenv(EnvWebhookURL, "https://open.feishu.cn/hook/x")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantCam := CameraConfig{
		DeviceIndex: 2, Width: 640, Height: 480, RetryCount: 5,
		Mock: true, MockFile: "ref.jpg", IndicatorPin: 18, MockGPIO: true,
	}
	if diff := cmp.Diff(wantCam, cfg.Camera); diff != "" {
		t.Errorf("camera mismatch (-want +got):\n%s", diff)
	}
	if cfg.OSS.Bucket != "photos" {
		t.Errorf("bucket = %q, want photos", cfg.OSS.Bucket)
	}
	if cfg.Storage.BaseDir != "/srv/lapse" || cfg.Storage.RetentionDays != 30 || !cfg.Storage.CleanupEnabled {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Notify.WebhookURL != "https://open.feishu.cn/hook/x" {
		t.Errorf("webhook = %q", cfg.Notify.WebhookURL)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoad_InvalidNumbers(t *testing.T) {
	cases := []struct {
		name, key, value string
	}{
		{"width_not_int", EnvCameraWidth, "wide"},
		{"retry_not_int", EnvRetryCount, "3.5"},
		{"mock_not_bool", EnvMockMode, "maybe"},
		{"width_negative", EnvCameraWidth, "-1"},
		{"height_negative", EnvCameraHeight, "-10"},
		{"retry_negative", EnvRetryCount, "-2"},
		{"retry_zero", EnvRetryCount, "0"},
		{"retention_zero", EnvRetentionDays, "0"},
		{"width_zero", EnvCameraWidth, "0"},
		{"retention_not_int", EnvRetentionDays, "week"},
		{"device_negative", EnvCameraID, "-1"},
		{"pin_negative", EnvIndicatorPin, "-4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			setRequired(t)
			t.Setenv(tc.key, tc.value)

			_, err := Load("")
			if err == nil {
				t.Fatalf("expected error for %s=%q, got nil", tc.key, tc.value)
			}
			if !domain.IsKind(err, domain.KindConfig) {
				t.Errorf("kind = %q, want config", domain.KindOf(err))
			}
		})
	}
}

func TestLoad_MockFileWithDirectoryRejected(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv(EnvMockFile, "../../etc/passwd")

	if _, err := Load(""); err == nil {
		t.Error("expected error for mock file with path components, got nil")
	}
}

const validYAML = `
oss:
  access_key_id: "yaml-id"
  access_key_secret: "yaml-secret"
  bucket: "yaml-bucket"
  endpoint: "oss-cn-shanghai.aliyuncs.com"
camera:
  device_index: 1
  width: 1280
  height: 720
  retry_count: 4
storage:
  base_dir: "/data/lapse"
  retention_days: 14
notify:
  webhook_url: "https://example.invalid/hook"
log:
  level: "warn"
`

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, validYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OSS.Bucket != "yaml-bucket" {
		t.Errorf("bucket = %q, want yaml-bucket", cfg.OSS.Bucket)
	}
	if cfg.Camera.Width != 1280 || cfg.Camera.Height != 720 || cfg.Camera.RetryCount != 4 {
		t.Errorf("camera = %+v", cfg.Camera)
	}
	if cfg.Storage.RetentionDays != 14 {
		t.Errorf("retention = %d, want 14", cfg.Storage.RetentionDays)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log level = %q, want warn", cfg.Log.Level)
	}
}

func TestLoad_EnvWinsOverYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, validYAML)
	t.Setenv(EnvBucket, "env-bucket")
	t.Setenv(EnvCameraWidth, "800")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OSS.Bucket != "env-bucket" {
		t.Errorf("bucket = %q, want env-bucket", cfg.OSS.Bucket)
	}
	if cfg.Camera.Width != 800 {
		t.Errorf("width = %d, want 800", cfg.Camera.Width)
	}
	if cfg.Camera.Height != 720 {
		t.Errorf("height = %d, want 720 from yaml", cfg.Camera.Height)
	}
}

func TestLoad_YAMLExplicitZeroRejected(t *testing.T) {
	cases := []struct {
		name, yaml, field string
	}{
		{"retry_count", "camera:\n  retry_count: 0\n", "camera.retry_count"},
		{"retention_days", "storage:\n  retention_days: 0\n", "storage.retention_days"},
		{"height", "camera:\n  height: 0\n", "camera.height"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			setRequired(t)
			_, err := Load(writeConfig(t, tc.yaml))
			if err == nil {
				t.Fatal("expected error for explicit zero, got nil")
			}
			if !domain.IsKind(err, domain.KindConfig) || !strings.Contains(err.Error(), tc.field) {
				t.Errorf("err = %v, want config error naming %s", err, tc.field)
			}
		})
	}
}

func TestLoad_BucketName(t *testing.T) {
	cases := []struct {
		bucket string
		valid  bool
	}{
		{"", true}, // not required
		{"pics", true},
		{"timelapse-2024", true},
		{"ab", false},
		{strings.Repeat("a", 64), false},
		{"Pics", false},
		{"-pics", false},
		{"pics-", false},
		{"pi_cs", false},
	}
	for _, tc := range cases {
		t.Run(tc.bucket, func(t *testing.T) {
			clearEnv(t)
			setRequired(t)
			t.Setenv(EnvBucket, tc.bucket)

			_, err := Load("")
			if tc.valid && err != nil {
				t.Errorf("bucket %q: unexpected error: %v", tc.bucket, err)
			}
			if !tc.valid && !domain.IsKind(err, domain.KindConfig) {
				t.Errorf("bucket %q: expected config error, got %v", tc.bucket, err)
			}
		})
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	path := writeConfig(t, "{{{{invalid yaml!!!!")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	path := filepath.Join(t.TempDir(), "nonexistent.yaml")
	if _, err := Load(path); err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	data := strings.Repeat("#", MaxConfigFileBytes+1)
	path := writeConfig(t, data)
	if _, err := Load(path); err == nil {
		t.Error("expected error for oversized config file, got nil")
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	path := writeConfig(t, "unknown_section:\n  foo: bar\n")
	if _, err := Load(path); err != nil {
		t.Errorf("unknown fields should be ignored, got error: %v", err)
	}
}

// ---------- Helper methods ----------

func TestConfig_Paths(t *testing.T) {
	cfg := &Config{
		Storage: StorageConfig{BaseDir: "/home/pi/timelapse"},
		Camera:  CameraConfig{MockFile: "222.png", DeviceIndex: 3},
	}
	cases := []struct {
		name, got, want string
	}{
		{"images", cfg.ImagesDir(), "/home/pi/timelapse/images"},
		{"log", cfg.LogFile(), "/home/pi/timelapse/timelapse.log"},
		{"mock", cfg.MockPath(), "/home/pi/timelapse/images/222.png"},
		{"device", cfg.DevicePath(), "/dev/video3"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s = %q, want %q", tc.name, tc.got, tc.want)
		}
	}
}

func TestConfig_Retention(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{RetentionDays: 7}}
	if got, want := cfg.Retention(), 7*24*time.Hour; got != want {
		t.Errorf("Retention() = %v, want %v", got, want)
	}
}
