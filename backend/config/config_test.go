package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// RED: Test that session timeout can be configured
func TestConfig_SessionTimeout(t *testing.T) {
	C = Config{}

	t.Setenv("SESSION_TIMEOUT", "1h")

	if err := Load(); err != nil {
		t.Fatal(err)
	}

	expected := 1 * time.Hour
	if C.Session.Timeout != expected {
		t.Errorf("Expected session timeout %v, got %v", expected, C.Session.Timeout)
	}
}

// RED: Test session timeout default value
func TestConfig_SessionTimeoutDefault(t *testing.T) {
	C = Config{}
	os.Unsetenv("SESSION_TIMEOUT")

	if err := Load(); err != nil {
		t.Fatal(err)
	}

	expected := 24 * time.Hour
	if C.Session.Timeout != expected {
		t.Errorf("Expected default session timeout %v, got %v", expected, C.Session.Timeout)
	}
}

func TestConfig_OTPDefaults(t *testing.T) {
	if err := Load(); err != nil {
		t.Fatal(err)
	}

	if C.OTP.TTL != 600*time.Second {
		t.Errorf("Expected OTP TTL 600s, got %v", C.OTP.TTL)
	}
	if C.OTP.Digits != 6 {
		t.Errorf("Expected 6 OTP digits, got %d", C.OTP.Digits)
	}
	if C.OTP.MaxAttempts != 0 {
		t.Errorf("Expected no attempt limit by default, got %d", C.OTP.MaxAttempts)
	}
	if C.Auth.MinPasswordLength != 6 {
		t.Errorf("Expected min password length 6, got %d", C.Auth.MinPasswordLength)
	}
}

func TestConfig_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
listen: ":9000"
database:
  driver: postgres
  dsn: postgres://u:p@db:5432/secureone
storage:
  backend: s3
  s3:
    bucket: user-files
    endpoint: http://minio:9000
upload:
  max_size: 10MB
otp:
  max_attempts: 5
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)

	if err := Load(); err != nil {
		t.Fatal(err)
	}

	if C.Listen != ":9000" {
		t.Errorf("Expected listen :9000, got %s", C.Listen)
	}
	if C.Database.Driver != "postgres" {
		t.Errorf("Expected postgres driver, got %s", C.Database.Driver)
	}
	if C.Storage.Backend != "s3" || C.Storage.S3.Bucket != "user-files" {
		t.Errorf("Unexpected storage config: %+v", C.Storage)
	}
	if C.Storage.S3.Region != "us-east-1" {
		t.Errorf("Expected default region to survive partial yaml, got %s", C.Storage.S3.Region)
	}
	if C.Upload.MaxSize != 10*1024*1024 {
		t.Errorf("Expected 10MB upload limit, got %d", C.Upload.MaxSize)
	}
	if C.OTP.MaxAttempts != 5 {
		t.Errorf("Expected max attempts 5, got %d", C.OTP.MaxAttempts)
	}
}

func TestConfig_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  path: /from/yaml\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("STORAGE_PATH", "/from/env")

	if err := Load(); err != nil {
		t.Fatal(err)
	}
	if C.Storage.Path != "/from/env" {
		t.Errorf("Expected env to win, got %s", C.Storage.Path)
	}
}

func TestConfig_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "ftp")

	if err := Load(); err == nil {
		t.Error("Load should fail for an unknown storage backend")
	}
}

func TestConfig_SMTPRequiresHost(t *testing.T) {
	t.Setenv("MAIL_BACKEND", "smtp")

	if err := Load(); err == nil {
		t.Error("Load should fail when smtp has no host")
	}

	t.Setenv("SMTP_HOST", "smtp.gmail.com")
	if err := Load(); err != nil {
		t.Errorf("Load should succeed with smtp host set: %v", err)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1024", 1024},
		{"1KB", 1024},
		{"500mb", 500 * 1024 * 1024},
		{"1.5GB", 1536 * 1024 * 1024},
		{"2 TB", 2 * 1024 * 1024 * 1024 * 1024},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		if err != nil {
			t.Errorf("ParseSize(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "lots", "5PB", "-1GB"} {
		if _, err := ParseSize(bad); err == nil {
			t.Errorf("ParseSize(%q) should fail", bad)
		}
	}
}
