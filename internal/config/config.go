package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Gemini struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"gemini"`

	Storage struct {
		Backend string `yaml:"backend"` // local | minio
		Local   struct {
			Dir string `yaml:"dir"`
		} `yaml:"local"`
		Minio struct {
			Endpoint   string `yaml:"endpoint"`
			AccessKey  string `yaml:"accessKey"`
			SecretKey  string `yaml:"secretKey"`
			BucketName string `yaml:"bucketName"`
			Region     string `yaml:"region"`
			UseSSL     bool   `yaml:"useSSL"`
		} `yaml:"minio"`
	} `yaml:"storage"`

	// Upload caps apply at session creation, processing caps right before a
	// stage would send media to the provider, the attachment cap inside the
	// gateway itself.
	Limits struct {
		UploadAudioMB  int64 `yaml:"uploadAudioMB"`
		UploadVideoMB  int64 `yaml:"uploadVideoMB"`
		UploadCVMB     int64 `yaml:"uploadCVMB"`
		ProcessAudioMB int64 `yaml:"processAudioMB"`
		ProcessVideoMB int64 `yaml:"processVideoMB"`
		AttachmentMB   int64 `yaml:"attachmentMB"`
	} `yaml:"limits"`

	// Retry holds the named backoff policy tables. Tests inject near-zero
	// values; production defaults are set in applyDefaults.
	Retry struct {
		BaseDelayMS        int            `yaml:"baseDelayMS"`
		OverloadScheduleMS []int          `yaml:"overloadScheduleMS"`
		AttemptTimeoutSec  int            `yaml:"attemptTimeoutSec"`
		Attempts           map[string]int `yaml:"attempts"`
	} `yaml:"retry"`

	Session struct {
		TTLMinutes   int `yaml:"ttlMinutes"`
		SweepMinutes int `yaml:"sweepMinutes"`
	} `yaml:"session"`

	RateLimit struct {
		Capacity     int `yaml:"capacity"`
		RefillPerSec int `yaml:"refillPerSec"`
	} `yaml:"rateLimit"`

	Log struct {
		JSON  bool `yaml:"json"`
		Debug bool `yaml:"debug"`
	} `yaml:"log"`
}

// Load reads the yaml config file and applies env overrides and defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Gemini.APIKey = v
	}
	if v := os.Getenv("STORAGE_DIR"); v != "" {
		c.Storage.Local.Dir = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-2.5-pro"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "local"
	}
	if c.Storage.Local.Dir == "" {
		c.Storage.Local.Dir = "uploads"
	}
	if c.Limits.UploadAudioMB == 0 {
		c.Limits.UploadAudioMB = 25
	}
	if c.Limits.UploadVideoMB == 0 {
		c.Limits.UploadVideoMB = 10
	}
	if c.Limits.UploadCVMB == 0 {
		c.Limits.UploadCVMB = 10
	}
	if c.Limits.ProcessAudioMB == 0 {
		c.Limits.ProcessAudioMB = 20
	}
	if c.Limits.ProcessVideoMB == 0 {
		c.Limits.ProcessVideoMB = 8
	}
	if c.Limits.AttachmentMB == 0 {
		c.Limits.AttachmentMB = 20
	}
	if c.Retry.BaseDelayMS == 0 {
		c.Retry.BaseDelayMS = 2000
	}
	if len(c.Retry.OverloadScheduleMS) == 0 {
		c.Retry.OverloadScheduleMS = []int{5000, 15000, 30000}
	}
	if c.Retry.AttemptTimeoutSec == 0 {
		c.Retry.AttemptTimeoutSec = 120
	}
	if c.Retry.Attempts == nil {
		c.Retry.Attempts = map[string]int{}
	}
	defaults := map[string]int{
		"health":                 1,
		"cv_analysis":            2,
		"media_transcription":    3,
		"face_analysis":          2,
		"technical_analysis":     3,
		"communication_analysis": 3,
		"final_report":           3,
	}
	for k, v := range defaults {
		if c.Retry.Attempts[k] == 0 {
			c.Retry.Attempts[k] = v
		}
	}
	if c.Session.TTLMinutes == 0 {
		c.Session.TTLMinutes = 24 * 60
	}
	if c.Session.SweepMinutes == 0 {
		c.Session.SweepMinutes = 10
	}
	if c.RateLimit.Capacity == 0 {
		c.RateLimit.Capacity = 30
	}
	if c.RateLimit.RefillPerSec == 0 {
		c.RateLimit.RefillPerSec = 5
	}
}

func (c *Config) validate() error {
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("gemini api key is required (set gemini.apiKey or GEMINI_API_KEY)")
	}
	if c.Storage.Backend != "local" && c.Storage.Backend != "minio" {
		return fmt.Errorf("unknown storage backend: %q", c.Storage.Backend)
	}
	return nil
}
