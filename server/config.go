package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/anonymiser/pkg/anonymise"
	"github.com/cyclopcam/anonymiser/pkg/kibi"
	"github.com/cyclopcam/anonymiser/pkg/pwdhash"
	"github.com/cyclopcam/dbh"
)

// DetectorURLEnv overrides Config.Detectors.Remote
const DetectorURLEnv = "ANONYMISER_DETECTOR_URL"

type Config struct {
	Detectors     DetectorsConfig     `json:"detectors"`
	Intensity     anonymise.Intensity `json:"intensity"`     // Maps blur intensity [0..1] to a kernel size
	DetectTimeout Duration            `json:"detectTimeout"` // eg "60s"
	IdleTimeout   Duration            `json:"idleTimeout"`   // Sessions that are unused for this long are discarded
	DB            dbh.DBConfig        `json:"db"`            // Index of feedback submissions
	Feedback      StorageConfig       `json:"feedback"`
	RateLimit     int                 `json:"rateLimit"`     // Maximum detect/anonymise requests per IP, per minute
	MaxUploadSize string              `json:"maxUploadSize"` // eg "32MB"

	// Output of cmd/pwdhash. If not empty, the admin password (via BASIC auth, username 'admin')
	// is required to read feedback.
	AdminPasswordHash string `json:"adminPasswordHash"`

	maxUploadBytes int64
	adminHash      []byte
}

// One of Remote or Static must be configured.
// Static detectors run inside this process, even when they call out to a model server.
type DetectorsConfig struct {
	Remote string           `json:"remote"` // Base URL of a detection provider, eg "http://127.0.0.1:8000"
	Static []DetectorConfig `json:"static"`
}

const (
	DetectorTypeStatic = "static" // Replays a prediction record file
	DetectorTypeModel  = "model"  // Runs a raw object detection model on a model server
)

type DetectorConfig struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"` // "static" (the default) or "model"
	File        string `json:"file"` // static: prediction record JSON file

	URL     string   `json:"url"`     // model: base URL of the model server
	Width   int      `json:"width"`   // model: input width of the network
	Height  int      `json:"height"`  // model: input height of the network
	Classes []string `json:"classes"` // model: class names. Empty means COCO.
	Threads int      `json:"threads"` // model: concurrent tile requests (default 1)
}

// One of the storage options must be configured (i.e. either 'filesystem' or 'gcs')
type StorageConfig struct {
	Filesystem *StorageConfigFS  `json:"filesystem"`
	GCS        *StorageConfigGCS `json:"gcs"`
}

type StorageConfigFS struct {
	Root string `json:"root"` // Path to the root of the filesystem
}

type StorageConfigGCS struct {
	Bucket string `json:"bucket"` // Name of the GCS bucket
	Prefix string `json:"prefix"` // Prepended to every object name
}

// Duration is a time.Duration that is written in JSON as a string such as "90s"
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string such as \"30s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

const DefaultRateLimit = 60
const DefaultMaxUploadSize = "32MB"

// LoadConfig reads a JSON config file, and fills in defaults
func LoadConfig(configFile string) (*Config, error) {
	cfg := &Config{}
	if cfgB, err := os.ReadFile(configFile); err != nil {
		return nil, err
	} else {
		if err := json.Unmarshal(cfgB, cfg); err != nil {
			return nil, fmt.Errorf("Error parsing config file %v: %w", configFile, err)
		}
	}
	// Prediction files are relative to the config file
	for i := range cfg.Detectors.Static {
		if f := cfg.Detectors.Static[i].File; f != "" && !filepath.IsAbs(f) {
			cfg.Detectors.Static[i].File = filepath.Join(filepath.Dir(configFile), f)
		}
	}
	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("Invalid config file %v: %w", configFile, err)
	}
	return cfg, nil
}

func (c *Config) finalize() error {
	if env := os.Getenv(DetectorURLEnv); env != "" {
		c.Detectors.Remote = env
		c.Detectors.Static = nil
	}
	if c.Detectors.Remote == "" && len(c.Detectors.Static) == 0 {
		return fmt.Errorf("One of the detector options must be configured (i.e. either 'remote' or 'static'), or set %v", DetectorURLEnv)
	}
	for i := range c.Detectors.Static {
		d := &c.Detectors.Static[i]
		if d.Type == "" {
			d.Type = DetectorTypeStatic
		}
		switch d.Type {
		case DetectorTypeStatic:
			if d.File == "" {
				return fmt.Errorf("Detector '%v' has no file", d.Name)
			}
		case DetectorTypeModel:
			if d.URL == "" {
				return fmt.Errorf("Detector '%v' has no url", d.Name)
			}
			if d.Width <= 0 || d.Height <= 0 {
				return fmt.Errorf("Detector '%v' needs the width and height of the model", d.Name)
			}
		default:
			return fmt.Errorf("Detector '%v' has unsupported type '%v'", d.Name, d.Type)
		}
	}
	if c.Intensity == (anonymise.Intensity{}) {
		c.Intensity = anonymise.DefaultIntensity()
	}
	if err := c.Intensity.Validate(); err != nil {
		return err
	}
	if c.DB.Driver == "" {
		c.DB = dbh.MakeSqliteConfig("feedback.sqlite")
	}
	if c.Feedback.Filesystem == nil && c.Feedback.GCS == nil {
		c.Feedback.Filesystem = &StorageConfigFS{Root: "feedback"}
	}
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.MaxUploadSize == "" {
		c.MaxUploadSize = DefaultMaxUploadSize
	}
	var err error
	if c.maxUploadBytes, err = kibi.ParseBytes(c.MaxUploadSize); err != nil {
		return fmt.Errorf("maxUploadSize '%v': %w", c.MaxUploadSize, err)
	}
	c.adminHash = nil
	if c.AdminPasswordHash != "" {
		if c.adminHash, err = pwdhash.ParseBase64(c.AdminPasswordHash); err != nil {
			return fmt.Errorf("adminPasswordHash: %w", err)
		}
	}
	return nil
}
