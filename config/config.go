// Package config defines the configuration of the vio application.
package config

import (
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/vio/camera"
	"go.viam.com/vio/estimator"
	"go.viam.com/vio/logging"
	"go.viam.com/vio/tracker"
)

// Config is the application configuration file.
type Config struct {
	// ConfigFilePath is the file the config was read from, if any.
	ConfigFilePath string `json:"-"`

	// EstimatorCfg is the path, relative to this file, of a separate estimator configuration.
	// It is mutually exclusive with Estimator.
	EstimatorCfg string            `json:"estimator_cfg,omitempty"`
	Estimator    *estimator.Config `json:"estimator,omitempty"`
	Tracker      *tracker.Config   `json:"tracker,omitempty"`

	// Verbose logs the progress through the dataset.
	Verbose bool `json:"verbose"`
	Debug   bool `json:"debug"`
	// LogConfig sets the levels of named loggers, e.g. {"pattern": "vio.tracker", "level": "debug"}.
	LogConfig []logging.LoggerPatternConfig `json:"log,omitempty"`
	// LogFile, when set, also receives every log line. The file is rotated at LogFileMaxSizeMB.
	LogFile          string `json:"log_file,omitempty"`
	LogFileMaxSizeMB int    `json:"log_file_max_size_mb,omitempty"`
	// DebugImageDir, when set, receives the tracker overlay of every frame.
	DebugImageDir string `json:"debug_image_dir,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate() error {
	if c.Estimator == nil {
		return utils.NewConfigValidationFieldRequiredError("", "estimator")
	}
	camCfg, err := c.Estimator.CameraConfig()
	if err != nil {
		return utils.NewConfigValidationError("estimator.camera", err)
	}
	if err := camCfg.Validate(); err != nil {
		return utils.NewConfigValidationError("estimator.camera", err)
	}
	if c.LogFileMaxSizeMB < 0 {
		return utils.NewConfigValidationError("log_file_max_size_mb", errors.New("must be non-negative"))
	}
	for i, lc := range c.LogConfig {
		if !logging.ValidatePattern(lc.Pattern) {
			return utils.NewConfigValidationError("log", errors.Errorf("entry %d has an invalid pattern %q", i, lc.Pattern))
		}
		if _, err := logging.LevelFromString(lc.Level); err != nil {
			return utils.NewConfigValidationError("log", errors.Wrapf(err, "entry %d", i))
		}
	}
	return nil
}

// CameraConfig returns the decoded camera section of the estimator configuration.
func (c *Config) CameraConfig() (*camera.Config, error) {
	if c.Estimator == nil {
		return nil, errors.New("no estimator configuration")
	}
	return c.Estimator.CameraConfig()
}
