package estimator

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/vio/camera"
)

// Config holds the calibration, priors and tuning of the filter.
type Config struct {
	// Camera is the camera model description, see camera.Config.
	Camera map[string]interface{} `json:"camera"`

	// Gravity is the magnitude of gravity in m/s^2. The reference frame has z up.
	Gravity float64 `json:"gravity"`

	// Rbc (rotation vector) and Tbc place the camera in the body (IMU) frame.
	Rbc []float64 `json:"Rbc"`
	Tbc []float64 `json:"Tbc"`

	// Initial state. Rsb is a rotation vector.
	Rsb []float64 `json:"Rsb"`
	Tsb []float64 `json:"Tsb"`
	Vsb []float64 `json:"Vsb"`
	Bg  []float64 `json:"bg"`
	Ba  []float64 `json:"ba"`
	// AlignGravity rotates the initial orientation so the first accelerometer sample points up.
	AlignGravity bool `json:"align_gravity"`

	// Initial standard deviations.
	InitStdRotation  float64 `json:"init_std_rotation"`
	InitStdPosition  float64 `json:"init_std_position"`
	InitStdVelocity  float64 `json:"init_std_velocity"`
	InitStdGyroBias  float64 `json:"init_std_gyro_bias"`
	InitStdAccelBias float64 `json:"init_std_accel_bias"`

	// Continuous time IMU noise densities.
	GyroNoise      float64 `json:"gyro_noise"`
	AccelNoise     float64 `json:"accel_noise"`
	GyroBiasNoise  float64 `json:"gyro_bias_noise"`
	AccelBiasNoise float64 `json:"accel_bias_noise"`

	// MeasurementStd is the pixel noise of a feature observation.
	MeasurementStd float64 `json:"measurement_std"`
	// MaxReprojectionError (pixels) and OutlierProbability (chi-square gate) reject features.
	MaxReprojectionError float64 `json:"max_reprojection_error"`
	OutlierProbability   float64 `json:"outlier_probability"`

	// MinTrackLength observations with MinParallax pixels of parallax confirm a track.
	MinTrackLength int     `json:"min_track_length"`
	MinParallax    float64 `json:"min_parallax"`
	MaxFeatures    int     `json:"max_features"`
	// MaxFeatureAge is counted in frames since the feature entered the state.
	MaxFeatureAge int `json:"max_feature_age"`

	// InitInverseDepthStd is the standard deviation (1/m) of a newly added inverse depth.
	InitInverseDepthStd float64 `json:"init_inverse_depth_std"`
	MinDepth            float64 `json:"min_depth"`
	MaxDepth            float64 `json:"max_depth"`
}

func (cfg *Config) withDefaults() {
	setDefault := func(v *float64, d float64) {
		if *v == 0 {
			*v = d
		}
	}
	setDefault(&cfg.Gravity, 9.81)
	setDefault(&cfg.InitStdRotation, 0.02)
	setDefault(&cfg.InitStdPosition, 1e-3)
	setDefault(&cfg.InitStdVelocity, 0.1)
	setDefault(&cfg.InitStdGyroBias, 0.01)
	setDefault(&cfg.InitStdAccelBias, 0.1)
	setDefault(&cfg.GyroNoise, 5e-3)
	setDefault(&cfg.AccelNoise, 5e-2)
	setDefault(&cfg.GyroBiasNoise, 1e-4)
	setDefault(&cfg.AccelBiasNoise, 1e-3)
	setDefault(&cfg.MeasurementStd, 1.5)
	setDefault(&cfg.MaxReprojectionError, 10)
	setDefault(&cfg.OutlierProbability, 0.99)
	setDefault(&cfg.MinParallax, 5)
	setDefault(&cfg.InitInverseDepthStd, 0.5)
	setDefault(&cfg.MinDepth, 0.1)
	setDefault(&cfg.MaxDepth, 50)
	if cfg.MinTrackLength == 0 {
		cfg.MinTrackLength = 3
	}
	if cfg.MaxFeatures == 0 {
		cfg.MaxFeatures = 30
	}
	if cfg.MaxFeatureAge == 0 {
		cfg.MaxFeatureAge = 300
	}
}

// Validate ensures all parts of the config are valid. Defaults must have been applied.
func (cfg *Config) Validate(path string) error {
	if cfg.Camera == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "camera")
	}
	for name, v := range map[string][]float64{
		"Rbc": cfg.Rbc, "Tbc": cfg.Tbc, "Rsb": cfg.Rsb, "Tsb": cfg.Tsb, "Vsb": cfg.Vsb, "bg": cfg.Bg, "ba": cfg.Ba,
	} {
		if v != nil && len(v) != 3 {
			return utils.NewConfigValidationError(path, errors.Errorf("%s should have 3 entries, got %d", name, len(v)))
		}
	}
	for name, v := range map[string]float64{
		"gravity":                cfg.Gravity,
		"init_std_rotation":      cfg.InitStdRotation,
		"init_std_position":      cfg.InitStdPosition,
		"init_std_velocity":      cfg.InitStdVelocity,
		"init_std_gyro_bias":     cfg.InitStdGyroBias,
		"init_std_accel_bias":    cfg.InitStdAccelBias,
		"gyro_noise":             cfg.GyroNoise,
		"accel_noise":            cfg.AccelNoise,
		"gyro_bias_noise":        cfg.GyroBiasNoise,
		"accel_bias_noise":       cfg.AccelBiasNoise,
		"measurement_std":        cfg.MeasurementStd,
		"max_reprojection_error": cfg.MaxReprojectionError,
		"init_inverse_depth_std": cfg.InitInverseDepthStd,
		"min_depth":              cfg.MinDepth,
		"max_depth":              cfg.MaxDepth,
	} {
		if !(v > 0) || math.IsInf(v, 0) {
			return utils.NewConfigValidationError(path, errors.Errorf("%s should be positive, got %v", name, v))
		}
	}
	if cfg.MinParallax < 0 {
		return utils.NewConfigValidationError(path, errors.New("min_parallax should be >= 0"))
	}
	if cfg.OutlierProbability <= 0 || cfg.OutlierProbability >= 1 {
		return utils.NewConfigValidationError(path, errors.New("outlier_probability should be in (0, 1)"))
	}
	if cfg.MinTrackLength < 2 {
		return utils.NewConfigValidationError(path, errors.New("min_track_length should be >= 2"))
	}
	if cfg.MaxFeatures < 0 {
		return utils.NewConfigValidationError(path, errors.New("max_features should be >= 0"))
	}
	if cfg.MaxFeatureAge < 1 {
		return utils.NewConfigValidationError(path, errors.New("max_feature_age should be >= 1"))
	}
	if cfg.MinDepth >= cfg.MaxDepth {
		return utils.NewConfigValidationError(path, errors.New("min_depth should be less than max_depth"))
	}
	return nil
}

// CameraConfig decodes the camera section.
func (cfg *Config) CameraConfig() (*camera.Config, error) {
	return camera.DecodeConfig(cfg.Camera)
}

// vec3 reads an optional 3 element slice. Validate guarantees the length.
func vec3(v []float64) r3.Vector {
	if len(v) != 3 {
		return r3.Vector{}
	}
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}
