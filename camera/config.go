package camera

import (
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// ErrInvalidConfiguration is returned, wrapped with the offending detail, when a camera
// configuration cannot produce a model.
var ErrInvalidConfiguration = errors.New("invalid camera configuration")

func newInvalidConfigurationError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidConfiguration, format, args...)
}

// DefaultMaxIter bounds the iterative inverses when a configuration does not set max_iter.
const DefaultMaxIter = 15

// Config describes a camera model and its intrinsics.
type Config struct {
	Model string  `json:"model"`
	Rows  int     `json:"rows"`
	Cols  int     `json:"cols"`
	Fx    float64 `json:"fx"`
	Fy    float64 `json:"fy"`
	Cx    float64 `json:"cx"`
	Cy    float64 `json:"cy"`

	// W is the field of view parameter of the atan/fov model.
	W *float64 `json:"w,omitempty"`
	// K0123 are the equidistant polynomial coefficients.
	K0123 []float64 `json:"k0123,omitempty"`
	// P01K012 are the radial-tangential coefficients p1, p2, k1, k2, k3.
	P01K012 []float64 `json:"p01k012,omitempty"`
	MaxIter int       `json:"max_iter,omitempty"`
}

// DecodeConfig decodes a camera configuration out of a generic attribute map, e.g. the "camera"
// object of the estimator configuration.
func DecodeConfig(attrs map[string]interface{}) (*Config, error) {
	if attrs == nil {
		return nil, newInvalidConfigurationError("no camera attributes")
	}
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "json", Result: &cfg})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attrs); err != nil {
		return nil, errors.Wrap(ErrInvalidConfiguration, err.Error())
	}
	return &cfg, nil
}

// Validate checks the fields shared by every model and the coefficients of the named one.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return newInvalidConfigurationError("config not provided")
	}
	kind := KindFromString(cfg.Model)
	if kind == KindUnknown {
		return newInvalidConfigurationError("unknown camera model %q", cfg.Model)
	}
	if cfg.Rows <= 0 || cfg.Cols <= 0 {
		return newInvalidConfigurationError("invalid size (%d, %d)", cfg.Rows, cfg.Cols)
	}
	if cfg.Fx <= 0 {
		return newInvalidConfigurationError("invalid focal length fx = %v", cfg.Fx)
	}
	if cfg.Fy <= 0 {
		return newInvalidConfigurationError("invalid focal length fy = %v", cfg.Fy)
	}
	if cfg.MaxIter < 0 {
		return newInvalidConfigurationError("max_iter must be non-negative, got %d", cfg.MaxIter)
	}

	switch kind {
	case KindFieldOfView:
		if cfg.W == nil {
			return newInvalidConfigurationError("model %q requires w", cfg.Model)
		}
		if *cfg.W <= 0 {
			return newInvalidConfigurationError("w must be positive, got %v", *cfg.W)
		}
	case KindEquidistant:
		if len(cfg.K0123) != 4 {
			return newInvalidConfigurationError("model %q requires 4 k0123 coefficients, got %d", cfg.Model, len(cfg.K0123))
		}
	case KindRadialTangential:
		if len(cfg.P01K012) != 5 {
			return newInvalidConfigurationError("model %q requires 5 p01k012 coefficients, got %d", cfg.Model, len(cfg.P01K012))
		}
	case KindPinhole, KindUnknown:
	}
	return nil
}
