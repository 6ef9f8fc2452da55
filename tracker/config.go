package tracker

import (
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// Config holds the parameters of the corner detector, the descriptors and the matcher.
type Config struct {
	// FASTThreshold is the intensity difference (0-255) a circle pixel needs to count as brighter
	// or darker than the center.
	FASTThreshold int `json:"fast_threshold"`
	// NMatchesCircle is the contiguous arc length, out of 16, that makes a corner.
	NMatchesCircle int `json:"n_matches_circle"`
	// GridSize is the side in pixels of the cells in which at most one corner is kept.
	GridSize   int `json:"grid_size"`
	MaxCorners int `json:"max_corners"`
	// MinDistance keeps new corners this many pixels away from tracked ones.
	MinDistance float64 `json:"min_distance"`

	PatchSize      int     `json:"patch_size"`
	DescriptorBits int     `json:"descriptor_bits"`
	BlurSigma      float64 `json:"blur_sigma"`

	MaxHammingDistance int     `json:"max_hamming_distance"`
	MaxPixelMotion     float64 `json:"max_pixel_motion"`
	SkipCrossCheck     bool    `json:"skip_cross_check"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.withDefaults()
	return cfg
}

func (cfg *Config) withDefaults() {
	if cfg.FASTThreshold == 0 {
		cfg.FASTThreshold = 20
	}
	if cfg.NMatchesCircle == 0 {
		cfg.NMatchesCircle = 9
	}
	if cfg.GridSize == 0 {
		cfg.GridSize = 16
	}
	if cfg.MaxCorners == 0 {
		cfg.MaxCorners = 300
	}
	if cfg.MinDistance == 0 {
		cfg.MinDistance = 8
	}
	if cfg.PatchSize == 0 {
		cfg.PatchSize = 31
	}
	if cfg.DescriptorBits == 0 {
		cfg.DescriptorBits = 256
	}
	if cfg.BlurSigma == 0 {
		cfg.BlurSigma = 1
	}
	if cfg.MaxHammingDistance == 0 {
		cfg.MaxHammingDistance = 64
	}
	if cfg.MaxPixelMotion == 0 {
		cfg.MaxPixelMotion = 40
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.FASTThreshold < 0 || cfg.FASTThreshold > 255 {
		return utils.NewConfigValidationError(path, errors.New("fast_threshold should be in [0, 255]"))
	}
	if cfg.NMatchesCircle < 1 || cfg.NMatchesCircle > 16 {
		return utils.NewConfigValidationError(path, errors.New("n_matches_circle should be in [1, 16]"))
	}
	if cfg.GridSize < 1 {
		return utils.NewConfigValidationError(path, errors.New("grid_size should be >= 1"))
	}
	if cfg.MaxCorners < 1 {
		return utils.NewConfigValidationError(path, errors.New("max_corners should be >= 1"))
	}
	if cfg.PatchSize < 7 {
		return utils.NewConfigValidationError(path, errors.New("patch_size should be >= 7"))
	}
	if cfg.DescriptorBits < 64 || cfg.DescriptorBits%64 != 0 {
		return utils.NewConfigValidationError(path, errors.New("descriptor_bits should be a positive multiple of 64"))
	}
	if cfg.BlurSigma < 0 {
		return utils.NewConfigValidationError(path, errors.New("blur_sigma should be >= 0"))
	}
	if cfg.MaxHammingDistance < 1 || cfg.MaxHammingDistance > cfg.DescriptorBits {
		return utils.NewConfigValidationError(path, errors.New("max_hamming_distance should be in [1, descriptor_bits]"))
	}
	if cfg.MaxPixelMotion <= 0 {
		return utils.NewConfigValidationError(path, errors.New("max_pixel_motion should be positive"))
	}
	return nil
}
