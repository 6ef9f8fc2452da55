package camera

import (
	"slices"
	"sync"

	"github.com/google/go-cmp/cmp"

	"go.viam.com/vio/logging"
)

// Manager builds the camera model once and hands out that same model for the rest of its life.
// Later configurations are not merged into it.
type Manager struct {
	logger logging.Logger

	mu    sync.Mutex
	cfg   *Config
	model *Model
}

// NewManager returns a manager holding no model.
func NewManager(logger logging.Logger) *Manager {
	return &Manager{logger: logger}
}

// Create builds the model from cfg on the first successful call. Every later call returns that
// model unchanged, logging a warning when its configuration differs from the one in use.
func (mgr *Manager) Create(cfg *Config) (*Model, error) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if mgr.model != nil {
		if cfg != nil {
			if diff := cmp.Diff(*mgr.cfg, *cfg); diff != "" {
				mgr.logger.Warnw("ignoring camera reconfiguration; keeping the existing model",
					"model", mgr.model.Kind().String(), "requested", cfg.Model, "diff", diff)
			}
		}
		return mgr.model, nil
	}

	model, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}
	cfgCopy := *cfg
	cfgCopy.K0123 = slices.Clone(cfg.K0123)
	cfgCopy.P01K012 = slices.Clone(cfg.P01K012)
	mgr.cfg = &cfgCopy
	mgr.model = model
	mgr.logger.Infow("camera model created", "model", model.Kind().String(),
		"rows", model.Rows(), "cols", model.Cols(), "focal_length", model.FocalLength())
	return model, nil
}

// Model returns the held model, or nil before a successful Create.
func (mgr *Manager) Model() *Model {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return mgr.model
}
