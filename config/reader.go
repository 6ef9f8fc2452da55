package config

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"

	"go.viam.com/vio/estimator"
	"go.viam.com/vio/logging"
)

// Read reads a config from the given file. ${VAR} references are replaced from the environment.
// Config files are JSON5, so comments, trailing commas and unquoted keys are accepted.
func Read(filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromReader(filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a config from the given reader and specifies where, if applicable, the file
// the reader originated from. A relative estimator_cfg is resolved against that file.
func FromReader(originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read config")
	}
	cfg := &Config{ConfigFilePath: originalPath}
	if err := unmarshalJSON5(buf, cfg); err != nil {
		return nil, errors.Wrap(err, "cannot parse config")
	}

	if cfg.EstimatorCfg != "" {
		if cfg.Estimator != nil {
			return nil, errors.New("estimator_cfg and estimator are mutually exclusive")
		}
		path := cfg.EstimatorCfg
		if !filepath.IsAbs(path) && originalPath != "" {
			path = filepath.Join(filepath.Dir(originalPath), path)
		}
		estCfg, err := readEstimatorConfig(path)
		if err != nil {
			return nil, err
		}
		logger.Debugw("read estimator config", "path", path)
		cfg.Estimator = estCfg
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readEstimatorConfig(path string) (*estimator.Config, error) {
	buf, err := envsubst.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read estimator config")
	}
	var cfg estimator.Config
	if err := unmarshalJSON5(buf, &cfg); err != nil {
		return nil, errors.Wrapf(err, "cannot parse estimator config %s", path)
	}
	return &cfg, nil
}

// unmarshalJSON5 parses JSON5 into a generic value and decodes its plain JSON form into v, so v's
// json tags and UnmarshalJSON methods apply as usual.
func unmarshalJSON5(data []byte, v interface{}) error {
	var generic interface{}
	if err := json5.Unmarshal(data, &generic); err != nil {
		return err
	}
	plain, err := json.Marshal(generic)
	if err != nil {
		return err
	}
	return json.Unmarshal(plain, v)
}
