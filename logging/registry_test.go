package logging

import (
	"strings"
	"testing"

	"go.viam.com/test"
)

func verifySetLevels(registry *Registry, expectedMatches map[string]string) bool {
	for name, level := range expectedMatches {
		logger, ok := registry.Named(name)
		if !ok || !strings.EqualFold(level, logger.GetLevel().String()) {
			return false
		}
	}
	return true
}

func createTestRegistry(t *testing.T, loggerNames []string) *Registry {
	t.Helper()
	registry := NewRegistry()
	for _, name := range loggerNames {
		test.That(t, registry.Register(NewBlankLogger(name)), test.ShouldBeNil)
	}
	return registry
}

func TestValidatePattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		isValid bool
	}{
		{"vio.estimator", true},
		{"vio.estimator.*", true},
		{"vio.*.camera", true},
		{"vio.*.*", true},
		{"*.tracker", true},
		{"*", true},

		{"vio..estimator", false},
		{"vio.estimator.", false},
		{".vio.estimator", false},
		{"vio.estimator.**", false},
		{"_.vio.estimator", false},
		{"vio.-", false},
		{"vio tracker", false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.pattern, func(t *testing.T) {
			t.Parallel()
			test.That(t, ValidatePattern(tc.pattern), test.ShouldEqual, tc.isValid)
		})
	}
}

func TestUpdateConfig(t *testing.T) {
	tests := []struct {
		name            string
		loggerConfig    []LoggerPatternConfig
		loggerNames     []string
		expectedMatches map[string]string
	}{
		{
			name:         "exact",
			loggerConfig: []LoggerPatternConfig{{Pattern: "vio.estimator", Level: "WARN"}},
			loggerNames:  []string{"vio.estimator", "vio.estimator.features", "vio.tracker"},
			expectedMatches: map[string]string{
				"vio.estimator":          "WARN",
				"vio.estimator.features": "INFO",
				"vio.tracker":            "INFO",
			},
		},
		{
			name:         "wildcard",
			loggerConfig: []LoggerPatternConfig{{Pattern: "vio.*", Level: "DEBUG"}},
			loggerNames:  []string{"vio.estimator", "vio.camera.manager"},
			expectedMatches: map[string]string{
				"vio.estimator":      "DEBUG",
				"vio.camera.manager": "DEBUG",
			},
		},
		{
			name: "last match wins",
			loggerConfig: []LoggerPatternConfig{
				{Pattern: "vio.*", Level: "DEBUG"},
				{Pattern: "vio.tracker", Level: "ERROR"},
			},
			loggerNames: []string{"vio.tracker", "vio.camera"},
			expectedMatches: map[string]string{
				"vio.tracker": "ERROR",
				"vio.camera":  "DEBUG",
			},
		},
		{
			name:            "invalid pattern skipped",
			loggerConfig:    []LoggerPatternConfig{{Pattern: "_.*.camera", Level: "DEBUG"}},
			loggerNames:     []string{"vio.camera"},
			expectedMatches: map[string]string{"vio.camera": "INFO"},
		},
		{
			name:            "prefix is not a match",
			loggerConfig:    []LoggerPatternConfig{{Pattern: "a.b", Level: "DEBUG"}},
			loggerNames:     []string{"a.b.c"},
			expectedMatches: map[string]string{"a.b.c": "INFO"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			registry := createTestRegistry(t, tc.loggerNames)
			logger, logs := NewObservedTestLogger(t)
			test.That(t, registry.UpdateConfig(tc.loggerConfig, logger), test.ShouldBeNil)
			test.That(t, verifySetLevels(registry, tc.expectedMatches), test.ShouldBeTrue)
			if tc.name == "invalid pattern skipped" {
				test.That(t, logs.FilterMessage("failed to validate a pattern").Len(), test.ShouldEqual, 1)
			}
		})
	}
}

func TestRegisterAfterConfig(t *testing.T) {
	registry := NewRegistry()
	err := registry.UpdateConfig([]LoggerPatternConfig{{Pattern: "vio.*", Level: "error"}}, NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, registry.Register(NewBlankLogger("vio.tracker")), test.ShouldBeNil)
	logger, ok := registry.Named("vio.tracker")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, logger.GetLevel(), test.ShouldEqual, ERROR)
	test.That(t, registry.Names(), test.ShouldResemble, []string{"vio.tracker"})

	err = registry.UpdateConfig([]LoggerPatternConfig{{Pattern: "vio.*", Level: "loud"}}, NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}
