package config

import (
	"os"
	"strings"
)

// EnvSource environment variables sharing a prefix.
// A double underscore separates levels, a single one stays inside the key:
//
//	GUARD_BREAKER__DEFAULT__FAILURE_THRESHOLD=3 -> breaker.default.failure_threshold
type EnvSource struct {
	prefix   string
	priority int
	environ  func() []string
}

// NewEnvSource creates an env source, prefix is required
func NewEnvSource(prefix string, priority int) *EnvSource {
	return &EnvSource{prefix: strings.ToUpper(prefix), priority: priority, environ: os.Environ}
}

func (s *EnvSource) Name() string  { return "env:" + s.prefix }
func (s *EnvSource) Priority() int { return s.priority }

func (s *EnvSource) Load() (map[string]interface{}, error) {
	result := make(map[string]interface{})
	if s.prefix == "" {
		return result, nil
	}

	prefix := s.prefix + "_"
	for _, env := range s.environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		configKey := strings.ToLower(strings.TrimPrefix(key, prefix))
		configKey = strings.ReplaceAll(configKey, "__", ".")
		if configKey == "" {
			continue
		}
		result[configKey] = value
	}
	return result, nil
}
