package config

// ConfigSource a source of configuration values.
// Load returns a flat map keyed by dotted paths such as "breaker.default.failure_threshold".
// Sources with a higher Priority override lower ones:
// defaults 1, config.yaml 10, <env>.yaml 20, environment variables 50.
type ConfigSource interface {
	Name() string
	Priority() int
	Load() (map[string]interface{}, error)
}

// Priorities used by NewDirLoader
const (
	PriorityDefaults = 1
	PriorityFile     = 10
	PriorityEnvFile  = 20
	PriorityEnv      = 50
)

// MapSource in-memory source, used for defaults and tests
type MapSource struct {
	name     string
	priority int
	data     map[string]interface{}
}

// NewMapSource creates a source from a nested map
func NewMapSource(name string, priority int, data map[string]interface{}) *MapSource {
	return &MapSource{name: name, priority: priority, data: data}
}

func (s *MapSource) Name() string  { return "map:" + s.name }
func (s *MapSource) Priority() int { return s.priority }

func (s *MapSource) Load() (map[string]interface{}, error) {
	return flattenMap("", s.data), nil
}

// flattenMap {"a": {"b": 1}} -> {"a.b": 1}
func flattenMap(prefix string, data map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for key, value := range data {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok && len(nested) > 0 {
			for k, v := range flattenMap(fullKey, nested) {
				result[k] = v
			}
			continue
		}
		result[fullKey] = value
	}
	return result
}
