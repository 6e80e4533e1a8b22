package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// Loader merges sources by priority and decodes the result through viper
type Loader struct {
	sources     []ConfigSource
	merged      map[string]interface{}
	v           *viper.Viper
	loadedFiles []string
}

// NewLoader creates an empty loader
func NewLoader() *Loader {
	return &Loader{
		merged: make(map[string]interface{}),
		v:      viper.New(),
	}
}

// NewDirLoader wires the usual sources:
// <dir>/config.yaml, <dir>/<env>.yaml when env is set, then <PREFIX>_* variables
func NewDirLoader(dir, env, envPrefix string) *Loader {
	l := NewLoader()
	l.AddSource(NewFileSource(filepath.Join(dir, "config.yaml"), PriorityFile))
	if env != "" {
		l.AddSource(NewFileSource(filepath.Join(dir, env+".yaml"), PriorityEnvFile))
	}
	if envPrefix != "" {
		l.AddSource(NewEnvSource(envPrefix, PriorityEnv))
	}
	return l
}

// AddSource registers a source, order is decided by priority at Load
func (l *Loader) AddSource(source ConfigSource) {
	l.sources = append(l.sources, source)
}

// Load reads every source, higher priority wins per key
func (l *Loader) Load() error {
	sort.SliceStable(l.sources, func(i, j int) bool {
		return l.sources[i].Priority() < l.sources[j].Priority()
	})

	l.merged = make(map[string]interface{})
	l.loadedFiles = l.loadedFiles[:0]
	for _, source := range l.sources {
		data, err := source.Load()
		if err != nil {
			return fmt.Errorf("load source %s: %w", source.Name(), err)
		}
		if fs, ok := source.(*FileSource); ok && len(data) > 0 {
			l.loadedFiles = append(l.loadedFiles, fs.Path())
		}
		for key, value := range data {
			l.merged[strings.ToLower(key)] = value
		}
	}

	l.v = viper.New()
	for key, value := range unflattenMap(l.merged) {
		l.v.Set(key, value)
	}
	return nil
}

// Unmarshal decodes into out, unknown keys are ignored
func (l *Loader) Unmarshal(out interface{}) error {
	return l.v.Unmarshal(out)
}

// UnmarshalExact decodes into out and fails on keys out does not declare
func (l *Loader) UnmarshalExact(out interface{}) error {
	if err := l.v.UnmarshalExact(out); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// UnmarshalKey decodes a single section
func (l *Loader) UnmarshalKey(key string, out interface{}) error {
	return l.v.UnmarshalKey(key, out)
}

func (l *Loader) Get(key string) interface{} { return l.v.Get(key) }

func (l *Loader) GetString(key string) string { return l.v.GetString(key) }

func (l *Loader) IsSet(key string) bool { return l.v.IsSet(key) }

func (l *Loader) AllSettings() map[string]interface{} { return l.v.AllSettings() }

// LoadedFiles lists files that contributed values
func (l *Loader) LoadedFiles() []string {
	return append([]string(nil), l.loadedFiles...)
}

// unflattenMap {"a.b": 1} -> {"a": {"b": 1}}
func unflattenMap(flat map[string]interface{}) map[string]interface{} {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	// shorter paths first so a deeper key can replace a scalar parent
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) < len(keys[j]) })

	result := make(map[string]interface{})
	for _, key := range keys {
		parts := strings.Split(key, ".")
		current := result
		for _, p := range parts[:len(parts)-1] {
			next, ok := current[p].(map[string]interface{})
			if !ok {
				next = make(map[string]interface{})
				current[p] = next
			}
			current = next
		}
		current[parts[len(parts)-1]] = flat[key]
	}
	return result
}
