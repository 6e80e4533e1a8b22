package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSection struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
}

type testConfig struct {
	Name    string                 `mapstructure:"name"`
	Breaker testSection            `mapstructure:"breaker"`
	Presets map[string]testSection `mapstructure:"presets"`
}

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoader_PriorityOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
name: base
breaker:
  failure_threshold: 5
  recovery_timeout: 60s
presets:
  database:
    failure_threshold: 5
`)
	writeFile(t, dir, "prod.yaml", `
breaker:
  failure_threshold: 8
`)
	t.Setenv("GUARDTEST_BREAKER__RECOVERY_TIMEOUT", "2m")
	t.Setenv("GUARDTEST_NAME", "from-env")

	l := NewDirLoader(dir, "prod", "GUARDTEST")
	require.NoError(t, l.Load())

	var cfg testConfig
	require.NoError(t, l.UnmarshalExact(&cfg))
	assert.Equal(t, "from-env", cfg.Name)
	assert.Equal(t, 8, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 2*time.Minute, cfg.Breaker.RecoveryTimeout)
	assert.Equal(t, 5, cfg.Presets["database"].FailureThreshold)
	assert.Len(t, l.LoadedFiles(), 2)
}

func TestLoader_UnknownKeysRejected(t *testing.T) {
	l := NewLoader()
	l.AddSource(NewMapSource("test", PriorityDefaults, map[string]interface{}{
		"name": "x",
		"breaker": map[string]interface{}{
			"failure_treshold": 3,
		},
	}))
	require.NoError(t, l.Load())

	var cfg testConfig
	assert.Error(t, l.UnmarshalExact(&cfg))
	assert.NoError(t, l.Unmarshal(&cfg))
}

func TestLoader_MissingFileIsEmpty(t *testing.T) {
	l := NewDirLoader(t.TempDir(), "dev", "")
	require.NoError(t, l.Load())
	assert.Empty(t, l.LoadedFiles())
	assert.False(t, l.IsSet("name"))
}

func TestEnvSource(t *testing.T) {
	s := NewEnvSource("guard", PriorityEnv)
	s.environ = func() []string {
		return []string{
			"GUARD_SCALING__INITIAL_INSTANCES=2",
			"GUARD_=ignored",
			"OTHER_X=1",
			"GUARD_ADMIN__ADDR=:9000",
		}
	}
	data, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"scaling.initial_instances": "2",
		"admin.addr":                ":9000",
	}, data)
}

type failing struct{}

func (failing) Validate() error { return errors.New("bad") }

type passing struct{}

func (passing) Validate() error { return nil }

func TestValidateSections(t *testing.T) {
	err := ValidateSections(map[string]Validator{
		"a": passing{},
		"b": failing{},
	}, "a", "b", "c")

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "b", ve.Section)
	assert.Contains(t, err.Error(), "invalid config [b]")
}
