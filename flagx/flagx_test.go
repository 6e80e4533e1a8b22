package flagx

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serveFlags struct {
	ConfigDir string        `flag:"config,c" usage:"config directory" default:"configs"`
	Env       string        `flag:"env,e"`
	Workers   int           `flag:"workers" default:"4"`
	DryRun    bool          `flag:"dry-run"`
	Grace     time.Duration `flag:"grace" default:"10s"`
	Services  []string      `flag:"service"`
	ignored   string        `flag:"ignored"` //nolint:unused
}

func newCmd(t *testing.T, target interface{}) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "serve", RunE: func(*cobra.Command, []string) error { return nil }}
	require.NoError(t, Bind(cmd, target))
	return cmd
}

func TestBindAndParse(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cmd := newCmd(t, &serveFlags{})
		require.NoError(t, cmd.ParseFlags(nil))

		var f serveFlags
		require.NoError(t, Parse(cmd, &f))
		assert.Equal(t, "configs", f.ConfigDir)
		assert.Equal(t, 4, f.Workers)
		assert.Equal(t, 10*time.Second, f.Grace)
		assert.False(t, f.DryRun)
		assert.Empty(t, f.Services)
	})

	t.Run("argv", func(t *testing.T) {
		cmd := newCmd(t, &serveFlags{})
		require.NoError(t, cmd.ParseFlags([]string{
			"-c", "/etc/guard", "--env=prod", "--workers", "8", "--dry-run",
			"--grace", "1m", "--service", "api,payments",
		}))

		var f serveFlags
		require.NoError(t, Parse(cmd, &f))
		assert.Equal(t, "/etc/guard", f.ConfigDir)
		assert.Equal(t, "prod", f.Env)
		assert.Equal(t, 8, f.Workers)
		assert.True(t, f.DryRun)
		assert.Equal(t, time.Minute, f.Grace)
		assert.Equal(t, []string{"api", "payments"}, f.Services)
	})
}

func TestBind_Errors(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	assert.Error(t, Bind(cmd, serveFlags{}), "non-pointer")

	type badDefault struct {
		N int `flag:"n" default:"many"`
	}
	assert.Error(t, Bind(&cobra.Command{Use: "x"}, &badDefault{}))

	type unsupported struct {
		M map[string]string `flag:"m"`
	}
	assert.Error(t, Bind(&cobra.Command{Use: "x"}, &unsupported{}))
}

func TestBind_Required(t *testing.T) {
	type req struct {
		Service string `flag:"service" required:"true"`
	}
	cmd := newCmd(t, &req{})
	cmd.SetArgs([]string{})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	assert.Error(t, cmd.Execute())
}
