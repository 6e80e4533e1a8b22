package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-yogan-guard/application"
	"github.com/KOMKZ/go-yogan-guard/flagx"
	"github.com/KOMKZ/go-yogan-guard/logger"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	Version = "dev"
	Commit  = "none"
)

type configFlags struct {
	Dir string `flag:"config,c" usage:"config directory" default:"configs"`
	Env string `flag:"env,e" usage:"environment overlay, e.g. prod reads <dir>/prod.yaml"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "guard",
		Short:         "Circuit breaking, retries and rule-driven scaling for downstream services",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			// a missing .env is normal outside development
			_ = godotenv.Load()
		},
	}
	root.AddCommand(newServeCmd(), newConfigCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the guard with its admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var f configFlags
			if err := flagx.Parse(cmd, &f); err != nil {
				return err
			}
			cfg, files, err := application.LoadConfig(f.Dir, f.Env)
			if err != nil {
				return err
			}

			logger.InitManager(cfg.Logger)
			defer func() { _ = logger.CloseManager() }()
			log := logger.GetLogger("main")
			log.Info("config loaded",
				zap.Strings("files", files),
				zap.String("version", Version),
				zap.String("commit", Commit))

			app, err := application.New(cfg)
			if err != nil {
				return err
			}
			return app.Run(context.Background())
		},
	}
	mustBind(cmd, &configFlags{})
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Configuration helpers"}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration, then print its summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var f configFlags
			if err := flagx.Parse(cmd, &f); err != nil {
				return err
			}
			cfg, files, err := application.LoadConfig(f.Dir, f.Env)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, file := range files {
				fmt.Fprintf(out, "loaded %s\n", file)
			}
			fmt.Fprintf(out, "ok: %s\n", cfg)
			return nil
		},
	}
	mustBind(validate, &configFlags{})
	cmd.AddCommand(validate)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "guard %s (%s)\n", Version, Commit)
		},
	}
}

func mustBind(cmd *cobra.Command, target interface{}) {
	if err := flagx.Bind(cmd, target); err != nil {
		panic(err)
	}
}
