package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"storefront/internal/app"
	"storefront/internal/config"
	"storefront/internal/util"
)

// runtime is shared by subcommands for one invocation.
type runtime struct {
	configPath string
	logLevel   string
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rt := &runtime{}

	rootCmd := &cobra.Command{
		Use:          "storefront",
		Short:        "Storefront account and cart client",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&rt.configPath, "config", "c", "", "config file (default storefront.yaml)")
	rootCmd.PersistentFlags().StringVar(&rt.logLevel, "log-level", "", "override logLevel from config")

	rootCmd.AddCommand(
		newRegisterCommand(rt),
		newLoginCommand(rt),
		newLogoutCommand(rt),
		newWhoamiCommand(rt),
		newCartCommand(rt),
	)

	return rootCmd
}

type appFunc func(cmd *cobra.Command, args []string, a *app.App) error

// withApp opens the application for the duration of one command.
func (rt *runtime) withApp(fn appFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := rt.open(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}

func (rt *runtime) open(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(rt.configPath)
	if err != nil {
		return nil, err
	}
	if rt.logLevel != "" {
		cfg.LogLevel = rt.logLevel
	}
	timeout, err := config.ParseRequestTimeout(cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}
	logger := util.InitLogger(cfg.LogLevel)

	a, err := app.New(app.Config{
		IdentityServiceURL: cfg.IdentityServiceURL,
		RequestTimeout:     timeout,
		StorageBackend:     cfg.StorageBackend,
		DataDir:            cfg.DataDir,
		Profile:            cfg.Profile,
		RedisAddr:          cfg.RedisAddr,
		RedisPassword:      cfg.RedisPassword,
		RedisPrefix:        cfg.RedisPrefix,
		DatabaseURL:        cfg.DatabaseURL,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init app: %w", err)
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}
