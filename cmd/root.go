package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kestrelsec/agentgate/internal/config"
	"github.com/kestrelsec/agentgate/internal/observability"
)

var (
	cfgFile string

	// Populated by PersistentPreRunE before any subcommand runs.
	appConfig *config.Config
	appLogger *zap.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "agentgate",
	Short:   "Agentgate is the glue service between AI agents and their action modules.",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v, err := initializeViper()
		if err != nil {
			return err
		}

		appConfig, err = config.NewConfigFromViper(v)
		if err != nil {
			return fmt.Errorf("failed to process configuration: %w", err)
		}

		appLogger, err = observability.NewLogger(appConfig.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		appLogger.Info("Starting agentgate", zap.String("version", Version))
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if appLogger != nil {
			appLogger.Error("Command execution failed", zap.Error(err))
			observability.Sync(appLogger)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
	if appLogger != nil {
		observability.Sync(appLogger)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// initializeViper reads the config file and environment variables.
func initializeViper() (*viper.Viper, error) {
	v := viper.New()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("AGENTGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file, defaults and env vars apply.
	}
	return v, nil
}
