// Package cli implements the developer harness command line using
// Cobra, following germtb-mlsgit's internal/cli layout: one file per
// subcommand, a package-level rootCmd wired up in init.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/HORNET-Storage/hornet-messaging/lib/config"
	"github.com/HORNET-Storage/hornet-messaging/lib/service"
)

var rootCmd = &cobra.Command{
	Use:   "hornet-messaging-cli",
	Short: "Developer harness for the MLS/Nostr messaging core",
}

var cfgFile string

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./hornet-messaging.yaml)")
	rootCmd.AddCommand(statusCmd, groupCmd, contactCmd, keyPackageCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadService() (*service.Service, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("hornet-messaging")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("HORNET_MESSAGING")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, fmt.Errorf("build configuration: %w", err)
	}

	return service.New(cfg)
}
