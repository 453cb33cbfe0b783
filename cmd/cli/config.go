package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anstrom/netrecon/internal/config"
)

var configForce bool

// configCmd groups configuration helpers.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create or check the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Example: `  netrecon config init
  netrecon config init /etc/netrecon/netrecon.yaml --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "netrecon.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		return writeDefaultConfig(path, configForce)
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		source := viper.ConfigFileUsed()
		if source == "" {
			source = "built-in defaults"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid (%s)\n", source)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configValidateCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
}

func writeDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Default().Save(path); err != nil {
		return err
	}
	fmt.Printf("Wrote default configuration to %s\n", path)
	return nil
}
