package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/matsen/citegraph/internal/config"
)

var configSave string

func init() {
	configCmd.Flags().StringVar(&configSave, "save", "", "Also write the effective configuration (password omitted) to this YAML file")
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the effective configuration after applying the config file, .env,
and environment variables. The Neo4j password is redacted.

With --save, the configuration is also written as a YAML file usable with
--config. The password is never written; keep it in NEO4J_PASSWORD.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	if configSave != "" {
		saved := *cfg
		saved.Store.Neo4j.Password = ""
		if err := saved.Save(config.ExpandPath(configSave)); err != nil {
			return err
		}
	}

	data, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if humanOutput {
		outputHuman("%s", data)
		return nil
	}

	// Round-trip through YAML so JSON output uses the same keys.
	var generic map[string]interface{}
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return outputJSON(generic)
}
