package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"hit-tracker/pkg/config"
	"hit-tracker/pkg/errors"
)

// ConfigFile is bound to the root --config flag.
var ConfigFile string

// LoadConfig resolves configuration from ConfigFile, hits.toml, .env and HITS_* variables.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(ConfigFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	return cfg, nil
}

var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect hit tracker configuration",
	Long: `Inspect hit tracker configuration.

Configuration sources (later overrides earlier):
1. Built-in defaults
2. hits.toml in the working directory or ~/.hits (or --config)
3. .env in the working directory
4. Environment variables (HITS_* prefix, e.g. HITS_SYNC_INTERVAL=30s)

Examples:
  hits config show
  hits config show --format yaml`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		return ShowConfig(cmd.OutOrStdout(), cfg, configFormat)
	},
}

var configFormat string

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	ConfigCmd.AddCommand(configShowCmd)
}

// ShowConfig writes the resolved settings in the requested format.
func ShowConfig(w io.Writer, cfg *config.Config, format string) error {
	settings := cfg.Settings()

	var (
		data   []byte
		err    error
		header = true
	)
	switch format {
	case "json":
		data, err = json.MarshalIndent(settings, "", "  ")
		data = append(data, '\n')
		header = false
	case "yaml":
		data, err = yaml.Marshal(settings)
	case "toml":
		data, err = toml.Marshal(settings)
	default:
		return errors.WithHint(
			errors.Newf("unsupported format: %s", format),
			"supported formats are toml, json and yaml")
	}
	if err != nil {
		return errors.Wrapf(err, "failed to marshal config to %s", format)
	}

	if header {
		source := cfg.Source
		if source == "" {
			source = "defaults and environment"
		}
		if _, err := fmt.Fprintf(w, "# hit tracker configuration (%s)\n", source); err != nil {
			return err
		}
	}
	_, err = w.Write(data)
	return err
}
