package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/adobe/aio-tvm/internal/config"
	"github.com/adobe/aio-tvm/internal/providers"
	"github.com/adobe/aio-tvm/internal/service"
)

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the service configuration file",
	Long: `Parses the configuration, checks every section and builds the request
pipeline of every provider, so unknown provider types and invalid lease
bounds are reported before the server is started.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			log.Error().Err(err).Msg("Configuration is invalid.")
			return err
		}

		generators, err := providers.BuildRegistry(cfg.Providers)
		if err != nil {
			log.Error().Err(err).Msg("Configuration is invalid.")
			return err
		}
		deps := service.NewDependencies(cfg, nil, nil)
		if _, err := service.BuildPipelines(cfg, generators, deps); err != nil {
			log.Error().Err(err).Msg("Configuration is invalid.")
			return fmt.Errorf("building pipelines: %w", err)
		}

		log.Info().Int("providers", len(cfg.Providers)).Msg("Configuration is valid.")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}
