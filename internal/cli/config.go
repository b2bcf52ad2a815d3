// Config loading for the ndrbatch CLI.
package cli

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/ndrbatch/internal/paths"
	"github.com/mesh-intelligence/ndrbatch/pkg/types"
)

// loadConfig builds the runtime configuration: built-in model defaults,
// overlaid with the YAML config file if one resolves, overlaid with any
// global flags. A missing config file is not an error.
func loadConfig() (types.Config, error) {
	cfg := types.DefaultConfig()

	configPath, err := paths.ResolveConfigPath(flags.configPath)
	if err != nil {
		return cfg, fmt.Errorf("resolving config path: %w", err)
	}
	if configPath != "" {
		v := viper.New()
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("reading config %s: %w", configPath, err)
		}
		if err := v.Unmarshal(&cfg); err != nil {
			return cfg, fmt.Errorf("decoding config %s: %w", configPath, err)
		}
	}

	workspace, err := paths.ResolveWorkspaceDir(flags.workspaceDir, cfg.WorkspaceDir)
	if err != nil {
		return cfg, fmt.Errorf("resolving workspace dir: %w", err)
	}
	cfg.WorkspaceDir = workspace

	if flags.workers > 0 {
		cfg.Workers = flags.workers
	}

	return cfg, nil
}
