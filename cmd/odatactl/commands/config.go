package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/florianilch/odatactl/internal/app"
)

// flagKeys maps global flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":   "log.level",
	"log-format":  "log.format",
	"service-url": "service.url",
	"company":     "service.company",
}

// loadConfig reads the configuration file named by --config, applying environment
// overrides and then any global flags that were set explicitly.
func loadConfig(cmd *cli.Command, environ func() []string) (*app.Config, error) {
	overrides := make(map[string]any)
	for flag, key := range flagKeys {
		if cmd.IsSet(flag) {
			overrides[key] = cmd.String(flag)
		}
	}

	return app.LoadConfig(cmd.String("config"), overrides, environ)
}
