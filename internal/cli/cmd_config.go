package cli

import (
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"
)

func cmdConfig(cfg Config, sources ConfigSources) *Command {
	flags := flag.NewFlagSet("config", flag.ContinueOnError)
	flagSave := flags.Bool("save", false, "Write the effective config to the project config file")

	return &Command{
		Flags: flags,
		Usage: "config [--save]",
		Short: "Show the effective configuration",
		Long: `Show the effective configuration after merging defaults, the global
config, the project config and CLI overrides.

With --save, the effective configuration is written to ` + ConfigFileName + `
in the working directory (atomically).`,
		Exec: func(o *IO, _ []string) error {
			o.Println("backend:  ", cfg.Backend)
			o.Println("log_level:", cfg.LogLevel)

			if sources.Global != "" {
				o.Println("global:   ", sources.Global)
			}

			if sources.Project != "" {
				o.Println("project:  ", sources.Project)
			}

			if !*flagSave {
				return nil
			}

			workDir, err := os.Getwd()
			if err != nil {
				return err
			}

			path := filepath.Join(workDir, ConfigFileName)
			if err := SaveConfig(path, cfg); err != nil {
				return err
			}

			o.Println("saved:    ", path)

			return nil
		},
	}
}
