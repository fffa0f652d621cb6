package cli

import (
	"runtime/debug"

	flag "github.com/spf13/pflag"
)

// Version is overridden at release time via -ldflags.
var Version = "dev"

func cmdVersion() *Command {
	return &Command{
		Flags: flag.NewFlagSet("version", flag.ContinueOnError),
		Usage: "version",
		Short: "Print version information",
		Exec: func(o *IO, _ []string) error {
			version := Version
			if version == "dev" {
				if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
					version = info.Main.Version
				}
			}

			o.Println("lsbdd", version)

			return nil
		},
	}
}
