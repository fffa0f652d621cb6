package cli

import (
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/qrutyy/ls-bdd/pkg/lsmap"
)

func cmdStructures() *Command {
	return &Command{
		Flags: flag.NewFlagSet("structures", flag.ContinueOnError),
		Usage: "structures",
		Short: "List recognized map back-ends",
		Exec: func(o *IO, _ []string) error {
			for i, b := range lsmap.Backends() {
				concurrency := "synchronous"
				if b.Concurrent() {
					concurrency = "lock-free"
				}

				o.Println(fmt.Sprintf("%d. %s (%s)", i+1, b, concurrency))
			}

			return nil
		},
	}
}
