package cli

import (
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Run is the main entry point. Returns exit code.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env []string) int {
	// Create fresh global flags for this invocation
	globalFlags := flag.NewFlagSet("lsbdd", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.Usage = func() {}
	globalFlags.SetOutput(&strings.Builder{})
	flagHelp := globalFlags.BoolP("help", "h", false, "Show help")
	flagConfig := globalFlags.StringP("config", "c", "", "Use specified config `file`")
	flagBackend := globalFlags.StringP("backend", "b", "", "Override default data structure `tag` (bt, sl, ht, rb)")
	flagLogLevel := globalFlags.String("log-level", "", "Override log `level` (debug, info, warn, error)")

	cmdIO := NewIO(in, out, errOut)

	if err := globalFlags.Parse(args[1:]); err != nil {
		cmdIO.ErrPrintln("error:", err)
		printGlobalOptions(cmdIO, globalFlags)

		return 1
	}

	workDir, err := os.Getwd()
	if err != nil {
		cmdIO.ErrPrintln("error:", err)
		return 1
	}

	overrides := Config{Backend: *flagBackend, LogLevel: *flagLogLevel}

	cfg, sources, err := LoadConfig(workDir, *flagConfig, overrides, env)
	if err != nil {
		cmdIO.ErrPrintln("error:", err)
		printGlobalOptions(cmdIO, globalFlags)

		return 1
	}

	log, err := newLogger(cfg.LogLevel, errOut)
	if err != nil {
		cmdIO.ErrPrintln("error:", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	commands := allCommands(cfg, sources, log)

	commandMap := make(map[string]*Command, len(commands))
	for _, cmd := range commands {
		commandMap[cmd.Name()] = cmd
	}

	commandAndArgs := globalFlags.Args()

	// Show help: explicit --help or bare `lsbdd` with no args
	if *flagHelp || len(commandAndArgs) == 0 {
		printUsage(cmdIO, commands, globalFlags)
		return 0
	}

	cmdName := commandAndArgs[0]

	cmd, ok := commandMap[cmdName]
	if !ok {
		cmdIO.ErrPrintln("error: unknown command:", cmdName)
		printUsage(cmdIO, commands, globalFlags)

		return 1
	}

	return cmd.Run(cmdIO, commandAndArgs[1:])
}

func allCommands(cfg Config, sources ConfigSources, log *zap.Logger) []*Command {
	return []*Command{
		cmdShell(cfg, log),
		cmdStructures(),
		cmdConfig(cfg, sources),
		cmdVersion(),
	}
}

func printUsage(o *IO, commands []*Command, globalFlags *flag.FlagSet) {
	o.Println("Usage: lsbdd [global flags] <command> [args]")
	o.Println()
	o.Println("Log-structured virtual block device control tool.")
	o.Println()
	o.Println("Commands:")

	for _, cmd := range commands {
		o.Println(cmd.HelpLine())
	}

	o.Println()
	printGlobalOptions(o, globalFlags)
}

func printGlobalOptions(o *IO, globalFlags *flag.FlagSet) {
	o.Println("Global flags:")

	var buf strings.Builder
	globalFlags.SetOutput(&buf)
	globalFlags.PrintDefaults()
	o.Printf("%s", buf.String())
}

// newLogger builds a console zap logger at the given level, writing to w.
func newLogger(level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(w),
		lvl,
	)

	return zap.New(core), nil
}
