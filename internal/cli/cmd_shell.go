package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
)

// shellOps lists the operations available inside the shell, for help and
// tab completion.
var shellOps = []string{
	"set_data_structure",
	"set_redirect_bd",
	"delete_bd",
	"get_vbd_names",
	"get_data_structures",
	"write",
	"read",
	"help",
	"exit",
}

func cmdShell(cfg Config, log *zap.Logger) *Command {
	return &Command{
		Flags: flag.NewFlagSet("shell", flag.ContinueOnError),
		Usage: "shell",
		Short: "Interactive operator shell",
		Long: `Start an interactive operator shell.

Devices bound in the shell live until they are deleted or the shell exits;
the indirection maps are in-memory only and are discarded on exit.

Operations:
  set_data_structure <tag>        Select back-end for subsequent binds (bt, sl, ht, rb)
  set_redirect_bd <index> <path>  Bind lsvbd<index> over a backing device
                                  (path may be "mem:<size>" for an in-memory device)
  delete_bd <index>               Destroy the device at the listed position
  get_vbd_names                   List bound devices
  get_data_structures             List recognized back-ends
  write <vbd> <lba> <size>        Issue a synthetic write (size like 4KB)
  read <vbd> <lba> <size>         Issue a synthetic read
  exit                            Unbind everything and leave`,
		Exec: func(o *IO, _ []string) error {
			return runShell(o, cfg, log)
		},
	}
}

func runShell(o *IO, cfg Config, log *zap.Logger) error {
	session := NewSession(cfg, log)
	defer session.Close()

	line := liner.NewLiner()
	defer func() { _ = line.Close() }()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(prefix string) []string {
		var out []string
		for _, op := range shellOps {
			if strings.HasPrefix(op, prefix) {
				out = append(out, op)
			}
		}

		return out
	})

	o.Println("lsbdd shell — back-end:", cfg.Backend, "(help for operations)")

	for {
		input, err := line.Prompt("lsbdd> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("read input: %w", err)
		}

		fields := strings.Fields(input)
		if len(fields) == 0 {
			continue
		}

		line.AppendHistory(input)

		if fields[0] == "exit" || fields[0] == "quit" {
			return nil
		}

		if err := dispatchShellOp(o, session, fields[0], fields[1:]); err != nil {
			o.ErrPrintln("error:", err)
		}
	}
}

//nolint:cyclop // one arm per operator verb
func dispatchShellOp(o *IO, session *Session, op string, args []string) error {
	switch op {
	case "set_data_structure":
		if len(args) != 1 {
			return errors.New("usage: set_data_structure <tag>")
		}

		return session.SetDataStructure(args[0])

	case "set_redirect_bd":
		if len(args) != 2 {
			return errors.New("usage: set_redirect_bd <index> <path>")
		}

		name, err := session.SetRedirectBD(args[0], args[1])
		if err != nil {
			return err
		}

		o.Println("bound", name, "->", args[1])

		return nil

	case "delete_bd":
		if len(args) != 1 {
			return errors.New("usage: delete_bd <index>")
		}

		return session.DeleteBD(args[0])

	case "get_vbd_names":
		lines := session.VBDNames()
		if len(lines) == 0 {
			o.Println("no devices bound")
			return nil
		}

		for _, l := range lines {
			o.Println(l)
		}

		return nil

	case "get_data_structures":
		for _, l := range session.DataStructures() {
			o.Println(l)
		}

		return nil

	case "write":
		if len(args) != 3 {
			return errors.New("usage: write <vbd> <lba> <size>")
		}

		summary, err := session.Write(args[0], args[1], args[2])
		if err != nil {
			return err
		}

		o.Println(summary)

		return nil

	case "read":
		if len(args) != 3 {
			return errors.New("usage: read <vbd> <lba> <size>")
		}

		summary, err := session.Read(args[0], args[1], args[2])
		if err != nil {
			return err
		}

		o.Println(summary)

		return nil

	case "help":
		for _, op := range shellOps {
			o.Println(" ", op)
		}

		return nil

	default:
		return fmt.Errorf("unknown operation %q (try help)", op)
	}
}
