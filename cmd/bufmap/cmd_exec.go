package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wippyai/bufmap/config"
)

var cmdExec = &cobra.Command{
	Use:   "exec <script>",
	Short: "Run table commands from a script",
	Long: `
The "exec" command runs one table command per line from a script file, or
from stdin when the file is "-". Lines starting with # are comments. Run
"bufmap exec -" and type "help" for the command list.

EXIT STATUS
===========

Exit status is 0 if every command succeeded, and non-zero otherwise.
`,
	Args:              cobra.ExactArgs(1),
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		return runExec(cmd.Context(), globalOptions.cfg, in, os.Stdout, execOptions)
	},
}

// ExecOptions bundles all options for the exec command.
type ExecOptions struct {
	KeepGoing bool
	Dump      bool
}

var execOptions ExecOptions

func init() {
	cmdRoot.AddCommand(cmdExec)

	f := cmdExec.Flags()
	f.BoolVarP(&execOptions.KeepGoing, "keep-going", "k", false, "report failed commands and continue")
	f.BoolVar(&execOptions.Dump, "dump", false, "dump the table before closing it")
}

func runExec(ctx context.Context, cfg config.Config, in io.Reader, out io.Writer, opts ExecOptions) (err error) {
	e, err := newEnv(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	s := newSession(e, out)
	sc := bufio.NewScanner(in)
	failed := 0
	for line := 1; sc.Scan(); line++ {
		if err := s.Exec(sc.Text()); err != nil {
			if !opts.KeepGoing {
				return fmt.Errorf("line %d: %w", line, err)
			}
			fmt.Fprintf(out, "line %d: %v\n", line, err)
			failed++
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}

	if opts.Dump {
		fmt.Fprintln(out, renderDump(e))
	}
	if failed > 0 {
		return fmt.Errorf("%d command(s) failed", failed)
	}
	return nil
}
