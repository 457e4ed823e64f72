package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [description...]",
		Short: "Generate Python code for one description and print it",
		Long: "Generate Python code for one description and print it.\n" +
			"The words are joined with spaces; with no arguments or a single \"-\"\n" +
			"the description is read from stdin.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			description, err := readDescription(cmd, args)
			if err != nil {
				return err
			}

			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log, cmd.ErrOrStderr())

			svcs, err := buildServices(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer svcs.Close(cmd.Context())

			gen, err := svcs.codeService.Generate(cmd.Context(), description)
			fmt.Fprintln(cmd.OutOrStdout(), gen.Result())
			if err != nil {
				return fmt.Errorf("generation %s", gen.Status)
			}
			return nil
		},
	}
	return cmd
}

func readDescription(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		if st, err := f.Stat(); err == nil && st.Mode()&os.ModeCharDevice != 0 {
			return "", fmt.Errorf("no description given; pass it as an argument or on stdin")
		}
	}
	raw, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read description: %w", err)
	}
	return strings.TrimRight(string(raw), "\n"), nil
}
