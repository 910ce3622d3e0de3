package app

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"qba/internal/version"
)

// state is shared by the command tree of one RunContext call.
type state struct {
	stdout  io.Writer
	stderr  io.Writer
	started bool
}

func newRootCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "qba",
		Short:         "Quantitative bias analysis for 2x2 exposure/outcome data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			st.started = true
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})

	cmd.AddCommand(
		newAdjustCmd(st),
		newPBACmd(st),
		newSweepCmd(st),
		newRunsCmd(st),
		newVersionCmd(st),
	)
	return cmd
}

func newVersionCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the qba version",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(*cobra.Command, []string) error {
			_, err := fmt.Fprintf(st.stdout, "qba version %s\n", version.Version)
			return err
		},
	}
}

// changed reports whether the user set flag name on fs.
func changed(fs *pflag.FlagSet, name string) bool {
	f := fs.Lookup(name)
	return f != nil && f.Changed
}

// usageArgs marks positional-argument errors from v as usage errors.
func usageArgs(v cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := v(cmd, args); err != nil {
			return usageError{err: err}
		}
		return nil
	}
}
