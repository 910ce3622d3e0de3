package app

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"qba/internal/config"
	"qba/internal/output"
	"qba/internal/storage"
	"qba/internal/storage/sqlite"
	"qba/internal/writers"
	"qba/pkg/api"
)

type runsFlags struct {
	db     string
	format string
	header bool
}

func (f *runsFlags) open(cmd *cobra.Command) (*sqlite.Store, error) {
	if _, ok := writers.ReportWriters[f.format]; !ok {
		return nil, usagef("unknown --format %q (want %s)", f.format, strings.Join(writers.Formats(), "|"))
	}
	path := f.db
	if !changed(cmd.Flags(), "db") {
		env, err := config.LoadEnv()
		if err != nil {
			return nil, usageError{err: err}
		}
		path = env.DB
	}
	if path == "" {
		return nil, usagef("no run database: pass --db or set QBA_DB")
	}
	return sqlite.Open(cmd.Context(), path)
}

func newRunsCmd(st *state) *cobra.Command {
	var f runsFlags
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect runs recorded with --db",
	}
	cmd.PersistentFlags().StringVar(&f.db, "db", "", "SQLite run database (env QBA_DB)")
	cmd.PersistentFlags().StringVarP(&f.format, "format", "o", "text", "output format: text|json")
	cmd.PersistentFlags().BoolVar(&f.header, "header", true, "print a header row in TSV output")

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := f.open(cmd)
			if err != nil {
				return err
			}
			defer store.Close()
			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := make([]api.RunV1, len(runs))
			for i, r := range runs {
				out[i] = output.ToAPIRun(r, nil)
			}
			return writers.WriteReport(f.format, st.stdout, out, writers.Options{Header: f.header})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Show one recorded run with its trial estimates",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := f.open(cmd)
			if err != nil {
				return err
			}
			defer store.Close()
			run, trials, err := store.GetRun(cmd.Context(), args[0])
			if errors.Is(err, storage.ErrNotFound) {
				return usagef("run %q not found", args[0])
			}
			if err != nil {
				return err
			}
			v := output.ToAPIRun(run, trials)
			if f.format == "json" {
				return writers.WriteReport("json", st.stdout, v, writers.Options{})
			}
			return writers.WriteReport("text", st.stdout, []api.RunV1{v}, writers.Options{Header: f.header})
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}
