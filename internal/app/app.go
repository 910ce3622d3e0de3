// internal/app/app.go
package app

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"qba/internal/writers"
)

// RunContext runs the qba command line and returns the process exit code:
// 0 ok, 2 usage/config/schema error, 3 runtime or output error,
// 4 undefined estimate, 130 cancelled.
func RunContext(parent context.Context, argv []string, stdout, stderr io.Writer) int {
	outw := bufio.NewWriter(stdout)

	st := &state{stdout: outw, stderr: stderr}
	root := newRootCmd(st)
	root.SetArgs(argv)
	root.SetOut(outw)
	root.SetErr(stderr)

	err := root.ExecuteContext(parent)
	if ferr := outw.Flush(); err == nil && ferr != nil && !writers.IsBrokenPipe(ferr) {
		err = ferr
	}
	if err == nil {
		return 0
	}
	code := exitCode(err, st.started)
	if code != exitCancelled {
		_, _ = fmt.Fprintf(stderr, "qba: %v\n", err)
	}
	return code
}

// Run is RunContext with a background context.
func Run(argv []string, stdout, stderr io.Writer) int {
	return RunContext(context.Background(), argv, stdout, stderr)
}
