// Command arraytuner searches the parameter space of systolic array
// designs.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/arraytuner/trace"
)

var rootCmd = cobra.Command{
	Use:   "arraytuner",
	Short: "Design space exploration for systolic array accelerators",

	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

var rootFlags = struct {
	logJSON  bool
	logFile  string
	logLevel string
}{}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&rootFlags.logJSON, "log-json", false, "write logs as JSON")
	flags.StringVar(&rootFlags.logFile, "log-file", "", "write logs to a file instead of stderr")
	flags.StringVar(&rootFlags.logLevel, "log-level", "trace", "lowest level logged (debug|info|trace|warn|error)")

	initSearch()
	initLint()
	initEval()
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "trace":
		return trace.LevelTrace, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}

	return 0, fmt.Errorf("unknown log level %q", s)
}

func setupLogging(*cobra.Command, []string) error {
	level, err := parseLevel(rootFlags.logLevel)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stderr
	if rootFlags.logFile != "" {
		f, err := os.Create(rootFlags.logFile)
		if err != nil {
			return err
		}

		atexit.Register(func() { f.Close() })
		w = f
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if rootFlags.logJSON {
		handler = slog.NewJSONHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
