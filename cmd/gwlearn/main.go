// Command gwlearn fits geographically weighted classifiers from CSV tables.
//
// Usage:
//
//	gwlearn fit --config gw.yaml --data train.csv --features a,b --target label --out focal.csv
//	gwlearn fit ... --predict query.csv --predictions-out pred.csv --plot focal.png
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/gwlearn/pkg/log"
)

type globalFlags struct {
	logLevel  string
	logFormat string
}

func main() {
	if err := newRootCmd(os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "gwlearn",
		Short:         "Geographically weighted classification",
		Long:          `gwlearn fits one local classifier per location and blends them with kernel weights.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(stderr, g)
		},
	}
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "json", "log format (json, console)")

	root.AddCommand(newFitCmd())
	return root
}

// setupLogging installs the process-wide logger. The json format goes through
// slog with the error formatting handler; console uses zerolog, which also
// takes over library warnings.
func setupLogging(w io.Writer, g *globalFlags) error {
	level, err := log.ParseLevel(g.logLevel)
	if err != nil {
		return err
	}
	switch g.logFormat {
	case "json", "":
		if err := log.SetupLogger(w, g.logLevel); err != nil {
			return err
		}
		log.SetLogger(nil)
		log.DisableZerologWarnings()
	case "console":
		zl := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
			Level(zerologLevel(level)).
			With().Timestamp().Logger()
		log.SetLogger(log.NewZerologLogger(zl))
		log.EnableZerologWarnings(zl)
	default:
		return fmt.Errorf("invalid log format: %s", g.logFormat)
	}
	return nil
}

func zerologLevel(level log.Level) zerolog.Level {
	switch level {
	case log.LevelDebug:
		return zerolog.DebugLevel
	case log.LevelWarn:
		return zerolog.WarnLevel
	case log.LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
