// Package cli provides the command-line interface for flowrunner.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/b2ctest/flowrunner/pkg/config"
	"github.com/b2ctest/flowrunner/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

// Exit codes.
const (
	ExitPassed      = 0
	ExitFailed      = 1
	ExitConfigError = 2
)

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	},
	&cli.StringFlag{
		Name:  "log-level",
		Usage: "Log file level (debug, info, warn, error)",
		Value: "debug",
	},
}

// NewApp builds the application.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "flowrunner",
		Usage:   "Replay recorded browser test flows",
		Version: Version,
		Description: `flowrunner replays recorded sign-up and sign-in flows in Chrome or
Firefox and reports every step to telemetry.

Examples:
  flowrunner run settings.json
  flowrunner run --single-test signup --container tests settings.json
  flowrunner dispatch --suite a.json,b.json --threads 4
  flowrunner validate settings.json
  flowrunner settings.json container:tests singleTest:signup`,
		Flags: GlobalFlags,
		Commands: []*cli.Command{
			runCommand,
			dispatchCommand,
			validateCommand,
		},
	}
}

// Execute runs the CLI with the process arguments and exits.
func Execute() {
	app := NewApp()

	prefixes, err := config.LoadPrefixes(config.GetPrefixesPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, using default argument prefixes\n", err)
		prefixes = config.DefaultPrefixes()
	}

	args := NormalizeArgs(os.Args, prefixes, commandNames(app))
	if err := app.Run(args); err != nil {
		// Exit coders have already exited through the app's handler.
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitConfigError)
	}
}

func commandNames(app *cli.App) []string {
	names := []string{"help", "h"}
	for _, c := range app.Commands {
		names = append(names, c.Name)
		names = append(names, c.Aliases...)
	}
	return names
}

// initLogging opens the log file and applies the level flag. Failing to open
// the log only warns.
func initLogging(c *cli.Context, path string) {
	if err := logger.Init(path); err != nil {
		fmt.Fprintf(c.App.ErrWriter, "Warning: failed to initialize logger: %v\n", err)
	}
	if err := logger.SetLevel(c.String("log-level")); err != nil {
		logger.Warn("invalid log level %q: %v", c.String("log-level"), err)
	}
}

// configError reports err and exits with ExitConfigError.
func configError(err error) error {
	logger.Error("%v", err)
	return cli.Exit(fmt.Sprintf("Error: %v", err), ExitConfigError)
}
