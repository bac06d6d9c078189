package cli

import (
	"github.com/urfave/cli/v2"

	"github.com/b2ctest/flowrunner/pkg/config"
	"github.com/b2ctest/flowrunner/pkg/report"
	"github.com/b2ctest/flowrunner/pkg/validator"
)

var validateCommand = &cli.Command{
	Name:      "validate",
	Usage:     "Check a settings file and its tests without opening a browser",
	ArgsUsage: "<settings-file>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "container",
			Usage:   "Read tests and settings from this blob storage container",
			EnvVars: []string{config.EnvBlobContainer},
		},
		&cli.StringFlag{
			Name:    "blob-connection-string",
			Usage:   "Connection string of the blob storage account",
			EnvVars: []string{config.EnvBlobConnection},
		},
		&cli.StringFlag{
			Name:  "single-test",
			Usage: "Validate only this test",
		},
		&cli.BoolFlag{
			Name:  "strict-completion",
			Usage: "Treat a missing completion marker as an error (overrides the settings file)",
		},
	},
	Action: validateSuite,
}

func validateSuite(c *cli.Context) error {
	ref := c.Args().First()
	if ref == "" {
		return cli.Exit("Error: a settings file is required", ExitConfigError)
	}

	src, err := newResolver(c, ref)
	if err != nil {
		return configError(err)
	}

	var strict *bool
	if c.IsSet("strict-completion") {
		v := c.Bool("strict-completion")
		strict = &v
	}

	res := validator.New(src).Validate(c.Context, ref, c.String("single-test"), strict)
	report.NewConsole(report.WithWriter(c.App.Writer), report.WithNoColor(c.Bool("no-color"))).Validation(ref, res)
	if !res.IsValid() {
		return cli.Exit("", ExitFailed)
	}
	return nil
}
