package operations

import (
	"fmt"

	"github.com/evergreen-ci/collbench/model"
	"github.com/evergreen-ci/collbench/scheduler"
	"github.com/urfave/cli"
)

// Render prints the launch script a run would write for one test.
func Render() cli.Command {
	return cli.Command{
		Name:  "render",
		Usage: "print the launch script for a test without generating data or dispatching it",
		Flags: addSpecFlag(
			cli.StringFlag{
				Name:  joinFlagNames(testFlagName, "t"),
				Usage: "name of the test to render",
			},
			cli.StringFlag{
				Name:  joinFlagNames(outputFlagName, "o"),
				Usage: "parent directory of the run workspace (overrides global_config.output.directory)",
			},
		),
		Before: mergeBeforeFuncs(requireSpecFlag, requireStringFlag(testFlagName)),
		Action: func(c *cli.Context) error {
			spec, err := model.LoadSpec(c.String(specFlagName))
			if err != nil {
				return err
			}

			script, err := scheduler.New(spec, scheduler.Options{
				OutputDirectory: c.String(outputFlagName),
			}).Render(c.String(testFlagName))
			if err != nil {
				return err
			}

			fmt.Fprint(c.App.Writer, script)
			return nil
		},
	}
}
