package operations

import (
	"fmt"

	"github.com/evergreen-ci/collbench/model"
	"github.com/evergreen-ci/collbench/scheduler"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"gopkg.in/yaml.v3"
)

// Validate checks a benchmark specification without side effects and
// prints it with every default filled in.
func Validate() cli.Command {
	const quietFlagName = "quiet"

	return cli.Command{
		Name:  "validate",
		Usage: "verify that a benchmark specification is valid and its binaries exist",
		Flags: addSpecFlag(
			cli.BoolFlag{
				Name:  joinFlagNames(quietFlagName, "q"),
				Usage: "do not print the normalized specification",
			},
		),
		Before: requireSpecFlag,
		Action: func(c *cli.Context) error {
			spec, err := model.LoadSpec(c.String(specFlagName))
			if err != nil {
				return err
			}
			if err = scheduler.New(spec, scheduler.Options{}).Validate(); err != nil {
				return err
			}

			if !c.Bool(quietFlagName) {
				out, err := yaml.Marshal(spec)
				if err != nil {
					return errors.Wrap(err, "marshalling normalized specification")
				}
				fmt.Fprint(c.App.Writer, string(out))
			}
			fmt.Fprintf(c.App.Writer, "benchmark '%s' is valid: %d tests\n", spec.Name, len(spec.Tests))
			return nil
		},
	}
}
