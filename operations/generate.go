package operations

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/evergreen-ci/collbench"
	"github.com/evergreen-ci/collbench/distribution"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

// Generate writes one message-size data file, outside of any benchmark run.
func Generate() cli.Command {
	return cli.Command{
		Name:  "generate",
		Usage: "generate a message-size data file",
		Flags: []cli.Flag{
			cli.IntFlag{
				Name:  joinFlagNames(nprocFlagName, "n"),
				Usage: "number of processes",
			},
			cli.StringFlag{
				Name:  joinFlagNames(distFlagName, "d"),
				Usage: fmt.Sprintf("distribution, one of: %s", strings.Join(distribution.Names(), ", ")),
			},
			cli.BoolFlag{
				Name:  m2mFlagName,
				Usage: "generate a matrix with one row per sending process",
			},
			cli.Int64Flag{
				Name:  seedFlagName,
				Usage: "seed for probabilistic distributions",
				Value: collbench.DefaultSeed,
			},
			cli.StringFlag{
				Name:  filenameFlagName,
				Usage: "file name to write instead of the derived '<nproc>[-m2m]-<dist>.csv'",
			},
			cli.StringFlag{
				Name:  dirFlagName,
				Usage: "directory to write the file into",
				Value: ".",
			},
			cli.StringSliceFlag{
				Name:  joinFlagNames(paramFlagName, "p"),
				Usage: "distribution parameter as KEY=VALUE; may be specified more than once",
			},
		},
		Before: mergeBeforeFuncs(requireIntFlag(nprocFlagName), requireStringFlag(distFlagName)),
		Action: func(c *cli.Context) error {
			params, err := parseParams(c.StringSlice(paramFlagName))
			if err != nil {
				return err
			}
			params["nproc"] = c.Int(nprocFlagName)
			params["m2m"] = c.Bool(m2mFlagName)
			params["seed"] = c.Int64(seedFlagName)
			params["savedir"] = c.String(dirFlagName)
			if name := c.String(filenameFlagName); name != "" {
				params["filename"] = name
			}

			ds, err := distribution.Generate(c.String(distFlagName), params)
			if err != nil {
				return err
			}

			cells := 0
			for _, row := range ds.Rows {
				cells += len(row)
			}
			seed := ""
			if !distribution.IsDeterministic(ds.Name) {
				seed = fmt.Sprintf(", seed %d", c.Int64(seedFlagName))
			}
			fmt.Fprintf(c.App.Writer, "wrote %s %s (%s values%s) to %s\n",
				ds.Shape, ds.Name, humanize.Comma(int64(cells)), seed, ds.Path)
			return nil
		},
	}
}

// parseParams turns KEY=VALUE pairs into generator parameters. Values stay
// strings; the generator decodes them weakly.
func parseParams(pairs []string) (map[string]interface{}, error) {
	params := make(map[string]interface{}, len(pairs)+4)
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.Errorf("parameter '%s' must have the form KEY=VALUE", pair)
		}
		params[key] = strings.TrimSpace(value)
	}
	return params, nil
}
