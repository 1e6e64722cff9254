package operations

import (
	"strings"

	"github.com/urfave/cli"
)

const (
	specFlagName      = "spec"
	outputFlagName    = "output-dir"
	verboseFlagName   = "verbose"
	ephemeralFlagName = "ephemeral"
	testFlagName      = "test"

	nprocFlagName    = "nproc"
	distFlagName     = "dist"
	m2mFlagName      = "m2m"
	seedFlagName     = "seed"
	filenameFlagName = "filename"
	dirFlagName      = "dir"
	paramFlagName    = "param"
)

func joinFlagNames(ids ...string) string { return strings.Join(ids, ", ") }

func addSpecFlag(flags ...cli.Flag) []cli.Flag {
	return append(flags, cli.StringFlag{
		Name:  joinFlagNames(specFlagName, "s", "f"),
		Usage: "path to a benchmark specification (YAML or JSON)",
	})
}

func addVerboseFlag(flags ...cli.Flag) []cli.Flag {
	return append(flags, cli.BoolFlag{
		Name:  joinFlagNames(verboseFlagName, "v"),
		Usage: "stream worker output and pass --verbose to every worker",
	})
}
