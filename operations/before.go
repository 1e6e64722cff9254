package operations

import (
	"github.com/evergreen-ci/utility"
	"github.com/mongodb/grip"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

var (
	requireSpecFlag = func(c *cli.Context) error {
		path := c.String(specFlagName)
		if path == "" {
			return errors.New("must specify a benchmark specification with --spec")
		}
		if !utility.FileExists(path) {
			return errors.Errorf("benchmark specification '%s' does not exist", path)
		}
		return nil
	}
)

func requireStringFlag(name string) cli.BeforeFunc {
	return func(c *cli.Context) error {
		if c.String(name) == "" {
			return errors.Errorf("must specify --%s", name)
		}
		return nil
	}
}

func requireIntFlag(name string) cli.BeforeFunc {
	return func(c *cli.Context) error {
		if !c.IsSet(name) {
			return errors.Errorf("must specify --%s", name)
		}
		return nil
	}
}

func mergeBeforeFuncs(ops ...cli.BeforeFunc) cli.BeforeFunc {
	return func(c *cli.Context) error {
		catcher := grip.NewBasicCatcher()

		for _, op := range ops {
			catcher.Add(op(c))
		}

		return catcher.Resolve()
	}
}
