package operations

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/cheynewallace/tabby"
	"github.com/dustin/go-humanize"
	"github.com/evergreen-ci/collbench/model"
	"github.com/evergreen-ci/collbench/scheduler"
	"github.com/mongodb/grip"
	"github.com/urfave/cli"
)

// Run executes every test of a benchmark specification.
func Run() cli.Command {
	return cli.Command{
		Name:  "run",
		Usage: "run a benchmark specification",
		Flags: addSpecFlag(addVerboseFlag(
			cli.StringFlag{
				Name:  joinFlagNames(outputFlagName, "o"),
				Usage: "parent directory of the run workspace (overrides global_config.output.directory)",
			},
			cli.BoolFlag{
				Name:  ephemeralFlagName,
				Usage: "delete result files and generated message data once they are no longer needed",
			},
		)...),
		Before: requireSpecFlag,
		Action: func(c *cli.Context) error {
			spec, err := model.LoadSpec(c.String(specFlagName))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go listenForSignals(ctx, cancel)

			orch := scheduler.New(spec, scheduler.Options{
				OutputDirectory: c.String(outputFlagName),
				Ephemeral:       c.Bool(ephemeralFlagName),
				Verbose:         c.Bool(verboseFlagName),
			})
			report, err := orch.Run(ctx)
			if report != nil {
				printReport(c.App.Writer, report)
			}
			return err
		},
	}
}

// listenForSignals cancels the run on SIGINT or SIGTERM, which kills the
// dispatched child instead of orphaning it.
func listenForSignals(ctx context.Context, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
	case sig := <-sigChan:
		grip.Infof("canceling benchmark after receiving %s", sig)
		cancel()
	}
}

func printReport(w io.Writer, report *scheduler.Report) {
	if len(report.Results) > 0 {
		t := tabby.NewCustom(tabwriter.NewWriter(w, 0, 0, 2, ' ', 0))
		t.AddHeader("Test", "Trial", "Status", "Duration")
		for _, res := range report.Results {
			status := "ok"
			switch {
			case !res.Dispatched:
				status = "not dispatched"
			case !res.Success:
				status = fmt.Sprintf("failed (exit %d)", res.ExitCode)
			}
			t.AddLine(res.Test, res.Trial, status, res.Duration)
		}
		t.Print()
	}
	for _, hook := range report.Hooks {
		status := "ok"
		if hook.Err != nil {
			status = fmt.Sprintf("failed: %v", hook.Err)
		}
		fmt.Fprintf(w, "post-run %s: %s\n", hook.Name, status)
	}

	outcome := string(report.State)
	if report.AbortReason != scheduler.AbortNone {
		outcome = fmt.Sprintf("%s (%s)", report.State, report.AbortReason)
	}
	fmt.Fprintf(w, "%s: %s dispatched, %d failed, took %s\n", outcome,
		humanize.Comma(int64(report.Dispatched())), len(report.Failures()), report.Finished.Sub(report.Started).Round(time.Millisecond))
	if report.Workspace != "" {
		fmt.Fprintf(w, "results in %s\n", report.Workspace)
	}
}
