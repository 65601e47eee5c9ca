package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type schedulerStartCmd struct{ app *App }

func (*schedulerStartCmd) Name() string             { return "scheduler-start" }
func (*schedulerStartCmd) Synopsis() string         { return "refresh rates in the background" }
func (*schedulerStartCmd) Usage() string            { return "scheduler-start\n" }
func (*schedulerStartCmd) SetFlags(f *flag.FlagSet) {}

func (c *schedulerStartCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.app.scheduler.Start() {
		fmt.Fprintln(c.app.out, "Scheduler is already running")
		return subcommands.ExitSuccess
	}
	fmt.Fprintf(c.app.out, "Scheduler started, refreshing every %s\n", c.app.scheduler.Interval())
	return subcommands.ExitSuccess
}

type schedulerStopCmd struct{ app *App }

func (*schedulerStopCmd) Name() string             { return "scheduler-stop" }
func (*schedulerStopCmd) Synopsis() string         { return "stop background refreshes" }
func (*schedulerStopCmd) Usage() string            { return "scheduler-stop\n" }
func (*schedulerStopCmd) SetFlags(f *flag.FlagSet) {}

func (c *schedulerStopCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.app.scheduler.Running() {
		fmt.Fprintln(c.app.out, "Scheduler is not running")
		return subcommands.ExitSuccess
	}
	c.app.scheduler.Stop()
	fmt.Fprintln(c.app.out, "Scheduler stopped")
	return subcommands.ExitSuccess
}

type schedulerStatusCmd struct{ app *App }

func (*schedulerStatusCmd) Name() string             { return "scheduler-status" }
func (*schedulerStatusCmd) Synopsis() string         { return "show whether the scheduler is running" }
func (*schedulerStatusCmd) Usage() string            { return "scheduler-status\n" }
func (*schedulerStatusCmd) SetFlags(f *flag.FlagSet) {}

func (c *schedulerStatusCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.app.scheduler.Running() {
		fmt.Fprintf(c.app.out, "Scheduler is running (interval: %s)\n", c.app.scheduler.Interval())
	} else {
		fmt.Fprintln(c.app.out, "Scheduler is stopped")
	}
	return subcommands.ExitSuccess
}

type exitCmd struct{ app *App }

func (*exitCmd) Name() string             { return "exit" }
func (*exitCmd) Synopsis() string         { return "stop the scheduler and leave" }
func (*exitCmd) Usage() string            { return "exit\n" }
func (*exitCmd) SetFlags(f *flag.FlagSet) {}

func (c *exitCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	c.app.shutdown()
	fmt.Fprintln(c.app.out, "Bye")
	return subcommands.ExitSuccess
}
