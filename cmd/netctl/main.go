// Command netctl is a small front-end that exercises the engine
// end-to-end: read a network-plan TOML file, bring up every container it
// describes, wait for them to finish (or time out), tear the network
// down, and report a colorized pass/fail summary. It is a demonstration
// harness, not part of the core engine.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/logrusorgru/aurora"
	"github.com/mitchellh/go-wordwrap"
	"github.com/urfave/cli"

	"github.com/dauaaa/containernet/pkg/cancel"
	"github.com/dauaaa/containernet/pkg/containernet"
	"github.com/dauaaa/containernet/pkg/logging"
)

func main() {
	app := cli.NewApp()
	app.Name = "netctl"
	app.Usage = "bring up, wait on, and tear down a container network from a plan file"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug|info|warn|error"},
	}
	app.Before = func(c *cli.Context) error {
		logging.SetLevel(logging.ParseLevel(c.String("log-level")))
		cancel.InstallSignalHandler()
		return nil
	}
	app.Commands = []cli.Command{
		{
			Name:      "up",
			Usage:     "bring up, wait, and tear down the network described by a plan file",
			ArgsUsage: "<plan.toml>",
			Action:    up,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logging.S().Errorw("netctl failed", "error", err)
		os.Exit(1)
	}
}

func up(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.NewExitError("netctl: up requires exactly one <plan.toml> argument", 1)
	}

	plan, err := loadPlan(c.Args().Get(0))
	if err != nil {
		return err
	}

	waitTimeout, err := plan.waitTimeoutDuration()
	if err != nil {
		return err
	}

	engine := containernet.NewEngine(plan.NetworkName, plan.DockerfileWriteDir, plan.NetworkArgs...)
	names := make([]string, 0, len(plan.Containers))
	for _, cp := range plan.Containers {
		spec, err := resolveContainerSpec(plan.Defaults, cp)
		if err != nil {
			return err
		}
		if err := engine.AddContainer(spec); err != nil {
			return fmt.Errorf("netctl: %w", err)
		}
		names = append(names, spec.Name)
	}

	ctx := context.Background()
	logging.S().Infow("bringing up network", "network", plan.NetworkName, "containers", names)
	if err := engine.RunAll(ctx); err != nil {
		return fmt.Errorf("netctl: bring up: %w", err)
	}

	waitErr := engine.WaitWithTimeoutAll(ctx, plan.TerminateOnFailure, waitTimeout)

	var compileErr error
	if waitErr != nil {
		compileErr = engine.ErrorCompilation()
	}

	teardownErr := engine.TerminateAll(context.Background())

	printSummary(names, waitErr)

	if waitErr != nil {
		msg := waitErr.Error()
		if compileErr != nil {
			msg = fmt.Sprintf("%s\n%s", msg, compileErr.Error())
		}
		return cli.NewExitError(wordwrap.WrapString(msg, 100), 1)
	}
	if teardownErr != nil {
		return fmt.Errorf("netctl: teardown: %w", teardownErr)
	}
	return nil
}

func printSummary(names []string, runErr error) {
	if runErr == nil {
		for _, name := range names {
			fmt.Println(logging.PassFail(name, true))
		}
		return
	}
	fmt.Println(aurora.Sprintf(aurora.Red("network run failed: %s"), runErr))
}
