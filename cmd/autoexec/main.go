// Command autoexec is a one-shot utility that finds a running container
// whose name starts with a given prefix and execs a shell into it, for
// developers debugging a network engine run by hand. It is explicitly
// outside the engine's core: it has no dependency on pkg/containernet,
// only on pkg/dockerapi's Docker Engine API and CLI modes.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/urfave/cli"

	"github.com/dauaaa/containernet/pkg/dockerapi"
	"github.com/dauaaa/containernet/pkg/logging"
)

func main() {
	app := cli.NewApp()
	app.Name = "autoexec"
	app.Usage = "find a container by name prefix and exec a shell into it"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "prefix", Usage: "container name prefix to match"},
		cli.BoolFlag{Name: "tty", Usage: "allocate a pseudo-tty (-t)"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		logging.S().Errorw("autoexec failed", "error", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	prefix := c.String("prefix")
	if prefix == "" {
		return cli.NewExitError("autoexec: --prefix is required", 1)
	}

	shell := []string{"/bin/sh"}
	if c.NArg() > 0 {
		shell = c.Args()
	}

	ctx := context.Background()

	apiClient, err := dockerapi.NewAPIClient()
	if err != nil {
		return fmt.Errorf("autoexec: %w", err)
	}
	defer apiClient.Close()

	id, name, err := findContainerByPrefix(ctx, apiClient, prefix)
	if err != nil {
		return err
	}
	logging.S().Infow("execing into container", "name", name, "id", id)

	dcli := dockerapi.NewCLI()
	return dcli.ContainerExecInteractive(ctx, id, c.Bool("tty"), shell)
}

// findContainerByPrefix lists running containers and returns the single
// one whose name starts with prefix, erroring if none or more than one
// matches (a prefix match across several containers is ambiguous).
func findContainerByPrefix(ctx context.Context, apiClient *dockerapi.APIClient, prefix string) (id, name string, err error) {
	containers, err := apiClient.ContainerList(ctx, types.ContainerListOptions{
		Filters: filters.NewArgs(),
	})
	if err != nil {
		return "", "", fmt.Errorf("autoexec: list containers: %w", err)
	}
	return matchByPrefix(containers, prefix)
}

// matchByPrefix is findContainerByPrefix's pure matching half, split out
// so the ambiguous/none-found logic can be tested without a daemon.
func matchByPrefix(containers []types.Container, prefix string) (id, name string, err error) {
	var matches []types.Container
	for _, ctr := range containers {
		for _, n := range ctr.Names {
			trimmed := strings.TrimPrefix(n, "/")
			if strings.HasPrefix(trimmed, prefix) {
				matches = append(matches, ctr)
				break
			}
		}
	}

	switch len(matches) {
	case 0:
		return "", "", fmt.Errorf("autoexec: no running container matches prefix %q", prefix)
	case 1:
		n := strings.TrimPrefix(matches[0].Names[0], "/")
		return matches[0].ID, n, nil
	default:
		return "", "", fmt.Errorf("autoexec: prefix %q matches %d containers, be more specific", prefix, len(matches))
	}
}
