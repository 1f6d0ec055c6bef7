// Package main provides the tensorcore command line tool.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:   "tensorcore",
		Usage:  "Tensor runtime for transformer inference",
		Flags:  globalFlags(),
		Before: setup,
		After:  teardown,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			versionCmd(),
			infoCmd(),
			checkCmd(),
			benchCmd(),
			layerCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
