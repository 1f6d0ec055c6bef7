package main

import "github.com/urfave/cli/v3"

var (
	configFile string
	logLevel   string
	logFormat  string
	device     string
	workers    int64
	jsonOutput bool
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml (default: user config dir)",
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.StringFlag{
			Name:        "device",
			Usage:       "storage device (cpu, webgpu)",
			Value:       "cpu",
			Destination: &device,
		},
		&cli.Int64Flag{
			Name:        "workers",
			Aliases:     []string{"j"},
			Usage:       "kernel worker goroutines (0 = all CPUs, 1 = serial)",
			Destination: &workers,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "print reports as JSON",
			Destination: &jsonOutput,
		},
	}
}
