package main

import (
	"context"
	"fmt"
	"runtime"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/tensorcore/internal/backend/cpu"
	"github.com/born-ml/tensorcore/internal/device/webgpu"
	"github.com/born-ml/tensorcore/internal/parallel"
)

type infoReport struct {
	Version  versionInfo     `json:"version"`
	OS       string          `json:"os"`
	CPU      cpu.Features    `json:"cpu"`
	Parallel parallel.Config `json:"parallel"`
	Device   string          `json:"device"`
	WebGPU   bool            `json:"webgpu_available"`
	Config   string          `json:"config_file"`
}

func infoCmd() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Show CPU features, parallelism and device availability",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e := envFrom(ctx)
			report := infoReport{
				Version:  resolveVersion(),
				OS:       runtime.GOOS + "/" + runtime.GOARCH,
				CPU:      cpu.DetectFeatures(),
				Parallel: e.cfg.ParallelConfig(),
				Device:   e.dev.String(),
				WebGPU:   e.gpu != nil || webgpu.IsAvailable(),
				Config:   configFile,
			}
			if report.Config == "" {
				report.Config = "(none)"
			}
			if jsonOutput {
				return printJSON(report)
			}
			fmt.Printf("version:  %s (%s)\n", report.Version.Version, report.Version.Go)
			fmt.Printf("os:       %s\n", report.OS)
			fmt.Printf("cpu:      %s\n", report.CPU)
			fmt.Printf("parallel: enabled=%t workers=%d min_chunk=%d\n",
				report.Parallel.Enabled, report.Parallel.NumWorkers, report.Parallel.MinChunkSize)
			fmt.Printf("device:   %s\n", report.Device)
			fmt.Printf("webgpu:   %t\n", report.WebGPU)
			return nil
		},
	}
}
