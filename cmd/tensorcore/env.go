package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/born-ml/tensorcore/internal/config"
	"github.com/born-ml/tensorcore/internal/device/webgpu"
	"github.com/born-ml/tensorcore/internal/logger"
	"github.com/born-ml/tensorcore/internal/ops"
	"github.com/born-ml/tensorcore/internal/tensor"
)

// env is the state shared by every subcommand.
type env struct {
	cfg  config.Config
	log  logger.Logger
	exec *ops.Executor
	dev  tensor.Device
	gpu  *webgpu.Runtime
}

type envKey struct{}

func envFrom(ctx context.Context) *env {
	if e, ok := ctx.Value(envKey{}).(*env); ok {
		return e
	}
	return &env{cfg: config.Default(), log: logger.Nop(), exec: ops.Default(), dev: tensor.Host}
}

// setup loads the config file, applies explicitly set flags over it and
// builds the logger and executor.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := configFile
	if !cmd.IsSet("config") {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return ctx, err
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = logLevel
	}
	if cmd.IsSet("log-format") {
		cfg.LogFormat = logFormat
	}
	if cmd.IsSet("device") {
		cfg.Device = device
	}
	if cmd.IsSet("workers") {
		cfg.Parallel.Workers = int(workers)
		enabled := workers != 1
		cfg.Parallel.Enabled = &enabled
	}
	if err := cfg.Validate(); err != nil {
		return ctx, err
	}

	log, err := logger.Open(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return ctx, err
	}
	if cfg.HostMemoryLimit > 0 {
		tensor.RegisterRuntime(tensor.NewHostRuntime(cfg.HostMemoryLimit))
		log.Debug("host memory limit", "bytes", cfg.HostMemoryLimit)
	}

	e := &env{
		cfg:  cfg,
		log:  log,
		exec: ops.New(ops.WithLogger(log), ops.WithParallel(cfg.ParallelConfig())),
		dev:  tensor.Host,
	}
	if dt := cfg.DeviceType(); dt != tensor.CPU {
		e.dev, e.gpu = openDevice(log, dt)
	}
	ctx = logger.WithContext(ctx, log)
	return context.WithValue(ctx, envKey{}, e), nil
}

// openDevice registers the runtime for dt, falling back to host storage.
func openDevice(log logger.Logger, dt tensor.DeviceType) (tensor.Device, *webgpu.Runtime) {
	if dt != tensor.WebGPU {
		log.Warn("no runtime for device, using host storage", "device", dt)
		return tensor.Host, nil
	}
	rt, err := webgpu.Register()
	if err != nil {
		log.Warn("webgpu unavailable, using host storage", "error", err)
		return tensor.Host, nil
	}
	log.Info("webgpu runtime registered")
	return tensor.Device{Type: tensor.WebGPU}, rt
}

func teardown(ctx context.Context, _ *cli.Command) error {
	if e, ok := ctx.Value(envKey{}).(*env); ok && e.gpu != nil {
		e.gpu.Release()
	}
	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = fmt.Println(string(data))
	return err
}
