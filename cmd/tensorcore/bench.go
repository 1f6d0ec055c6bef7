package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/tensorcore/internal/ops"
	"github.com/born-ml/tensorcore/internal/tensor"
)

type benchResult struct {
	Kernel string        `json:"kernel"`
	Iters  int           `json:"iters"`
	Mean   time.Duration `json:"mean_ns"`
	Total  time.Duration `json:"total_ns"`
}

type benchCase struct {
	name string
	run  func() error
}

func benchCmd() *cli.Command {
	var (
		hidden int64
		seq    int64
		heads  int64
		iters  int64
		dtype  string
		seed   int64
	)
	return &cli.Command{
		Name:  "bench",
		Usage: "Time each kernel on random inputs",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "hidden", Usage: "hidden size", Value: 512, Destination: &hidden},
			&cli.Int64Flag{Name: "seq", Usage: "sequence length", Value: 32, Destination: &seq},
			&cli.Int64Flag{Name: "heads", Usage: "attention heads", Value: 8, Destination: &heads},
			&cli.Int64Flag{Name: "iters", Aliases: []string{"n"}, Usage: "iterations per kernel", Value: 20, Destination: &iters},
			&cli.StringFlag{Name: "dtype", Usage: "element type (f32, f16, bf16)", Value: "f32", Destination: &dtype},
			&cli.Int64Flag{Name: "seed", Usage: "random seed", Value: 42, Destination: &seed},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e := envFrom(ctx)
			dt, err := tensor.ParseDataType(dtype)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if !dt.IsFloat() || dt == tensor.Float64 {
				return cli.Exit(fmt.Sprintf("error: kernels run on f32, f16 or bf16, not %s", dt), 1)
			}
			if hidden <= 0 || seq <= 0 || heads <= 0 || hidden%heads != 0 || (hidden/heads)%2 != 0 {
				return cli.Exit("error: hidden must be a positive multiple of heads with an even head dim", 1)
			}

			b, err := newBench(e.exec, dt, int(seq), int(hidden), int(heads), rand.New(rand.NewSource(seed)))
			if err != nil {
				return err
			}
			defer b.release()

			e.log.Info("benchmark", "dtype", dt, "seq", seq, "hidden", hidden, "heads", heads, "iters", iters)
			var results []benchResult
			for _, c := range b.cases() {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := c.run(); err != nil { // warmup
					return fmt.Errorf("%s: %w", c.name, err)
				}
				start := time.Now()
				for range int(iters) {
					if err := c.run(); err != nil {
						return fmt.Errorf("%s: %w", c.name, err)
					}
				}
				total := time.Since(start)
				results = append(results, benchResult{
					Kernel: c.name,
					Iters:  int(iters),
					Mean:   total / time.Duration(max(iters, 1)),
					Total:  total,
				})
			}

			if jsonOutput {
				return printJSON(results)
			}
			fmt.Printf("%-16s %8s %14s\n", "kernel", "iters", "mean")
			for _, r := range results {
				fmt.Printf("%-16s %8d %14s\n", r.Kernel, r.Iters, r.Mean)
			}
			return nil
		},
	}
}

// bench holds the inputs of every benchmarked kernel.
type bench struct {
	exec               *ops.Executor
	ts                 tensors
	x, w, bias, normW  *tensor.Tensor
	out, outT, gateOut *tensor.Tensor
	q, k, v, attn      *tensor.Tensor
	qRot, pos          *tensor.Tensor
	ids, table, emb    *tensor.Tensor
	idx, val           *tensor.Tensor
	scale              float32
}

func newBench(exec *ops.Executor, dt tensor.DataType, seq, hidden, heads int, rng *rand.Rand) (*bench, error) {
	b := &bench{exec: exec}
	dh := hidden / heads
	vocab := 4 * hidden
	b.scale = float32(1 / math.Sqrt(float64(dh)))

	rnd := func(shape ...int) (*tensor.Tensor, error) {
		return b.ts.add(tensor.Rand(shape, dt, 1, rng, tensor.Host))
	}
	empty := func(shape ...int) (*tensor.Tensor, error) {
		return b.ts.add(tensor.New(shape, dt, tensor.Host))
	}
	ids := make([]int64, seq)
	for i := range ids {
		ids[i] = rng.Int63n(int64(vocab))
	}

	var err error
	steps := []func() error{
		func() error { b.x, err = rnd(seq, hidden); return err },
		func() error { b.w, err = rnd(hidden, hidden); return err },
		func() error { b.bias, err = rnd(hidden); return err },
		func() error { b.normW, err = rnd(hidden); return err },
		func() error { b.out, err = empty(seq, hidden); return err },
		func() error { b.outT, err = empty(hidden, seq); return err },
		func() error { b.gateOut, err = empty(seq, hidden); return err },
		func() error { b.q, err = rnd(seq, heads, dh); return err },
		func() error { b.k, err = rnd(seq, heads, dh); return err },
		func() error { b.v, err = rnd(seq, heads, dh); return err },
		func() error { b.attn, err = empty(seq, heads, dh); return err },
		func() error { b.qRot, err = empty(seq, heads, dh); return err },
		func() error { b.pos, err = b.ts.add(tensor.Arange(0, int64(seq), tensor.Host)); return err },
		func() error { b.ids, err = b.ts.add(tensor.FromSlice(tensor.Shape{seq}, ids, tensor.Host)); return err },
		func() error { b.table, err = rnd(vocab, hidden); return err },
		func() error { b.emb, err = empty(seq, hidden); return err },
		func() error { b.idx, err = b.ts.add(tensor.New(tensor.Shape{seq}, tensor.Int64, tensor.Host)); return err },
		func() error { b.val, err = empty(seq); return err },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			b.release()
			return nil, err
		}
	}
	return b, nil
}

func (b *bench) cases() []benchCase {
	return []benchCase{
		{"linear", func() error { return b.exec.Linear(b.out, b.x, b.w, b.bias) }},
		{"rms_norm", func() error { return b.exec.RMSNorm(b.out, b.x, b.normW, 1e-6) }},
		{"rope", func() error { return b.exec.RoPE(b.qRot, b.q, b.pos, 10000) }},
		{"self_attention", func() error { return b.exec.SelfAttention(b.attn, b.q, b.k, b.v, b.scale) }},
		{"swiglu", func() error { return b.exec.SwiGLU(b.gateOut, b.x, b.out) }},
		{"add", func() error { return b.exec.Add(b.gateOut, b.x, b.out) }},
		{"embedding", func() error { return b.exec.Embedding(b.emb, b.ids, b.table) }},
		{"argmax", func() error { return b.exec.ArgMax(b.idx, b.val, b.x) }},
		{"rearrange", func() error {
			xt, err := b.x.Permute(1, 0)
			if err != nil {
				return err
			}
			defer xt.Release()
			return b.exec.Rearrange(b.outT, xt)
		}},
	}
}

func (b *bench) release() { b.ts.release() }
