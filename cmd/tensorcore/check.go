package main

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/tensorcore/internal/ops"
	"github.com/born-ml/tensorcore/internal/tensor"
)

// property is one behavioral check run against the live kernels.
type property struct {
	name string
	run  func(exec *ops.Executor, dev tensor.Device) error
}

type checkResult struct {
	Name  string `json:"name"`
	Pass  bool   `json:"pass"`
	Error string `json:"error,omitempty"`
}

func properties() []property {
	return []property{
		{"numel preserved by view chains", checkNumel},
		{"load then rearrange round trip", checkRoundTrip},
		{"argmax first occurrence wins", checkArgMax},
		{"embedding gathers rows", checkEmbedding},
		{"rms_norm reference row", checkRMSNorm},
		{"swiglu zero gate", checkSwiGLU},
		{"self_attention single position returns v", checkSinglePosition},
		{"self_attention causal mask", checkCausal},
		{"identity permute keeps layout", checkIdentityPermute},
		{"device round trip", checkDevice},
	}
}

func runChecks(exec *ops.Executor, dev tensor.Device) []checkResult {
	var results []checkResult
	for _, p := range properties() {
		r := checkResult{Name: p.name, Pass: true}
		if err := p.run(exec, dev); err != nil {
			r.Pass = false
			r.Error = err.Error()
		}
		results = append(results, r)
	}
	return results
}

func checkCmd() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Verify kernel and view engine properties",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e := envFrom(ctx)
			results := runChecks(e.exec, e.dev)
			failed := 0
			for _, r := range results {
				if !r.Pass {
					failed++
				}
			}
			if jsonOutput {
				if err := printJSON(results); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					status := "PASS"
					if !r.Pass {
						status = "FAIL"
					}
					fmt.Printf("%s  %s", status, r.Name)
					if r.Error != "" {
						fmt.Printf(": %s", r.Error)
					}
					fmt.Println()
				}
			}
			e.log.Info("check finished", "properties", len(results), "failed", failed)
			if failed > 0 {
				return cli.Exit(fmt.Sprintf("%d of %d properties failed", failed, len(results)), 1)
			}
			return nil
		},
	}
}

// tensors tracks allocations of a single check.
type tensors []*tensor.Tensor

func (ts *tensors) add(t *tensor.Tensor, err error) (*tensor.Tensor, error) {
	if err == nil {
		*ts = append(*ts, t)
	}
	return t, err
}

func (ts *tensors) release() {
	for _, t := range *ts {
		t.Release()
	}
}

func floats(ts *tensors, shape tensor.Shape, vals ...float32) (*tensor.Tensor, error) {
	return ts.add(tensor.FromSlice(shape, vals, tensor.Host))
}

func expectFloats(t *tensor.Tensor, want []float32, tol float64) error {
	got, err := tensor.ToFloat32(t)
	if err != nil {
		return err
	}
	if len(got) != len(want) {
		return fmt.Errorf("got %d values, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > tol {
			return fmt.Errorf("element %d: got %g, want %g", i, got[i], want[i])
		}
	}
	return nil
}

func checkNumel(_ *ops.Executor, dev tensor.Device) error {
	var ts tensors
	defer ts.release()
	x, err := ts.add(tensor.New(tensor.Shape{2, 3, 4}, tensor.Float32, dev))
	if err != nil {
		return err
	}
	v, err := ts.add(x.View(6, 4))
	if err != nil {
		return err
	}
	p, err := ts.add(v.Permute(1, 0))
	if err != nil {
		return err
	}
	if x.NumElements() != v.NumElements() || v.NumElements() != p.NumElements() {
		return fmt.Errorf("numel changed: %d, %d, %d", x.NumElements(), v.NumElements(), p.NumElements())
	}
	s, err := ts.add(p.Slice(1, 2, 5))
	if err != nil {
		return err
	}
	if s.NumElements() != 12 {
		return fmt.Errorf("slice numel %d, want 12", s.NumElements())
	}
	return nil
}

func checkRoundTrip(exec *ops.Executor, _ tensor.Device) error {
	var ts tensors
	defer ts.release()
	src := make([]byte, 4*5*2)
	for i := range src {
		src[i] = byte(i * 7)
	}
	a, err := ts.add(tensor.New(tensor.Shape{4, 5}, tensor.BFloat16, tensor.Host))
	if err != nil {
		return err
	}
	if err := a.Load(src); err != nil {
		return err
	}
	b, err := ts.add(tensor.New(tensor.Shape{4, 5}, tensor.BFloat16, tensor.Host))
	if err != nil {
		return err
	}
	if err := exec.Rearrange(b, a); err != nil {
		return err
	}
	got, err := b.Bytes()
	if err != nil {
		return err
	}
	if !bytes.Equal(got, src) {
		return fmt.Errorf("bytes differ after rearrange")
	}
	return nil
}

func checkArgMax(exec *ops.Executor, _ tensor.Device) error {
	var ts tensors
	defer ts.release()
	vals, err := floats(&ts, tensor.Shape{4}, 3, 7, 2, 7)
	if err != nil {
		return err
	}
	idx, err := ts.add(tensor.New(tensor.Shape{1}, tensor.Int64, tensor.Host))
	if err != nil {
		return err
	}
	val, err := ts.add(tensor.New(tensor.Shape{1}, tensor.Float32, tensor.Host))
	if err != nil {
		return err
	}
	if err := exec.ArgMax(idx, val, vals); err != nil {
		return err
	}
	i, err := tensor.Data[int64](idx)
	if err != nil {
		return err
	}
	if i[0] != 1 {
		return fmt.Errorf("max_idx %d, want 1", i[0])
	}
	return expectFloats(val, []float32{7}, 0)
}

func checkEmbedding(exec *ops.Executor, _ tensor.Device) error {
	var ts tensors
	defer ts.release()
	w, err := floats(&ts, tensor.Shape{3, 2}, 1, 2, 3, 4, 5, 6)
	if err != nil {
		return err
	}
	idx, err := ts.add(tensor.FromSlice(tensor.Shape{2}, []int64{2, 0}, tensor.Host))
	if err != nil {
		return err
	}
	out, err := ts.add(tensor.New(tensor.Shape{2, 2}, tensor.Float32, tensor.Host))
	if err != nil {
		return err
	}
	if err := exec.Embedding(out, idx, w); err != nil {
		return err
	}
	return expectFloats(out, []float32{5, 6, 1, 2}, 0)
}

func checkRMSNorm(exec *ops.Executor, _ tensor.Device) error {
	var ts tensors
	defer ts.release()
	x, err := floats(&ts, tensor.Shape{1, 2}, 3, 4)
	if err != nil {
		return err
	}
	w, err := floats(&ts, tensor.Shape{2}, 1, 1)
	if err != nil {
		return err
	}
	out, err := ts.add(tensor.New(tensor.Shape{1, 2}, tensor.Float32, tensor.Host))
	if err != nil {
		return err
	}
	if err := exec.RMSNorm(out, x, w, 0); err != nil {
		return err
	}
	rms := math.Sqrt(12.5)
	return expectFloats(out, []float32{float32(3 / rms), float32(4 / rms)}, 1e-6)
}

func checkSwiGLU(exec *ops.Executor, _ tensor.Device) error {
	var ts tensors
	defer ts.release()
	gate, err := floats(&ts, tensor.Shape{1}, 0)
	if err != nil {
		return err
	}
	up, err := floats(&ts, tensor.Shape{1}, 5)
	if err != nil {
		return err
	}
	out, err := ts.add(tensor.New(tensor.Shape{1}, tensor.Float32, tensor.Host))
	if err != nil {
		return err
	}
	if err := exec.SwiGLU(out, gate, up); err != nil {
		return err
	}
	return expectFloats(out, []float32{0}, 0)
}

func checkSinglePosition(exec *ops.Executor, _ tensor.Device) error {
	var ts tensors
	defer ts.release()
	q, err := floats(&ts, tensor.Shape{1, 1, 2}, 9, -4)
	if err != nil {
		return err
	}
	k, err := floats(&ts, tensor.Shape{1, 1, 2}, 0.5, 3)
	if err != nil {
		return err
	}
	v, err := floats(&ts, tensor.Shape{1, 1, 3}, 1.25, -2, 8)
	if err != nil {
		return err
	}
	out, err := ts.add(tensor.New(tensor.Shape{1, 1, 3}, tensor.Float32, tensor.Host))
	if err != nil {
		return err
	}
	if err := exec.SelfAttention(out, q, k, v, 0.7); err != nil {
		return err
	}
	return expectFloats(out, []float32{1.25, -2, 8}, 0)
}

// checkCausal perturbs keys and values past each query's position and
// expects identical output.
func checkCausal(exec *ops.Executor, _ tensor.Device) error {
	var ts tensors
	defer ts.release()
	const seq, nh, nkvh, dh = 3, 2, 1, 2
	q, err := floats(&ts, tensor.Shape{seq, nh, dh}, 1, 0, 0, 1, 1, 1, -1, 1, 0.5, 2, 2, -1)
	if err != nil {
		return err
	}
	run := func(last float32) ([]float32, error) {
		k, err := floats(&ts, tensor.Shape{seq, nkvh, dh}, 1, 2, 3, 4, last, last)
		if err != nil {
			return nil, err
		}
		v, err := floats(&ts, tensor.Shape{seq, nkvh, dh}, 1, 1, 2, 2, last, -last)
		if err != nil {
			return nil, err
		}
		out, err := ts.add(tensor.New(tensor.Shape{seq, nh, dh}, tensor.Float32, tensor.Host))
		if err != nil {
			return nil, err
		}
		if err := exec.SelfAttention(out, q, k, v, 0.5); err != nil {
			return nil, err
		}
		return tensor.ToFloat32(out)
	}
	a, err := run(5)
	if err != nil {
		return err
	}
	b, err := run(-50)
	if err != nil {
		return err
	}
	// Queries 0 and 1 cannot see position 2.
	for i := 0; i < 2*nh*dh; i++ {
		if a[i] != b[i] {
			return fmt.Errorf("element %d changed from %g to %g when a future key moved", i, a[i], b[i])
		}
	}
	return nil
}

func checkIdentityPermute(_ *ops.Executor, dev tensor.Device) error {
	var ts tensors
	defer ts.release()
	x, err := ts.add(tensor.New(tensor.Shape{4, 3, 2}, tensor.Float16, dev))
	if err != nil {
		return err
	}
	s, err := ts.add(x.Slice(0, 1, 3))
	if err != nil {
		return err
	}
	p, err := ts.add(s.Permute(0, 1, 2))
	if err != nil {
		return err
	}
	if !p.Shape().Equal(s.Shape()) || fmt.Sprint(p.Strides()) != fmt.Sprint(s.Strides()) || p.Offset() != s.Offset() {
		return fmt.Errorf("layout changed: %s vs %s", p.Info(), s.Info())
	}
	return nil
}

func checkDevice(_ *ops.Executor, dev tensor.Device) error {
	var ts tensors
	defer ts.release()
	x, err := floats(&ts, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	if err != nil {
		return err
	}
	xt, err := ts.add(x.Permute(1, 0))
	if err != nil {
		return err
	}
	moved, err := ts.add(xt.To(dev))
	if err != nil {
		return err
	}
	back, err := ts.add(moved.To(tensor.Host))
	if err != nil {
		return err
	}
	return expectFloats(back, []float32{1, 4, 2, 5, 3, 6}, 0)
}
