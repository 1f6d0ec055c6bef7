// Package ops is the kernel dispatch layer. Every entry validates its tensor
// arguments in a fixed order (device, contiguity, dtype, shape) and only then
// hands them to the backend registered for their device type.
package ops

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/born-ml/tensorcore/internal/backend/cpu"
	"github.com/born-ml/tensorcore/internal/logger"
	"github.com/born-ml/tensorcore/internal/parallel"
	"github.com/born-ml/tensorcore/internal/tensor"
)

// Backend is a kernel library for one device type. Arguments reaching a
// Backend have passed validation; it only selects the routine for the
// element type.
type Backend interface {
	Name() string
	Add(out, a, b *tensor.Tensor) error
	ArgMax(maxIdx, maxVal, vals *tensor.Tensor) error
	Embedding(out, indices, weight *tensor.Tensor) error
	Linear(out, in, weight, bias *tensor.Tensor) error
	Rearrange(out, in *tensor.Tensor) error
	RMSNorm(out, in, weight *tensor.Tensor, eps float32) error
	RoPE(out, in, pos *tensor.Tensor, theta float32) error
	SelfAttention(out, q, k, v *tensor.Tensor, scale float32) error
	SwiGLU(out, gate, up *tensor.Tensor) error
}

// Executor validates kernel calls and routes them to a backend.
type Executor struct {
	backends map[tensor.DeviceType]Backend
	log      logger.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger used for dispatch and validation traces.
func WithLogger(l logger.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// WithBackend registers b for device type dt, replacing any previous one.
func WithBackend(dt tensor.DeviceType, b Backend) Option {
	return func(e *Executor) { e.backends[dt] = b }
}

// WithParallel replaces the CPU backend with one using cfg.
func WithParallel(cfg parallel.Config) Option {
	return WithBackend(tensor.CPU, cpu.New(cfg))
}

// New creates an Executor with the CPU backend registered.
func New(opts ...Option) *Executor {
	e := &Executor{
		backends: map[tensor.DeviceType]Backend{
			tensor.CPU: cpu.New(parallel.DefaultConfig()),
		},
		log: logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log.Enabled(slog.LevelDebug) {
		for dt, b := range e.backends {
			args := []any{"device", dt, "backend", b.Name()}
			if c, ok := b.(*cpu.CPUBackend); ok {
				args = append(args, "features", c.Features().String(), "workers", c.Parallel().NumWorkers)
			}
			e.log.Debug("backend registered", args...)
		}
	}
	return e
}

var (
	defaultOnce sync.Once
	defaultExec *Executor
)

// Default returns the process-wide executor used by the package-level
// functions.
func Default() *Executor {
	defaultOnce.Do(func() {
		defaultExec = New()
	})
	return defaultExec
}

// Backend returns the backend registered for dt.
func (e *Executor) Backend(dt tensor.DeviceType) (Backend, bool) {
	b, ok := e.backends[dt]
	return b, ok
}

// arg is a named kernel argument.
type arg struct {
	name     string
	t        *tensor.Tensor
	optional bool
}

func req(name string, t *tensor.Tensor) arg { return arg{name: name, t: t} }
func opt(name string, t *tensor.Tensor) arg { return arg{name: name, t: t, optional: true} }

// call collects the validation state of one kernel invocation.
type call struct {
	op      string
	args    []arg
	missing []string
}

func newCall(op string, args ...arg) *call {
	c := &call{op: op}
	for _, a := range args {
		switch {
		case a.t != nil:
			c.args = append(c.args, a)
		case !a.optional:
			c.missing = append(c.missing, a.name)
		}
	}
	return c
}

// present fails for required arguments that were nil.
func (c *call) present() error {
	if len(c.missing) > 0 {
		return c.fail(tensor.KindShape, c.missing, "required tensor argument is nil")
	}
	return nil
}

func (c *call) fail(kind tensor.Kind, names []string, format string, a ...any) error {
	return &tensor.Error{Kind: kind, Op: c.op, Tensors: names, Msg: fmt.Sprintf(format, a...)}
}

// sameDevice checks that all arguments live on the device of the first.
func (c *call) sameDevice() error {
	first := c.args[0]
	for _, a := range c.args[1:] {
		if a.t.Device() != first.t.Device() {
			return c.fail(tensor.KindDeviceMismatch, []string{first.name, a.name},
				"%s is on %s, %s is on %s", first.name, first.t.Device(), a.name, a.t.Device())
		}
	}
	return nil
}

// contiguous checks the named arguments, or all of them when none are named.
func (c *call) contiguous(names ...string) error {
	for _, a := range c.args {
		if len(names) > 0 && !contains(names, a.name) {
			continue
		}
		if !a.t.IsContiguous() {
			return c.fail(tensor.KindContiguity, []string{a.name},
				"%s with shape %v and strides %v is not contiguous", a.name, a.t.Shape(), a.t.Strides())
		}
	}
	return nil
}

// sameDType checks that the named arguments share the dtype of the first.
func (c *call) sameDType(names ...string) error {
	var ref *arg
	for i := range c.args {
		a := &c.args[i]
		if !contains(names, a.name) {
			continue
		}
		if ref == nil {
			ref = a
			continue
		}
		if a.t.DType() != ref.t.DType() {
			return c.fail(tensor.KindDtypeMismatch, []string{ref.name, a.name},
				"%s is %s, %s is %s", ref.name, ref.t.DType(), a.name, a.t.DType())
		}
	}
	return nil
}

func (c *call) dtypeIn(name string, t *tensor.Tensor, allowed ...tensor.DataType) error {
	for _, dt := range allowed {
		if t.DType() == dt {
			return nil
		}
	}
	return c.fail(tensor.KindDtypeMismatch, []string{name}, "%s is %s, want one of %v", name, t.DType(), allowed)
}

func (c *call) rank(name string, t *tensor.Tensor, ndim int) error {
	if t.NDim() != ndim {
		return c.fail(tensor.KindShape, []string{name}, "%s must be %dD, got shape %v", name, ndim, t.Shape())
	}
	return nil
}

func (c *call) dim(name string, t *tensor.Tensor, axis, want int, what string) error {
	if got := t.Shape()[axis]; got != want {
		return c.fail(tensor.KindShape, []string{name}, "%s dim %d is %d, want %d (%s)", name, axis, got, want, what)
	}
	return nil
}

func (c *call) sameShape(a, b string, at, bt *tensor.Tensor) error {
	if !at.Shape().Equal(bt.Shape()) {
		return c.fail(tensor.KindShape, []string{a, b}, "%s shape %v != %s shape %v", a, at.Shape(), b, bt.Shape())
	}
	return nil
}

// run executes the presence and device checks followed by checks, in order, resolves the backend for the
// arguments' device and invokes fn.
func (e *Executor) run(c *call, fn func(Backend) error, checks ...func() error) error {
	checks = append([]func() error{c.present, c.sameDevice}, checks...)
	for _, check := range checks {
		if err := check(); err != nil {
			e.log.Debug("validation failed", "op", c.op, "error", err)
			return err
		}
	}
	dev := c.args[0].t.Device()
	b, ok := e.backends[dev.Type]
	if !ok {
		err := c.fail(tensor.KindUnsupportedDevice, nil, "no kernel backend for %s", dev)
		e.log.Debug("validation failed", "op", c.op, "error", err)
		return err
	}
	if e.log.Enabled(slog.LevelDebug) {
		e.log.Debug("dispatch", "op", c.op, "backend", b.Name(), "dtype", c.args[0].t.DType(), "shapes", c.shapes())
	}
	return fn(b)
}

func (c *call) shapes() []string {
	out := make([]string, len(c.args))
	for i, a := range c.args {
		out[i] = fmt.Sprintf("%s%v", a.name, []int(a.t.Shape()))
	}
	return out
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
