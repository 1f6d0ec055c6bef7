package model

import (
	"context"
	"fmt"
	"math"

	"github.com/born-ml/tensorcore/internal/logger"
	"github.com/born-ml/tensorcore/internal/ops"
	"github.com/born-ml/tensorcore/internal/tensor"
)

// Model is a decoder with its KV cache. It is not safe for concurrent use.
type Model struct {
	cfg    Config
	w      *Weights
	dtype  tensor.DataType
	dev    tensor.Device
	maxSeq int
	exec   *ops.Executor
	log    logger.Logger
	caches []*kvCache
	pos    int
}

// Option configures a Model.
type Option func(*Model)

// WithExecutor sets the kernel executor. Defaults to ops.Default().
func WithExecutor(e *ops.Executor) Option {
	return func(m *Model) { m.exec = e }
}

// WithLogger sets the logger for prefill and decode traces.
func WithLogger(l logger.Logger) Option {
	return func(m *Model) { m.log = l }
}

// WithMaxSeqLen caps the KV cache length below max_position_embeddings.
func WithMaxSeqLen(n int) Option {
	return func(m *Model) {
		if n > 0 && n < m.maxSeq {
			m.maxSeq = n
		}
	}
}

// New creates a model over w. Weights stay owned by the caller; the KV cache
// is allocated on the device of the embedding table.
func New(cfg Config, w *Weights, opts ...Option) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(w.Layers) != cfg.NumLayers {
		return nil, fmt.Errorf("model: %d layers bound, config has %d", len(w.Layers), cfg.NumLayers)
	}
	dtype, _ := cfg.DType()
	m := &Model{
		cfg:    cfg,
		w:      w,
		dtype:  dtype,
		dev:    w.Embed.Device(),
		maxSeq: cfg.MaxSeqLen,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.exec == nil {
		m.exec = ops.Default()
	}
	m.caches = make([]*kvCache, cfg.NumLayers)
	for i := range m.caches {
		c, err := newKVCache(m.maxSeq, cfg.NumKVHeads, cfg.HeadDim, dtype, m.dev)
		if err != nil {
			m.Release()
			return nil, fmt.Errorf("allocate kv cache for layer %d: %w", i, err)
		}
		m.caches[i] = c
	}
	return m, nil
}

// Config returns the model hyper-parameters.
func (m *Model) Config() Config { return m.cfg }

// Pos returns the number of cached positions.
func (m *Model) Pos() int { return m.pos }

// Reset forgets all cached positions.
func (m *Model) Reset() { m.pos = 0 }

// Release frees the KV cache. Weights are not released.
func (m *Model) Release() {
	for _, c := range m.caches {
		if c != nil {
			c.release()
		}
	}
	m.caches = nil
}

// scratch tracks per-step temporaries.
type scratch struct {
	m    *Model
	live []*tensor.Tensor
}

func (s *scratch) new(shape ...int) (*tensor.Tensor, error) {
	t, err := tensor.New(shape, s.m.dtype, s.m.dev)
	if err != nil {
		return nil, err
	}
	s.live = append(s.live, t)
	return t, nil
}

func (s *scratch) keep(t *tensor.Tensor, err error) (*tensor.Tensor, error) {
	if err != nil {
		return nil, err
	}
	s.live = append(s.live, t)
	return t, nil
}

func (s *scratch) release() {
	for _, t := range s.live {
		t.Release()
	}
	s.live = s.live[:0]
}

// Forward appends tokens to the sequence and returns the logits [V] of the
// last position. The caller releases the result.
func (m *Model) Forward(ctx context.Context, tokens []int64) (*tensor.Tensor, error) {
	n := len(tokens)
	if n == 0 {
		return nil, tensor.Errorf(tensor.KindShape, "forward", nil, "no tokens")
	}
	if m.pos+n > m.maxSeq {
		return nil, tensor.Errorf(tensor.KindShape, "forward", nil,
			"%d cached + %d new positions exceed max sequence length %d", m.pos, n, m.maxSeq)
	}
	phase := "decode"
	if m.pos == 0 {
		phase = "prefill"
	}
	m.log.Debug("forward", "phase", phase, "pos", m.pos, "tokens", n)

	s := &scratch{m: m}
	defer s.release()

	ids, err := s.keep(tensor.FromSlice(tensor.Shape{n}, tokens, m.dev))
	if err != nil {
		return nil, err
	}
	posIDs, err := s.keep(tensor.Arange(int64(m.pos), int64(m.pos+n), m.dev))
	if err != nil {
		return nil, err
	}
	x, err := s.new(n, m.cfg.HiddenSize)
	if err != nil {
		return nil, err
	}
	if err := m.exec.Embedding(x, ids, m.w.Embed); err != nil {
		return nil, err
	}

	for i := range m.w.Layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := m.layer(s, i, x, posIDs); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
	}

	last, err := s.keep(x.Slice(0, n-1, n))
	if err != nil {
		return nil, err
	}
	normed, err := s.new(1, m.cfg.HiddenSize)
	if err != nil {
		return nil, err
	}
	if err := m.exec.RMSNorm(normed, last, m.w.Norm, m.cfg.RMSNormEps); err != nil {
		return nil, err
	}
	logits, err := tensor.New(tensor.Shape{m.cfg.VocabSize}, m.dtype, m.dev)
	if err != nil {
		return nil, err
	}
	row, err := s.keep(logits.View(1, m.cfg.VocabSize))
	if err == nil {
		err = m.exec.Linear(row, normed, m.w.LMHead, nil)
	}
	if err != nil {
		logits.Release()
		return nil, err
	}
	m.pos += n
	return logits, nil
}

// layer runs one decoder block in place on x [L, hs].
func (m *Model) layer(s *scratch, i int, x, posIDs *tensor.Tensor) error {
	cfg, w, c := m.cfg, &m.w.Layers[i], m.caches[i]
	n, hs := x.Shape()[0], cfg.HiddenSize
	nh, nkvh, dh := cfg.NumHeads, cfg.NumKVHeads, cfg.HeadDim

	h, err := s.new(n, hs)
	if err != nil {
		return err
	}
	if err := m.exec.RMSNorm(h, x, w.AttnNorm, cfg.RMSNormEps); err != nil {
		return err
	}

	// Projections, then rotary embedding on q and k.
	project := func(weight, bias *tensor.Tensor, heads int, rotate bool) (*tensor.Tensor, error) {
		flat, err := s.new(n, heads*dh)
		if err != nil {
			return nil, err
		}
		if err := m.exec.Linear(flat, h, weight, bias); err != nil {
			return nil, err
		}
		shaped, err := s.keep(flat.View(n, heads, dh))
		if err != nil || !rotate {
			return shaped, err
		}
		rot, err := s.new(n, heads, dh)
		if err != nil {
			return nil, err
		}
		return rot, m.exec.RoPE(rot, shaped, posIDs, cfg.RopeTheta)
	}
	q, err := project(w.Q, w.QBias, nh, true)
	if err != nil {
		return err
	}
	k, err := project(w.K, w.KBias, nkvh, true)
	if err != nil {
		return err
	}
	v, err := project(w.V, w.VBias, nkvh, false)
	if err != nil {
		return err
	}
	if err := c.store(m.exec, m.pos, k, v); err != nil {
		return err
	}
	kAll, vAll, err := c.prefix(m.pos + n)
	if err != nil {
		return err
	}
	s.live = append(s.live, kAll, vAll)

	attn, err := s.new(n, nh, dh)
	if err != nil {
		return err
	}
	scale := float32(1 / math.Sqrt(float64(dh)))
	if err := m.exec.SelfAttention(attn, q, kAll, vAll, scale); err != nil {
		return err
	}
	attnFlat, err := s.keep(attn.View(n, nh*dh))
	if err != nil {
		return err
	}
	o, err := s.new(n, hs)
	if err != nil {
		return err
	}
	if err := m.exec.Linear(o, attnFlat, w.O, nil); err != nil {
		return err
	}
	if err := m.exec.Add(x, x, o); err != nil {
		return err
	}

	// Feed-forward block.
	if err := m.exec.RMSNorm(h, x, w.MLPNorm, cfg.RMSNormEps); err != nil {
		return err
	}
	gate, err := s.new(n, cfg.Intermediate)
	if err != nil {
		return err
	}
	up, err := s.new(n, cfg.Intermediate)
	if err != nil {
		return err
	}
	if err := m.exec.Linear(gate, h, w.Gate, nil); err != nil {
		return err
	}
	if err := m.exec.Linear(up, h, w.Up, nil); err != nil {
		return err
	}
	if err := m.exec.SwiGLU(gate, gate, up); err != nil {
		return err
	}
	if err := m.exec.Linear(o, gate, w.Down, nil); err != nil {
		return err
	}
	return m.exec.Add(x, x, o)
}

// Next runs Forward and returns the arg-max token.
func (m *Model) Next(ctx context.Context, tokens []int64) (int64, error) {
	logits, err := m.Forward(ctx, tokens)
	if err != nil {
		return 0, err
	}
	defer logits.Release()
	return m.argmax(logits)
}

func (m *Model) argmax(logits *tensor.Tensor) (int64, error) {
	idx, err := tensor.New(tensor.Shape{1}, tensor.Int64, m.dev)
	if err != nil {
		return 0, err
	}
	defer idx.Release()
	val, err := tensor.New(tensor.Shape{1}, m.dtype, m.dev)
	if err != nil {
		return 0, err
	}
	defer val.Release()
	if err := m.exec.ArgMax(idx, val, logits); err != nil {
		return 0, err
	}
	host, err := idx.To(tensor.Host)
	if err != nil {
		return 0, err
	}
	defer host.Release()
	ids, err := tensor.Data[int64](host)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// Generate greedily extends prompt by up to maxNew tokens, stopping after
// the end-of-sequence token. The cache is reset first.
func (m *Model) Generate(ctx context.Context, prompt []int64, maxNew int) ([]int64, error) {
	m.Reset()
	var out []int64
	next := prompt
	for len(out) < maxNew {
		tok, err := m.Next(ctx, next)
		if err != nil {
			return out, err
		}
		out = append(out, tok)
		if tok == m.cfg.EOS || m.pos >= m.maxSeq {
			break
		}
		next = []int64{tok}
	}
	m.log.Info("generate", "prompt", len(prompt), "new", len(out), "pos", m.pos)
	return out, nil
}
