package model

import (
	"github.com/born-ml/tensorcore/internal/ops"
	"github.com/born-ml/tensorcore/internal/tensor"
)

// kvCache holds the rotated keys and the values of one layer, laid out as
// [maxSeq, nkvh, dh]. Rows past the model position are stale and never read.
type kvCache struct {
	k, v *tensor.Tensor
}

func newKVCache(maxSeq, nkvh, dh int, dtype tensor.DataType, dev tensor.Device) (*kvCache, error) {
	k, err := tensor.New(tensor.Shape{maxSeq, nkvh, dh}, dtype, dev)
	if err != nil {
		return nil, err
	}
	v, err := tensor.New(tensor.Shape{maxSeq, nkvh, dh}, dtype, dev)
	if err != nil {
		k.Release()
		return nil, err
	}
	return &kvCache{k: k, v: v}, nil
}

// store writes k and v ([L, nkvh, dh]) at rows [pos, pos+L).
func (c *kvCache) store(exec *ops.Executor, pos int, k, v *tensor.Tensor) error {
	for _, p := range []struct{ dst, src *tensor.Tensor }{{c.k, k}, {c.v, v}} {
		rows, err := p.dst.Slice(0, pos, pos+p.src.Shape()[0])
		if err != nil {
			return err
		}
		err = exec.Rearrange(rows, p.src)
		rows.Release()
		if err != nil {
			return err
		}
	}
	return nil
}

// prefix returns views over rows [0, n). The caller releases both.
func (c *kvCache) prefix(n int) (k, v *tensor.Tensor, err error) {
	if k, err = c.k.Slice(0, 0, n); err != nil {
		return nil, nil, err
	}
	if v, err = c.v.Slice(0, 0, n); err != nil {
		k.Release()
		return nil, nil, err
	}
	return k, v, nil
}

func (c *kvCache) release() {
	c.k.Release()
	c.v.Release()
}
