// Package model implements a Qwen2-style decoder on top of the kernel
// executor: HuggingFace config parsing, weight binding, a per-layer KV cache
// and greedy decoding.
package model

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"

	"github.com/born-ml/tensorcore/internal/tensor"
)

// Config holds the decoder hyper-parameters.
type Config struct {
	NumLayers     int     `json:"num_hidden_layers"`
	HiddenSize    int     `json:"hidden_size"`
	NumHeads      int     `json:"num_attention_heads"`
	NumKVHeads    int     `json:"num_key_value_heads"`
	HeadDim       int     `json:"head_dim"`
	Intermediate  int     `json:"intermediate_size"`
	MaxSeqLen     int     `json:"max_position_embeddings"`
	VocabSize     int     `json:"vocab_size"`
	RMSNormEps    float32 `json:"rms_norm_eps"`
	RopeTheta     float32 `json:"rope_theta"`
	EOS           int64   `json:"-"`
	TorchDType    string  `json:"torch_dtype"`
	TieEmbeddings bool    `json:"tie_word_embeddings"`
}

// rawConfig carries the fields whose JSON form varies between checkpoints.
type rawConfig struct {
	Config
	EOSToken json.RawMessage `json:"eos_token_id"`
}

// LoadConfig reads a HuggingFace config.json. A directory argument is
// resolved to the config.json inside it.
func LoadConfig(path string) (Config, error) {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = path + string(os.PathSeparator) + "config.json"
	}
	//nolint:gosec // G304: model path comes from the user
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read model config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes config.json contents and fills defaults.
func ParseConfig(data []byte) (Config, error) {
	raw := rawConfig{Config: Config{EOS: -1}}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse model config: %w", err)
	}
	cfg := raw.Config
	eos, err := parseEOS(raw.EOSToken)
	if err != nil {
		return Config{}, err
	}
	cfg.EOS = eos
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// eos_token_id is either a scalar or a list; the first entry of a list wins.
func parseEOS(msg json.RawMessage) (int64, error) {
	if len(msg) == 0 || string(msg) == "null" {
		return -1, nil
	}
	var id int64
	if err := json.Unmarshal(msg, &id); err == nil {
		return id, nil
	}
	var ids []int64
	if err := json.Unmarshal(msg, &ids); err != nil {
		return 0, fmt.Errorf("parse eos_token_id %s: %w", msg, err)
	}
	if len(ids) == 0 {
		return -1, nil
	}
	return ids[0], nil
}

func (c *Config) applyDefaults() {
	if c.NumKVHeads == 0 {
		c.NumKVHeads = c.NumHeads
	}
	if c.HeadDim == 0 && c.NumHeads > 0 {
		c.HeadDim = c.HiddenSize / c.NumHeads
	}
	if c.RMSNormEps == 0 {
		c.RMSNormEps = 1e-6
	}
	if c.RopeTheta == 0 {
		c.RopeTheta = 10000
	}
	if c.TorchDType == "" {
		c.TorchDType = "bfloat16"
	}
}

// Validate checks that the dimensions describe a buildable decoder.
func (c Config) Validate() error {
	for _, f := range []struct {
		name string
		v    int
	}{
		{"num_hidden_layers", c.NumLayers},
		{"hidden_size", c.HiddenSize},
		{"num_attention_heads", c.NumHeads},
		{"num_key_value_heads", c.NumKVHeads},
		{"head_dim", c.HeadDim},
		{"intermediate_size", c.Intermediate},
		{"max_position_embeddings", c.MaxSeqLen},
		{"vocab_size", c.VocabSize},
	} {
		if f.v <= 0 {
			return fmt.Errorf("model config: %s must be positive, got %d", f.name, f.v)
		}
	}
	if c.NumHeads%c.NumKVHeads != 0 {
		return fmt.Errorf("model config: %d attention heads not divisible by %d kv heads", c.NumHeads, c.NumKVHeads)
	}
	if c.HeadDim%2 != 0 {
		return fmt.Errorf("model config: head_dim %d must be even", c.HeadDim)
	}
	if _, err := c.DType(); err != nil {
		return err
	}
	return nil
}

// DType maps torch_dtype onto the compute element type.
func (c Config) DType() (tensor.DataType, error) {
	switch s := strings.ToLower(c.TorchDType); {
	case strings.Contains(s, "bfloat16"), s == "bf16":
		return tensor.BFloat16, nil
	case strings.Contains(s, "float16"), s == "fp16", s == "f16", s == "half":
		return tensor.Float16, nil
	case strings.Contains(s, "float32"), s == "fp32", s == "f32", s == "float":
		return tensor.Float32, nil
	default:
		return 0, &tensor.Error{Kind: tensor.KindUnsupportedDataType, Op: "model", Msg: fmt.Sprintf("torch_dtype %q", c.TorchDType)}
	}
}

// QDim is the width of the query projection.
func (c Config) QDim() int { return c.NumHeads * c.HeadDim }

// KVDim is the width of each key and value projection.
func (c Config) KVDim() int { return c.NumKVHeads * c.HeadDim }
