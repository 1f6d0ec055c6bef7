package main

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/tensorcore/internal/model"
	"github.com/born-ml/tensorcore/internal/tensor"
)

// tinyConfig is the decoder used when no model directory is given.
func tinyConfig(dtype string) model.Config {
	return model.Config{
		NumLayers:    2,
		HiddenSize:   64,
		NumHeads:     4,
		NumKVHeads:   2,
		HeadDim:      16,
		Intermediate: 128,
		MaxSeqLen:    256,
		VocabSize:    128,
		RMSNormEps:   1e-6,
		RopeTheta:    10000,
		EOS:          -1,
		TorchDType:   dtype,
	}
}

func parseTokens(s string) ([]int64, error) {
	var ids []int64
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("token %q: %w", f, err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("empty prompt")
	}
	return ids, nil
}

type layerReport struct {
	Model     string  `json:"model"`
	DType     string  `json:"dtype"`
	Prompt    []int64 `json:"prompt"`
	Generated []int64 `json:"generated"`
	Seconds   float64 `json:"seconds"`
	TokensPS  float64 `json:"tokens_per_second"`
}

func layerCmd() *cli.Command {
	var (
		modelDir string
		tokens   string
		steps    int64
		dtype    string
		seed     int64
		maxSeq   int64
	)
	return &cli.Command{
		Name:  "layer",
		Usage: "Run the decoder forward pass and greedy-decode tokens",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "directory with config.json and .safetensors (default: random tiny model)", Destination: &modelDir},
			&cli.StringFlag{Name: "tokens", Aliases: []string{"t"}, Usage: "comma separated prompt token ids", Value: "1,2,3", Destination: &tokens},
			&cli.Int64Flag{Name: "steps", Aliases: []string{"n"}, Usage: "tokens to generate", Value: 8, Destination: &steps},
			&cli.StringFlag{Name: "dtype", Usage: "torch dtype of the random model", Value: "float32", Destination: &dtype},
			&cli.Int64Flag{Name: "seed", Usage: "random weight seed", Value: 42, Destination: &seed},
			&cli.Int64Flag{Name: "max-seq", Usage: "cap the KV cache length", Value: 4096, Destination: &maxSeq},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e := envFrom(ctx)
			prompt, err := parseTokens(tokens)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			var (
				cfg  model.Config
				w    *model.Weights
				name = "random"
			)
			if modelDir != "" {
				name = modelDir
				if cfg, err = model.LoadConfig(modelDir); err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				st, err := model.OpenSafeTensors(tensor.Host, modelDir)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: open weights: %v", err), 1)
				}
				w, err = model.Bind(cfg, st, tensor.Host)
				_ = st.Close()
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: bind weights: %v", err), 1)
				}
			} else {
				cfg = tinyConfig(dtype)
				if err := cfg.Validate(); err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				if w, err = model.RandomWeights(cfg, rand.New(rand.NewSource(seed)), tensor.Host); err != nil {
					return err
				}
			}
			defer w.Release()

			m, err := model.New(cfg, w,
				model.WithExecutor(e.exec),
				model.WithLogger(e.log),
				model.WithMaxSeqLen(int(maxSeq)))
			if err != nil {
				return err
			}
			defer m.Release()

			e.log.Info("decoder ready", "model", name, "layers", cfg.NumLayers, "hidden", cfg.HiddenSize, "dtype", cfg.TorchDType)
			start := time.Now()
			out, err := m.Generate(ctx, prompt, int(steps))
			if err != nil {
				return err
			}
			elapsed := time.Since(start).Seconds()

			report := layerReport{
				Model:     name,
				DType:     cfg.TorchDType,
				Prompt:    prompt,
				Generated: out,
				Seconds:   elapsed,
			}
			if elapsed > 0 {
				report.TokensPS = float64(len(out)) / elapsed
			}
			if jsonOutput {
				return printJSON(report)
			}
			fmt.Printf("prompt:    %v\n", prompt)
			fmt.Printf("generated: %v\n", out)
			fmt.Printf("speed:     %.1f tok/s\n", report.TokensPS)
			return nil
		},
	}
}
