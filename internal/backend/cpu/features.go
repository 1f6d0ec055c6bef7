package cpu

import (
	"runtime"
	"strings"

	"golang.org/x/sys/cpu"
)

// Features tracks available CPU instruction set extensions.
type Features struct {
	Arch       string `json:"arch"`
	NumCPU     int    `json:"num_cpu"`
	HasSSE4    bool   `json:"sse4"`
	HasAVX     bool   `json:"avx"`
	HasAVX2    bool   `json:"avx2"`
	HasFMA     bool   `json:"fma"`
	HasAVX512F bool   `json:"avx512f"`
	HasNEON    bool   `json:"neon"`
	HasFP16    bool   `json:"fp16"`
}

// DetectFeatures reads the instruction set flags of the running CPU.
func DetectFeatures() Features {
	return Features{
		Arch:       runtime.GOARCH,
		NumCPU:     runtime.NumCPU(),
		HasSSE4:    cpu.X86.HasSSE41 || cpu.X86.HasSSE42,
		HasAVX:     cpu.X86.HasAVX,
		HasAVX2:    cpu.X86.HasAVX2,
		HasFMA:     cpu.X86.HasFMA,
		HasAVX512F: cpu.X86.HasAVX512F,
		HasNEON:    cpu.ARM64.HasASIMD,
		HasFP16:    cpu.ARM64.HasFPHP && cpu.ARM64.HasASIMDHP,
	}
}

// Best names the widest vector extension available.
func (f Features) Best() string {
	switch {
	case f.HasAVX512F:
		return "AVX512"
	case f.HasAVX2 && f.HasFMA:
		return "AVX2"
	case f.HasNEON:
		return "NEON"
	case f.HasSSE4:
		return "SSE4"
	default:
		return "scalar"
	}
}

// String returns a string describing available CPU features.
func (f Features) String() string {
	var list []string
	for _, e := range []struct {
		ok   bool
		name string
	}{
		{f.HasSSE4, "SSE4"},
		{f.HasAVX, "AVX"},
		{f.HasAVX2, "AVX2"},
		{f.HasFMA, "FMA"},
		{f.HasAVX512F, "AVX512F"},
		{f.HasNEON, "NEON"},
		{f.HasFP16, "FP16"},
	} {
		if e.ok {
			list = append(list, e.name)
		}
	}
	if len(list) == 0 {
		return f.Arch + ": no SIMD extensions detected"
	}
	return f.Arch + ": " + strings.Join(list, ", ")
}
