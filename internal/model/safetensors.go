package model

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-json"

	"github.com/born-ml/tensorcore/internal/tensor"
)

// SafeTensors format:
// [8 bytes: header_size (uint64 LE)]
// [header_size bytes: JSON header]
// [tensor data: raw bytes]

// maxHeaderSize bounds the JSON header of one file.
const maxHeaderSize = 100 * 1024 * 1024

// safeTensorInfo describes a tensor entry in a SafeTensors header.
type safeTensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end]
}

type safeTensorEntry struct {
	info  safeTensorInfo
	file  *os.File
	start int64 // absolute offset of the data section
}

// SafeTensors is a Collection over one or more .safetensors shards.
// Tensors are materialized on the configured device on every lookup.
type SafeTensors struct {
	files   []*os.File
	entries map[string]safeTensorEntry
	dev     tensor.Device
}

// OpenSafeTensors opens the given shard files. A single directory argument
// opens every *.safetensors file inside it.
func OpenSafeTensors(dev tensor.Device, paths ...string) (*SafeTensors, error) {
	if len(paths) == 1 {
		if fi, err := os.Stat(paths[0]); err == nil && fi.IsDir() {
			matches, err := filepath.Glob(filepath.Join(paths[0], "*.safetensors"))
			if err != nil {
				return nil, err
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("no .safetensors files in %s", paths[0])
			}
			sort.Strings(matches)
			paths = matches
		}
	}
	st := &SafeTensors{entries: make(map[string]safeTensorEntry), dev: dev}
	for _, p := range paths {
		if err := st.open(p); err != nil {
			_ = st.Close() // Best effort close on error
			return nil, err
		}
	}
	return st, nil
}

func (st *SafeTensors) open(path string) error {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	st.files = append(st.files, file)

	var headerSize uint64
	if err := binary.Read(file, binary.LittleEndian, &headerSize); err != nil {
		return fmt.Errorf("%s: failed to read header size: %w", path, err)
	}
	if headerSize > maxHeaderSize {
		return fmt.Errorf("%s: invalid header size: %d (too large)", path, headerSize)
	}
	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(file, headerBytes); err != nil {
		return fmt.Errorf("%s: failed to read header: %w", path, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return fmt.Errorf("%s: failed to parse header JSON: %w", path, err)
	}
	dataOffset := int64(8 + headerSize) //nolint:gosec // G115: header size bounded above
	for name, msg := range raw {
		if name == "__metadata__" {
			continue
		}
		var info safeTensorInfo
		if err := json.Unmarshal(msg, &info); err != nil {
			return fmt.Errorf("%s: failed to unmarshal tensor %s: %w", path, name, err)
		}
		if _, dup := st.entries[name]; dup {
			return fmt.Errorf("%s: tensor %s appears in more than one shard", path, name)
		}
		st.entries[name] = safeTensorEntry{info: info, file: file, start: dataOffset}
	}
	return nil
}

// Names returns all tensor names in sorted order.
func (st *SafeTensors) Names() []string {
	names := make([]string, 0, len(st.entries))
	for name := range st.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tensor reads the named tensor into a new tensor on the collection device.
func (st *SafeTensors) Tensor(name string) (*tensor.Tensor, error) {
	e, ok := st.entries[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrMissingWeight)
	}
	dtype, err := safeTensorsDType(e.info.DType)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	size := e.info.DataOffsets[1] - e.info.DataOffsets[0]
	if size < 0 {
		return nil, fmt.Errorf("invalid data offsets for tensor %s: [%d, %d]",
			name, e.info.DataOffsets[0], e.info.DataOffsets[1])
	}
	data := make([]byte, size)
	if _, err := e.file.ReadAt(data, e.start+e.info.DataOffsets[0]); err != nil {
		return nil, fmt.Errorf("failed to read tensor data for %s: %w", name, err)
	}
	return tensor.FromBytes(e.info.Shape, dtype, data, st.dev)
}

// Close closes every shard.
func (st *SafeTensors) Close() error {
	var first error
	for _, f := range st.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	st.files = nil
	return first
}

func safeTensorsDType(dtype string) (tensor.DataType, error) {
	switch dtype {
	case "F16":
		return tensor.Float16, nil
	case "BF16":
		return tensor.BFloat16, nil
	case "F32":
		return tensor.Float32, nil
	case "F64":
		return tensor.Float64, nil
	case "I8":
		return tensor.Int8, nil
	case "I16":
		return tensor.Int16, nil
	case "I32":
		return tensor.Int32, nil
	case "I64":
		return tensor.Int64, nil
	case "U8":
		return tensor.Uint8, nil
	case "U16":
		return tensor.Uint16, nil
	case "U32":
		return tensor.Uint32, nil
	case "U64":
		return tensor.Uint64, nil
	case "BOOL":
		return tensor.Bool, nil
	default:
		return 0, &tensor.Error{Kind: tensor.KindUnsupportedDataType, Op: "safetensors", Msg: dtype}
	}
}
