package tensor

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unsafe"

	"github.com/goccy/go-json"
)

// Layout is the serializable view descriptor of a tensor.
type Layout struct {
	DType   DataType `json:"dtype"`
	Shape   []int    `json:"shape"`
	Strides []int    `json:"strides"`
	Offset  int      `json:"offset"`
	Device  Device   `json:"device"`
	Storage string   `json:"storage"`
	Bytes   int      `json:"storage_bytes"`
	Refs    int      `json:"refs"`
	Contig  bool     `json:"contiguous"`
	Numel   int      `json:"numel"`
}

// Layout returns the view descriptor.
func (t *Tensor) Layout() Layout {
	return Layout{
		DType:   t.dtype,
		Shape:   t.shape.Clone(),
		Strides: append([]int(nil), t.strides...),
		Offset:  t.offset,
		Device:  t.Device(),
		Storage: t.storage.ID().String(),
		Bytes:   t.storage.Size(),
		Refs:    t.storage.Refs(),
		Contig:  t.IsContiguous(),
		Numel:   t.NumElements(),
	}
}

// LayoutJSON encodes the view descriptor as JSON.
func (t *Tensor) LayoutJSON() ([]byte, error) {
	return json.Marshal(t.Layout())
}

// Info returns a one-line description of the view.
func (t *Tensor) Info() string {
	var b strings.Builder
	b.WriteString("Tensor: shape[ ")
	for _, s := range t.shape {
		b.WriteString(strconv.Itoa(s))
		b.WriteByte(' ')
	}
	b.WriteString("] strides[ ")
	for _, s := range t.strides {
		b.WriteString(strconv.Itoa(s))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "] dtype=%s device=%s offset=%d", t.dtype, t.Device(), t.offset)
	return b.String()
}

// String implements fmt.Stringer.
func (t *Tensor) String() string { return t.Info() }

// Debug writes Info followed by the values, one innermost row per line.
// Device tensors are synchronized and staged through host memory first.
func (t *Tensor) Debug(w io.Writer) error {
	if _, err := fmt.Fprintln(w, t.Info()); err != nil {
		return err
	}
	data, err := t.Bytes()
	if err != nil {
		return err
	}
	if t.NumElements() == 0 {
		return nil
	}
	es := t.dtype.Size()
	row := 1
	if t.NDim() > 0 {
		row = t.shape[t.NDim()-1]
	}
	var line strings.Builder
	for i := 0; i < t.NumElements(); i++ {
		line.WriteString(FormatElement(data[i*es:(i+1)*es], t.dtype))
		line.WriteByte(' ')
		if (i+1)%row == 0 {
			if _, err := fmt.Fprintln(w, line.String()); err != nil {
				return err
			}
			line.Reset()
		}
	}
	return nil
}

// FormatElement renders one element stored in b. Reduced precision floats are
// widened to float32.
func FormatElement(b []byte, dt DataType) string {
	p := unsafe.Pointer(&b[0])
	switch dt {
	case Byte, Uint8:
		return strconv.FormatUint(uint64(b[0]), 10)
	case Bool:
		return strconv.FormatBool(b[0] != 0)
	case Int8:
		return strconv.FormatInt(int64(*(*int8)(p)), 10)
	case Int16:
		return strconv.FormatInt(int64(*(*int16)(p)), 10)
	case Int32:
		return strconv.FormatInt(int64(*(*int32)(p)), 10)
	case Int64:
		return strconv.FormatInt(*(*int64)(p), 10)
	case Uint16:
		return strconv.FormatUint(uint64(*(*uint16)(p)), 10)
	case Uint32:
		return strconv.FormatUint(uint64(*(*uint32)(p)), 10)
	case Uint64:
		return strconv.FormatUint(*(*uint64)(p), 10)
	case Float16:
		return formatFloat((*(*F16)(p)).Float32())
	case BFloat16:
		return formatFloat((*(*BF16)(p)).Float32())
	case Float32:
		return formatFloat(*(*float32)(p))
	case Float64:
		return strconv.FormatFloat(*(*float64)(p), 'g', -1, 64)
	default:
		return "?"
	}
}

func formatFloat(f float32) string {
	if math.IsInf(float64(f), 0) || math.IsNaN(float64(f)) {
		return fmt.Sprint(f)
	}
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}
