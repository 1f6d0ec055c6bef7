package tensor

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsByKind(t *testing.T) {
	err := Errorf(KindShape, "slice", []string{"x"}, "end %d larger than %d", 5, 3)

	assert.ErrorIs(t, err, ErrShape)
	assert.NotErrorIs(t, err, ErrContiguity)
	assert.Equal(t, KindShape, KindOf(err))
	assert.Equal(t, "slice: shape error [x]: end 5 larger than 3", err.Error())

	wrapped := fmt.Errorf("layer 3: %w", err)
	assert.ErrorIs(t, wrapped, ErrShape)
	assert.Equal(t, KindShape, KindOf(wrapped))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("out of device memory")
	err := &Error{Kind: KindAllocation, Op: "create", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrAllocation)
	assert.Contains(t, err.Error(), "caused by: out of device memory")
}

func TestKindString(t *testing.T) {
	kinds := map[Kind]string{
		KindDeviceMismatch:      "device mismatch",
		KindContiguity:          "contiguity",
		KindDtypeMismatch:       "dtype mismatch",
		KindShape:               "shape",
		KindUnsupportedDataType: "unsupported data type",
		KindUnsupportedDevice:   "unsupported device",
		KindAllocation:          "allocation",
		Kind(99):                "unknown",
	}
	for k, want := range kinds {
		assert.Equal(t, want, k.String())
	}
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
}
