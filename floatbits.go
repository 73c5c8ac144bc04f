package nidas

import (
	"encoding/binary"
	"math"
)

func leFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func leFloat64(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

// PutFloat32 encodes v in little-endian IEEE-754 into dst[:4].
func PutFloat32(dst []byte, v float32) {
	binary.LittleEndian.PutUint32(dst, math.Float32bits(v))
}

// PutFloat64 encodes v in little-endian IEEE-754 into dst[:8].
func PutFloat64(dst []byte, v float64) {
	binary.LittleEndian.PutUint64(dst, math.Float64bits(v))
}
