// Package endian selects the byte order used to read the legacy binary model layout.
//
// The binary layout written by the boosting library is a raw dump of host-order
// structs, so a model trained on a big-endian machine must be read with the
// big-endian engine. Most models are little-endian.
package endian

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unsafe"
)

// EndianEngine combines ByteOrder and AppendByteOrder from encoding/binary.
// binary.LittleEndian and binary.BigEndian both satisfy it.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// CheckEndianness uses a fixed integer value to determine the host's byte order.
func CheckEndianness() binary.ByteOrder {
	// 0x0100 is 256. On a little-endian host the low byte (0x00) comes first.
	var i uint16 = 0x0100

	b := (*[2]byte)(unsafe.Pointer(&i))
	if b[0] == 0x01 {
		return binary.BigEndian
	}

	return binary.LittleEndian
}

func IsNativeLittleEndian() bool {
	return CheckEndianness() == binary.LittleEndian
}

// GetLittleEndianEngine returns the little-endian engine.
func GetLittleEndianEngine() EndianEngine {
	return binary.LittleEndian
}

// GetBigEndianEngine returns the big-endian engine.
func GetBigEndianEngine() EndianEngine {
	return binary.BigEndian
}

// GetNativeEngine returns the engine matching the host byte order.
func GetNativeEngine() EndianEngine {
	if IsNativeLittleEndian() {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// Parse resolves a byte order name. Accepted names are "LE", "little",
// "little_endian", "BE", "big", "big_endian" and "native" (case-insensitive).
// The empty string selects the native engine.
func Parse(name string) (EndianEngine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "native":
		return GetNativeEngine(), nil
	case "le", "little", "little_endian", "littleendian":
		return GetLittleEndianEngine(), nil
	case "be", "big", "big_endian", "bigendian":
		return GetBigEndianEngine(), nil
	default:
		return nil, fmt.Errorf("unknown byte order %q", name)
	}
}

// Name returns the canonical short name ("LE" or "BE") of an engine.
func Name(engine EndianEngine) string {
	if engine == binary.BigEndian {
		return "BE"
	}
	return "LE"
}
