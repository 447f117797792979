// Copyright 2017 Alejandro Sirgo Rica
//
// This file is part of Modbus_exporter.
//
//     Modbus_exporter is free software: you can redistribute it and/or modify
//     it under the terms of the GNU General Public License as published by
//     the Free Software Foundation, either version 3 of the License, or
//     (at your option) any later version.
//
//     Modbus_exporter is distributed in the hope that it will be useful,
//     but WITHOUT ANY WARRANTY; without even the implied warranty of
//     MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
//     GNU General Public License for more details.
//
//     You should have received a copy of the GNU General Public License
//     along with Modbus_exporter.  If not, see <http://www.gnu.org/licenses/>.

// Package codec converts CLICK typed values to and from Modbus register
// words.
//
// 32 bit values are stored word swapped: the low halfword is the first
// register, each halfword big endian on the wire.
package codec

import (
	"fmt"
	"math"

	"github.com/RichiH/clickplc/config"
)

// Width returns the number of registers a value of type t occupies.
func Width(t config.DataType) int {
	switch t {
	case config.Float32, config.Int32:
		return 2
	}
	return 1
}

// InsufficientRegistersError is returned by Decode whenever not enough
// registers are provided for the given data type.
type InsufficientRegistersError struct {
	e string
}

// Error implements the Golang error interface.
func (e *InsufficientRegistersError) Error() string {
	return fmt.Sprintf("insufficient amount of registers provided: %v", e.e)
}

// EncodingError is returned by Encode for values that can't be represented
// in the target type.
type EncodingError struct {
	Value interface{}
	Type  config.DataType
	Msg   string
}

// Error implements the Golang error interface.
func (e *EncodingError) Error() string {
	return fmt.Sprintf("cannot encode %v (%T) as %s: %s", e.Value, e.Value, e.Type, e.Msg)
}

// Decode interprets the leading registers of words as a value of type t.
// The result is a bool, int16, int32 or float32.
func Decode(words []uint16, t config.DataType) (interface{}, error) {
	if n := Width(t); len(words) < n {
		return nil, &InsufficientRegistersError{fmt.Sprintf("expected at least %v, got %v", n, len(words))}
	}
	switch t {
	case config.Bool:
		return words[0] != 0, nil
	case config.Int16:
		return int16(words[0]), nil
	case config.Int32:
		return int32(join(words)), nil
	case config.Float32:
		return math.Float32frombits(join(words)), nil
	}
	return nil, fmt.Errorf("unknown data type %q", t)
}

// DecodeAll decodes consecutive values of type t. len(words) must be a
// multiple of Width(t).
func DecodeAll(words []uint16, t config.DataType) ([]interface{}, error) {
	w := Width(t)
	if len(words)%w != 0 {
		return nil, &InsufficientRegistersError{fmt.Sprintf("expected a multiple of %v, got %v", w, len(words))}
	}
	out := make([]interface{}, 0, len(words)/w)
	for i := 0; i < len(words); i += w {
		v, err := Decode(words[i:i+w], t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Encode converts v into the registers of type t. Integers are accepted for
// float32 and converted; everything else must match the type's kind.
func Encode(v interface{}, t config.DataType) ([]uint16, error) {
	switch t {
	case config.Bool:
		b, ok := v.(bool)
		if !ok {
			return nil, &EncodingError{v, t, "expected a bool"}
		}
		if b {
			return []uint16{1}, nil
		}
		return []uint16{0}, nil
	case config.Int16:
		i, err := toInt(v, t, math.MinInt16, math.MaxInt16)
		if err != nil {
			return nil, err
		}
		return []uint16{uint16(int16(i))}, nil
	case config.Int32:
		i, err := toInt(v, t, math.MinInt32, math.MaxInt32)
		if err != nil {
			return nil, err
		}
		return split(uint32(int32(i))), nil
	case config.Float32:
		f, err := toFloat32(v, t)
		if err != nil {
			return nil, err
		}
		return split(math.Float32bits(f)), nil
	}
	return nil, &EncodingError{v, t, "unknown data type"}
}

// join assembles a word swapped 32 bit value.
func join(words []uint16) uint32 {
	return uint32(words[1])<<16 | uint32(words[0])
}

func split(u uint32) []uint16 {
	return []uint16{uint16(u), uint16(u >> 16)}
}

func toInt(v interface{}, t config.DataType, min, max int64) (int64, error) {
	var i int64
	switch n := v.(type) {
	case int:
		i = int64(n)
	case int8:
		i = int64(n)
	case int16:
		i = int64(n)
	case int32:
		i = int64(n)
	case int64:
		i = n
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, &EncodingError{v, t, fmt.Sprintf("out of range [%d, %d]", min, max)}
		}
		i = int64(n)
	case uint8:
		i = int64(n)
	case uint16:
		i = int64(n)
	case uint32:
		i = int64(n)
	case uint64:
		if n > math.MaxInt64 {
			return 0, &EncodingError{v, t, fmt.Sprintf("out of range [%d, %d]", min, max)}
		}
		i = int64(n)
	default:
		return 0, &EncodingError{v, t, "expected an integer"}
	}
	if i < min || i > max {
		return 0, &EncodingError{v, t, fmt.Sprintf("out of range [%d, %d]", min, max)}
	}
	return i, nil
}

func toFloat32(v interface{}, t config.DataType) (float32, error) {
	switch n := v.(type) {
	case float32:
		return n, nil
	case float64:
		if !math.IsInf(n, 0) && !math.IsNaN(n) && math.Abs(n) > math.MaxFloat32 {
			return 0, &EncodingError{v, t, "out of float32 range"}
		}
		return float32(n), nil
	case uint64:
		return float32(n), nil
	case uint:
		return float32(n), nil
	case bool:
		return 0, &EncodingError{v, t, "expected a float"}
	}
	i, err := toInt(v, t, math.MinInt64, math.MaxInt64)
	if err != nil {
		return 0, &EncodingError{v, t, "expected a float"}
	}
	return float32(i), nil
}
