// Copyright 2019 Richard Hartmann
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import "fmt"

// DataType is an Enum, representing the possible data types a CLICK memory
// element can be interpreted as.
type DataType string

const (
	Bool    DataType = "bool"
	Int16   DataType = "int16"
	Int32   DataType = "int32"
	Float32 DataType = "float32"
)

var possibleDataTypes = []DataType{
	Bool,
	Int16,
	Int32,
	Float32,
}

// Validate checks t is one of the supported data types.
func (t DataType) Validate() error {
	for _, possibleType := range possibleDataTypes {
		if t == possibleType {
			return nil
		}
	}

	return fmt.Errorf("expected one of the following data types %v but got '%v'",
		possibleDataTypes,
		t)
}

// Kind returns the name used for t in type mismatch messages, matching the
// vocabulary of the CLICK programming software (bool, int, float).
func (t DataType) Kind() string {
	switch t {
	case Int16, Int32:
		return "int"
	case Float32:
		return "float"
	}
	return string(t)
}

// Space identifies the Modbus address space a category lives in.
type Space int

const (
	// Coils is the single bit space (FC 1, 5, 15).
	Coils Space = iota
	// Registers is the 16 bit holding register space (FC 3, 6, 16).
	Registers
)

func (s Space) String() string {
	var str string
	switch s {
	case Coils:
		str = "coils"
	case Registers:
		str = "registers"
	}
	return str
}
