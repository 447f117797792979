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

package address

import "fmt"

// UnknownCategoryError is returned for prefixes missing from the category
// table.
type UnknownCategoryError struct {
	Prefix string
}

// Error implements the Golang error interface.
func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("%s currently unsupported", e.Prefix)
}

// InterCategoryRangeError is returned when both ends of a range use different
// prefixes, e.g. "c1-x3".
type InterCategoryRangeError struct {
	Start, End string
}

// Error implements the Golang error interface.
func (e *InterCategoryRangeError) Error() string {
	return fmt.Sprintf("inter-category ranges are unsupported: %s-%s", e.Start, e.End)
}

// InvalidRangeError is returned when a range ends before it starts.
type InvalidRangeError struct {
	Start, End int
}

// Error implements the Golang error interface.
func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("end address must be greater than start address (%d < %d)", e.End, e.Start)
}

// AddressOutOfRangeError is returned for indices outside a category's domain,
// including X/Y hundred-block gaps.
type AddressOutOfRangeError struct {
	Category Category
	Index    int
	End      bool
	Bound    string
}

// Error implements the Golang error interface.
func (e *AddressOutOfRangeError) Error() string {
	which := "start"
	if e.End {
		which = "end"
	}
	return fmt.Sprintf("%v %s address must be %s, got %d", e.Category, which, e.Bound, e.Index)
}

// SyntaxError is returned for expressions that are not of the form
// PREFIX INDEX or PREFIX INDEX - PREFIX INDEX.
type SyntaxError struct {
	Expr string
	Msg  string
}

// Error implements the Golang error interface.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid address %q: %s", e.Expr, e.Msg)
}
