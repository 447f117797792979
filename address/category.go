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

// Package address maps CLICK notation addresses onto the flat Modbus coil and
// register spaces.
package address

import (
	"fmt"
	"strings"

	"github.com/RichiH/clickplc/config"
)

// MaxFlatAddress is the last address of a 16 bit Modbus space.
const MaxFlatAddress = 0xFFFF

// Category identifies a CLICK memory type.
type Category int

const (
	X Category = iota
	Y
	C
	DF
	DS
	SD
	CTD
	numCategories
)

// Rule holds the addressing rules of one category.
type Rule struct {
	Category Category
	Prefix   string
	Type     config.DataType
	Space    config.Space
	Min, Max int

	// HundredBlock categories only use *01-*16 of every hundred; the
	// sixteen coils after each used block are a gap.
	HundredBlock bool

	// Base is the flat address of index 1 (or of *01 in block 0).
	Base int
}

var rules = [numCategories]Rule{
	X:   {Category: X, Prefix: "x", Type: config.Bool, Space: config.Coils, Min: 1, Max: 816, HundredBlock: true, Base: 0},
	Y:   {Category: Y, Prefix: "y", Type: config.Bool, Space: config.Coils, Min: 1, Max: 816, HundredBlock: true, Base: 8192},
	C:   {Category: C, Prefix: "c", Type: config.Bool, Space: config.Coils, Min: 1, Max: 2000, Base: 16384},
	DF:  {Category: DF, Prefix: "df", Type: config.Float32, Space: config.Registers, Min: 1, Max: 500, Base: 28672},
	DS:  {Category: DS, Prefix: "ds", Type: config.Int16, Space: config.Registers, Min: 1, Max: 4500, Base: 0},
	SD:  {Category: SD, Prefix: "sd", Type: config.Int16, Space: config.Registers, Min: 1, Max: 4500, Base: 61440},
	CTD: {Category: CTD, Prefix: "ctd", Type: config.Int32, Space: config.Registers, Min: 1, Max: 250, Base: 49152},
}

func (c Category) String() string {
	if c < 0 || c >= numCategories {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return strings.ToUpper(rules[c].Prefix)
}

// Rule returns the addressing rule of c.
func (c Category) Rule() Rule {
	return rules[c]
}

// Lookup returns the rule for a lower case prefix.
func Lookup(prefix string) (Rule, error) {
	for _, r := range rules {
		if r.Prefix == prefix {
			return r, nil
		}
	}
	return Rule{}, &UnknownCategoryError{Prefix: prefix}
}

// Rules returns every supported rule in category order.
func Rules() []Rule {
	return append([]Rule(nil), rules[:]...)
}

// Width is the number of flat elements (coils or registers) per index.
func (r Rule) Width() int {
	if r.Type == config.Float32 || r.Type == config.Int32 {
		return 2
	}
	return 1
}

// FlatAddress maps a valid 1-based index to its zero-based Modbus address.
func (r Rule) FlatAddress(n int) int {
	switch r.Category {
	case X, Y:
		return r.Base + 32*(n/100) + n%100 - 1
	case C, DS, SD:
		return r.Base + n - 1
	case DF, CTD:
		return r.Base + 2*(n-1)
	}
	panic(fmt.Sprintf("address: no flat address mapping for %v", r.Category))
}

// Valid reports whether n is an addressable index of r.
func (r Rule) Valid(n int) bool {
	if n < r.Min || n > r.Max {
		return false
	}
	if r.HundredBlock && (n%100 == 0 || n%100 > 16) {
		return false
	}
	return r.FlatAddress(n)+r.Width()-1 <= MaxFlatAddress
}

// Check validates n, returning an *AddressOutOfRangeError naming the
// violated bound. end selects the wording used for the end of a range.
func (r Rule) Check(n int, end bool) error {
	if r.HundredBlock && (n%100 == 0 || n%100 > 16) {
		return &AddressOutOfRangeError{Category: r.Category, Index: n, End: end, Bound: "*01-*16"}
	}
	if n < r.Min || n > r.Max {
		return &AddressOutOfRangeError{Category: r.Category, Index: n, End: end,
			Bound: fmt.Sprintf("in [%s, %s]", r.formatIndex(r.Min), r.formatIndex(r.Max))}
	}
	if last := r.lastAddressable(); n > last {
		return &AddressOutOfRangeError{Category: r.Category, Index: n, End: end,
			Bound: fmt.Sprintf("in [%s, %s] to fit the Modbus address space", r.formatIndex(r.Min), r.formatIndex(last))}
	}
	return nil
}

// lastAddressable is the highest index whose element ends inside the 16 bit
// address space.
func (r Rule) lastAddressable() int {
	n := r.Max
	for n >= r.Min && r.FlatAddress(r.prevValid(n))+r.Width()-1 > MaxFlatAddress {
		n--
	}
	return n
}

func (r Rule) prevValid(n int) int {
	for r.HundredBlock && (n%100 == 0 || n%100 > 16) {
		n--
	}
	return n
}

// Next returns the valid index following n, or Max+1 past the end.
func (r Rule) Next(n int) int {
	n++
	if r.HundredBlock && n%100 > 16 {
		n = (n/100+1)*100 + 1
	}
	if n > r.Max {
		return r.Max + 1
	}
	return n
}

// Remaining counts the valid indices from n through the end of the category,
// n included.
func (r Rule) Remaining(n int) int {
	last := r.lastAddressable()
	if !r.HundredBlock {
		if n > last {
			return 0
		}
		return last - n + 1
	}
	count := 0
	for i := n; i <= last; i = r.Next(i) {
		count++
	}
	return count
}

// Capacity is the longest value list a write starting at n accepts: the
// valid indices after n through the end of the category. A list never
// reaches the last index; a scalar write there is allowed.
func (r Rule) Capacity(n int) int {
	if c := r.Remaining(n) - 1; c > 0 {
		return c
	}
	return 0
}

// Format renders index n in CLICK notation, e.g. "x001", "df12".
func (r Rule) Format(n int) string {
	return r.Prefix + r.formatIndex(n)
}

func (r Rule) formatIndex(n int) string {
	if r.HundredBlock {
		return fmt.Sprintf("%03d", n)
	}
	return fmt.Sprintf("%d", n)
}
