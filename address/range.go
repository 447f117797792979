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

// Range is a validated address or address range of a single category.
// Single marks expressions without a range separator; for those End equals
// Start.
type Range struct {
	Rule   Rule
	Start  int
	End    int
	Single bool
}

// Indices returns the valid indices of r in ascending order, skipping X/Y
// hundred-block gaps.
func (r Range) Indices() []int {
	var out []int
	for n := r.Start; n <= r.End; n = r.Rule.Next(n) {
		out = append(out, n)
	}
	return out
}

// FlatStart is the flat address of the first element.
func (r Range) FlatStart() int {
	return r.Rule.FlatAddress(r.Start)
}

// Span is the number of flat elements covered from the first to the last
// index, gap coils included.
func (r Range) Span() int {
	return r.Rule.FlatAddress(r.End) + r.Rule.Width() - r.FlatStart()
}

// Offset returns the position of index n within a read of r's span.
func (r Range) Offset(n int) int {
	return r.Rule.FlatAddress(n) - r.FlatStart()
}

func (r Range) String() string {
	if r.Single {
		return r.Rule.Format(r.Start)
	}
	return r.Rule.Format(r.Start) + "-" + r.Rule.Format(r.End)
}
