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

// Package tags loads the nickname export of the CLICK programming software.
package tags

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/RichiH/clickplc/address"
	"github.com/RichiH/clickplc/config"
	"github.com/RichiH/clickplc/parser"

	multierror "github.com/hashicorp/go-multierror"
)

// Tag is a nicknamed CLICK address.
type Tag struct {
	Nickname string
	ID       string // notation address, e.g. "C13"
	Rule     address.Rule
	Index    int
	Type     config.DataType

	// ModbusAddress is the address column of the export, in the
	// 0xxxxx/3xxxxx/4xxxxx notation.
	ModbusAddress int
	Comment       string
}

// Address returns the notation address of t in lower case, e.g. "c13".
func (t Tag) Address() string {
	return t.Rule.Prefix + strconv.Itoa(t.Index)
}

// MarshalJSON renders t the way the tag listing prints it. Float addresses
// are listed as "float", the other types by their name.
func (t Tag) MarshalJSON() ([]byte, error) {
	type start struct {
		Start int `json:"start"`
	}
	typ := string(t.Type)
	if t.Type == config.Float32 {
		typ = t.Type.Kind()
	}
	return json.Marshal(struct {
		Address start  `json:"address"`
		ID      string `json:"id"`
		Type    string `json:"type"`
		Comment string `json:"comment,omitempty"`
	}{start{t.ModbusAddress}, t.ID, typ, t.Comment})
}

// Registry maps nicknames to tags. It is not modified after loading.
type Registry map[string]Tag

// Nicknames returns the nicknames of r ordered by category and index.
func (r Registry) Nicknames() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := r[names[i]], r[names[j]]
		if a.Rule.Category != b.Rule.Category {
			return a.Rule.Category < b.Rule.Category
		}
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return names[i] < names[j]
	})
	return names
}

// UnsupportedTypeError is returned for tags on categories the driver can't
// address, e.g. timers or text registers.
type UnsupportedTypeError struct {
	Nickname string
	ID       string
}

// Error implements the Golang error interface.
func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("%s (%s): unsupported data type", e.Nickname, e.ID)
}

const (
	colAddress       = "Address"
	colModbusAddress = "Modbus Address"
	colNickname      = "Nickname"
	colComment       = "Address Comment"
)

// Load reads the tags file at path.
func Load(path string) (Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tags file: %v", err)
	}
	defer f.Close()

	r, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load tags from %s: %w", path, err)
	}
	return r, nil
}

// Parse reads a CLICK nickname export. Rows without a nickname or with a
// nickname starting with '_' are skipped. Every invalid row is reported.
func Parse(in io.Reader) (Registry, error) {
	rd := csv.NewReader(in)
	rd.FieldsPerRecord = -1
	rd.LazyQuotes = true
	rd.TrimLeadingSpace = true

	header, err := rd.Read()
	if err == io.EOF {
		return nil, errors.New("empty tags file")
	}
	if err != nil {
		return nil, err
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "## ")
		}
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{colAddress, colNickname} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var errs error
	registry := make(Registry)
	for {
		record, err := rd.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			errs = multierror.Append(errs, err)
			break
		}
		line, _ := rd.FieldPos(0)

		field := func(col string) string {
			i, ok := cols[col]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		nickname := field(colNickname)
		if nickname == "" || strings.HasPrefix(nickname, "_") {
			continue
		}
		tag, err := newTag(nickname, field(colAddress), field(colModbusAddress), field(colComment))
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		if prev, ok := registry[nickname]; ok {
			errs = multierror.Append(errs, fmt.Errorf("line %d: duplicate nickname %s on %s and %s", line, nickname, prev.ID, tag.ID))
			continue
		}
		registry[nickname] = tag
	}

	if errs != nil {
		return nil, errs
	}
	return registry, nil
}

func newTag(nickname, id, modbusAddress, comment string) (Tag, error) {
	rule, index, err := parser.ParseAddress(id)
	if err != nil {
		var uerr *address.UnknownCategoryError
		if errors.As(err, &uerr) {
			return Tag{}, &UnsupportedTypeError{Nickname: nickname, ID: id}
		}
		return Tag{}, fmt.Errorf("%s: %v", nickname, err)
	}
	tag := Tag{
		Nickname: nickname,
		ID:       strings.ToUpper(id),
		Rule:     rule,
		Index:    index,
		Type:     rule.Type,
		Comment:  comment,
	}
	if modbusAddress != "" {
		tag.ModbusAddress, err = strconv.Atoi(modbusAddress)
		if err != nil {
			return Tag{}, fmt.Errorf("%s: invalid modbus address %q", nickname, modbusAddress)
		}
	}
	return tag, nil
}
