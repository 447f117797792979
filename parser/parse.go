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

// Package parser turns CLICK address expressions such as "df1" or
// "x001-x016" into validated address ranges.
package parser

import (
	"strconv"

	"github.com/RichiH/clickplc/address"
	"github.com/RichiH/clickplc/lexer"
	"github.com/RichiH/clickplc/token"
)

// Parse validates expr and returns the range it denotes. Single addresses
// yield a Range with Single set and End equal to Start.
//
// Errors are reported in a fixed order: syntax, inter-category range,
// unknown category, inverted range, start bound, end bound.
func Parse(expr string) (address.Range, error) {
	h, err := scan(expr)
	if err != nil {
		return address.Range{}, err
	}
	if h.hasEnd && h.start.prefix != h.end.prefix {
		return address.Range{}, &address.InterCategoryRangeError{
			Start: h.start.prefix + strconv.Itoa(h.start.index),
			End:   h.end.prefix + strconv.Itoa(h.end.index),
		}
	}
	rule, err := address.Lookup(h.start.prefix)
	if err != nil {
		return address.Range{}, err
	}
	r := address.Range{Rule: rule, Start: h.start.index, End: h.start.index, Single: true}
	if h.hasEnd {
		r.End = h.end.index
		r.Single = false
		if r.End < r.Start {
			return address.Range{}, &address.InvalidRangeError{Start: r.Start, End: r.End}
		}
	}
	if err := rule.Check(r.Start, false); err != nil {
		return address.Range{}, err
	}
	if !r.Single {
		if err := rule.Check(r.End, true); err != nil {
			return address.Range{}, err
		}
	}
	return r, nil
}

// ParseAddress is Parse restricted to single addresses.
func ParseAddress(expr string) (address.Rule, int, error) {
	r, err := Parse(expr)
	if err != nil {
		return address.Rule{}, 0, err
	}
	if !r.Single {
		return address.Rule{}, 0, &address.SyntaxError{Expr: expr, Msg: "expected a single address, got a range"}
	}
	return r.Rule, r.Start, nil
}

// scan runs the tokens of expr through the expression handler. Scanning
// continues after the first handler error so that every scanner error is
// collected; the scanner report takes precedence.
func scan(expr string) (*addrExprHandler, error) {
	s := new(lexer.Scanner)
	s.Init([]byte(expr))
	h := new(addrExprHandler)

	errMsg := h.init(s.Scan())
	if errMsg == "" {
		for tok, lit, _ := s.Scan(); tok != token.EOF; tok, lit, _ = s.Scan() {
			if errMsg == "" && s.GetReport() == nil {
				errMsg = h.handleToken(tok, lit)
			}
		}
	}
	if err := s.GetReport(); err != nil {
		return nil, &address.SyntaxError{Expr: expr, Msg: err.Error()}
	}
	if errMsg == "" {
		errMsg = h.complete()
	}
	if errMsg != "" {
		return nil, &address.SyntaxError{Expr: expr, Msg: errMsg}
	}
	return h, nil
}
