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

package parser

import (
	"strconv"
	"strings"

	"github.com/RichiH/clickplc/token"
)

// operand is one side of an address expression, e.g. "df" and 12.
type operand struct {
	prefix string
	index  int
	set    bool
}

// addrExprHandler extracts the start and optional end operands from the
// tokenized input of the Scanner.
type addrExprHandler struct {
	start       operand
	end         operand
	hasEnd      bool
	handleToken state
}

type state func(token.Token, string) string

// init prepares the handler from the first token and sets the first state
// function. A non empty result means the expression can't be parsed.
func (h *addrExprHandler) init(tok token.Token, lit string, _ int) string {
	*h = addrExprHandler{}
	switch tok {
	case token.IDENT:
		h.start.prefix = strings.ToLower(lit)
		h.handleToken = h.prefixToIntState(&h.start, h.intToSubState)
		return ""
	case token.EOF:
		return "empty address"
	case token.INT:
		return "missing category prefix"
	}
	return "expected category prefix as first element"
}

// all the possible states. They represent the states in the process of parsing
// a single address expression.

func (h *addrExprHandler) prefixToIntState(o *operand, then state) state {
	return func(tok token.Token, lit string) string {
		if tok != token.INT {
			return "expected index after " + o.prefix
		}
		n, err := strconv.Atoi(lit)
		if err != nil {
			return "index " + lit + " out of range"
		}
		o.index = n
		o.set = true
		h.handleToken = then
		return ""
	}
}

func (h *addrExprHandler) intToSubState(tok token.Token, lit string) string {
	if tok != token.SUB {
		return "unexpected " + describe(tok, lit) + " after address"
	}
	h.hasEnd = true
	h.handleToken = h.subToPrefixState
	return ""
}

func (h *addrExprHandler) subToPrefixState(tok token.Token, lit string) string {
	if tok != token.IDENT {
		return "expected category prefix after '-'"
	}
	h.end.prefix = strings.ToLower(lit)
	h.handleToken = h.prefixToIntState(&h.end, h.endedState)
	return ""
}

func (h *addrExprHandler) endedState(tok token.Token, lit string) string {
	return "unexpected " + describe(tok, lit) + " after range end"
}

// complete reports why the handler stopped outside an accepting state, or
// "" when the expression is whole.
func (h *addrExprHandler) complete() string {
	switch {
	case !h.start.set:
		return "missing index after " + h.start.prefix
	case h.hasEnd && h.end.prefix == "":
		return "incomplete range"
	case h.hasEnd && !h.end.set:
		return "missing index after " + h.end.prefix
	}
	return ""
}

func describe(tok token.Token, lit string) string {
	switch {
	case tok.IsLiteral(), tok == token.ILLEGAL:
		return "'" + lit + "'"
	case tok.IsOperator():
		return "'" + tok.String() + "'"
	}
	return tok.String()
}
