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

// Package lexer splits CLICK address expressions into sequences of tokens.
package lexer

import (
	"fmt"
	"unicode/utf8"

	"github.com/RichiH/clickplc/token"

	multierror "github.com/hashicorp/go-multierror"
)

// Scanner is the scanning tool which contains the internal state of analysis.
// Must be initialized via Init before use.
type Scanner struct {
	src []byte            // source
	err *multierror.Error // error reporting

	// scanning state
	ch       rune // current character
	offset   int  // character offset
	rdOffset int  // reading offset (position after current character)
}

// Init prepares the scanner s to tokenize the text src by setting the
// scanner at the beginning of src.
func (s *Scanner) Init(src []byte) {
	s.src = src
	s.err = new(multierror.Error)
	s.ch = ' '
	s.offset = 0
	s.rdOffset = 0
	s.next()
}

func (s *Scanner) error(offs int, msg string) {
	s.err = multierror.Append(s.err, fmt.Errorf("%s at offset %d", msg, offs))
}

// GetReport returns the errors of the scanner as a common error interface
func (s *Scanner) GetReport() error {
	return s.err.ErrorOrNil()
}

func (s *Scanner) next() {
	if s.rdOffset < len(s.src) {
		s.offset = s.rdOffset
		r, w := rune(s.src[s.rdOffset]), 1
		if r >= utf8.RuneSelf {
			r, w = utf8.DecodeRune(s.src[s.rdOffset:])
			if r == utf8.RuneError && w == 1 {
				s.error(s.offset, "illegal UTF-8 encoding")
			}
		}
		s.rdOffset += w
		s.ch = r
	} else {
		s.offset = len(s.src)
		s.ch = -1 // eof
	}
}

// Scan scans the next token and returns the token, its literal string if
// applicable and its offset. The source end is indicated by token.EOF.
func (s *Scanner) Scan() (tok token.Token, lit string, pos int) {
	s.skipWhitespace()
	pos = s.offset
	switch ch := s.ch; {
	case isLetter(ch):
		tok = token.IDENT
		lit = s.scanWhile(isLetter)
	case isDigit(ch):
		tok = token.INT
		lit = s.scanWhile(isDigit)
	default:
		s.next() // always make progress
		switch ch {
		case -1:
			tok = token.EOF
		case '-':
			tok = token.SUB
			lit = "-"
		default:
			s.error(pos, fmt.Sprintf("illegal character %#U", ch))
			tok = token.ILLEGAL
			lit = string(ch)
		}
	}
	return
}

func (s *Scanner) skipWhitespace() {
	for s.ch == ' ' || s.ch == '\t' || s.ch == '\r' || s.ch == '\n' {
		s.next()
	}
}

func (s *Scanner) scanWhile(f func(rune) bool) string {
	offs := s.offset
	for f(s.ch) {
		s.next()
	}
	return string(s.src[offs:s.offset])
}

// CLICK prefixes are plain ASCII, anything else is rejected as illegal.
func isLetter(ch rune) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z'
}

func isDigit(ch rune) bool {
	return '0' <= ch && ch <= '9'
}
