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

// Package config contains all the configuration related components
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	multierror "github.com/hashicorp/go-multierror"
)

const (
	// DefaultUnitID is the Modbus unit id CLICK CPUs answer to out of the box.
	DefaultUnitID = 1
	// DefaultTimeout is the per request timeout in milliseconds.
	DefaultTimeout = 1000
)

// DefaultRanges are exported when neither a tags file nor ranges are
// configured.
var DefaultRanges = []string{
	"x001-x816",
	"y001-y816",
	"c1-c100",
	"df1-df100",
	"ds1-ds100",
	"ctd1-ctd250",
}

// Config represents the configuration of the clickplc exporter.
type Config struct {
	// Target is the host:port of the PLC's Modbus TCP server.
	Target string `yaml:"target"`

	// UnitID is the Modbus unit (slave) id sent with every request.
	UnitID byte `yaml:"unitID"`

	// Timeout per request in milliseconds.
	Timeout int `yaml:"timeout"`

	// TagsFile is an optional CLICK nickname export. When set, the exporter
	// publishes every nicknamed address instead of Ranges.
	TagsFile string `yaml:"tagsFile"`

	// Ranges are notation ranges, e.g. "df1-df20".
	Ranges []string `yaml:"ranges"`
}

// TimeoutDuration returns the configured timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

func (c *Config) setDefaults() {
	if c.UnitID == 0 {
		c.UnitID = DefaultUnitID
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.TagsFile == "" && len(c.Ranges) == 0 {
		c.Ranges = append([]string(nil), DefaultRanges...)
	}
}

// validate semantically validates the given config, reporting every problem
// found rather than the first one.
func (c *Config) validate() error {
	var err error

	if c.Target == "" {
		err = multierror.Append(err, fmt.Errorf("target must be specified"))
	} else if terr := CheckTarget(c.Target); terr != nil {
		err = multierror.Append(err, terr)
	}

	if c.Timeout < 0 {
		err = multierror.Append(err, fmt.Errorf("invalid negative timeout %d", c.Timeout))
	}

	for i, r := range c.Ranges {
		if strings.TrimSpace(r) == "" {
			err = multierror.Append(err, fmt.Errorf("range %d is empty", i))
		}
	}

	return err
}

// TargetValidationError is returned on targets that are not a valid
// host:port pair.
type TargetValidationError struct {
	e string
}

// Error implements the Golang error interface.
func (e *TargetValidationError) Error() string {
	return e.e
}

// CheckTarget verifies s is a host:port pair usable as a Modbus TCP target.
func CheckTarget(s string) error {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return &TargetValidationError{fmt.Sprintf("invalid target %q: %v", s, err)}
	}
	if host == "" {
		return &TargetValidationError{fmt.Sprintf("invalid target %q: missing host", s)}
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 1 || p > 65535 {
		return &TargetValidationError{fmt.Sprintf("invalid target %q: bad port %q", s, port)}
	}
	return nil
}

// WithDefaultPort appends the Modbus TCP port to addr when it has none.
func WithDefaultPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, "502")
}
