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

// Package glog manages the logging of scrape errors, so that a PLC which
// stays unreachable doesn't log the same error on every scrape.
package glog

import (
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// ErrorLogger logs errors at error level, dropping repeats of a message seen
// within the interval.
type ErrorLogger struct {
	logger   log.Logger
	interval time.Duration
	now      func() time.Time

	mtx       sync.Mutex
	trackLogs map[string]time.Time
}

// New returns an ErrorLogger writing to logger.
func New(logger log.Logger, interval time.Duration) *ErrorLogger {
	return &ErrorLogger{
		logger:    logger,
		interval:  interval,
		now:       time.Now,
		trackLogs: make(map[string]time.Time),
	}
}

// Error logs err with keyvals and reports whether it was written.
func (l *ErrorLogger) Error(err error, keyvals ...interface{}) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	now := l.now()

	l.mtx.Lock()
	t, ok := l.trackLogs[msg]
	l.trackLogs[msg] = now
	l.mtx.Unlock()

	// logs the error if it has not been logged yet or if it didn't happen
	// during the last interval.
	if ok && now.Sub(t) < l.interval {
		return false
	}
	level.Error(l.logger).Log(append([]interface{}{"err", msg}, keyvals...)...)
	return true
}

// Reset forgets every tracked error, typically after a successful scrape.
func (l *ErrorLogger) Reset() {
	l.mtx.Lock()
	l.trackLogs = make(map[string]time.Time)
	l.mtx.Unlock()
}
