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

// Command fake_server serves a Modbus TCP device laid out like a CLICK PLC,
// for trying the clickplc commands without hardware:
//
//	clickplc --unit-id=1 get 127.0.0.1:1502 df1-df3
package main

import (
	"flag"
	"os"
	"os/signal"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/tbrandon/mbserver"

	"github.com/RichiH/clickplc/codec"
	"github.com/RichiH/clickplc/config"
	"github.com/RichiH/clickplc/parser"
)

var listenAddress = flag.String("listen-address", "127.0.0.1:1502", "The address to serve Modbus TCP on.")

// seed holds the initial values, keyed by CLICK address.
var seed = []struct {
	addr  string
	value interface{}
}{
	{"x001", true},
	{"x101", true},
	{"y001", true},
	{"c1", true},
	{"c10", true},
	{"ds1", int16(240)},
	{"ds2", int16(250)},
	{"ds100", int16(-1)},
	{"df1", float32(0.1)},
	{"df2", float32(21.5)},
	{"ctd1", int32(100000)},
	{"sd1", int16(7)},
}

func main() {
	flag.Parse()
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))

	serv := mbserver.NewServer()
	for _, s := range seed {
		if err := store(serv, s.addr, s.value); err != nil {
			level.Error(logger).Log("msg", "failed to seed", "address", s.addr, "err", err)
			os.Exit(1)
		}
	}

	if err := serv.ListenTCP(*listenAddress); err != nil {
		level.Error(logger).Log("err", err)
		os.Exit(1)
	}
	defer serv.Close()
	level.Info(logger).Log("msg", "listening", "address", *listenAddress)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
}

// store writes value at the Modbus location of addr.
func store(serv *mbserver.Server, addr string, value interface{}) error {
	rule, index, err := parser.ParseAddress(addr)
	if err != nil {
		return err
	}
	flat := rule.FlatAddress(index)
	if rule.Space == config.Coils {
		if value.(bool) {
			serv.Coils[flat] = 1
		}
		return nil
	}
	words, err := codec.Encode(value, rule.Type)
	if err != nil {
		return err
	}
	copy(serv.HoldingRegisters[flat:], words)
	return nil
}
