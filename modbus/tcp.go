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

package modbus

import (
	"fmt"
	"time"

	"github.com/goburrow/modbus"
)

const (
	coilOn  uint16 = 0xFF00
	coilOff uint16 = 0x0000
)

// TCPTransport is a Conn speaking Modbus TCP to a CLICK CPU. Coils are read
// with FC 1 and registers with FC 3, the functions CLICK maps every category
// onto.
type TCPTransport struct {
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

// NewTCPTransport returns an unconnected transport for the host:port target.
// timeout bounds dialing and every request on the socket.
func NewTCPTransport(target string, unitID byte, timeout time.Duration) *TCPTransport {
	handler := modbus.NewTCPClientHandler(target)
	if timeout != 0 {
		handler.Timeout = timeout
	}
	handler.SlaveId = unitID
	return &TCPTransport{
		handler: handler,
		client:  modbus.NewClient(handler),
	}
}

// Connect starts the connection
func (t *TCPTransport) Connect() error {
	return t.handler.Connect()
}

// Close closes the connection
func (t *TCPTransport) Close() error {
	return t.handler.Close()
}

// ReadBits reads count coils starting at addr.
func (t *TCPTransport) ReadBits(addr, count uint16) ([]bool, error) {
	modBytes, err := t.client.ReadCoils(addr, count)
	if err != nil {
		return nil, err
	}
	if len(modBytes) < (int(count)+7)/8 {
		return nil, fmt.Errorf("short coil response: expected %v bytes, got %v", (int(count)+7)/8, len(modBytes))
	}
	return unpackBits(modBytes, int(count)), nil
}

// ReadWords reads count holding registers starting at addr.
func (t *TCPTransport) ReadWords(addr, count uint16) ([]uint16, error) {
	modBytes, err := t.client.ReadHoldingRegisters(addr, count)
	if err != nil {
		return nil, err
	}
	if len(modBytes) < 2*int(count) {
		return nil, fmt.Errorf("short register response: expected %v bytes, got %v", 2*int(count), len(modBytes))
	}
	return unpackRegisters(modBytes, int(count)), nil
}

// WriteBit forces a single coil (FC 5).
func (t *TCPTransport) WriteBit(addr uint16, v bool) error {
	value := coilOff
	if v {
		value = coilOn
	}
	_, err := t.client.WriteSingleCoil(addr, value)
	return err
}

// WriteBits forces consecutive coils (FC 15).
func (t *TCPTransport) WriteBits(addr uint16, values []bool) error {
	_, err := t.client.WriteMultipleCoils(addr, uint16(len(values)), packBits(values))
	return err
}

// WriteWord presets a single register (FC 6).
func (t *TCPTransport) WriteWord(addr uint16, v uint16) error {
	_, err := t.client.WriteSingleRegister(addr, v)
	return err
}

// WriteWords presets consecutive registers (FC 16).
func (t *TCPTransport) WriteWords(addr uint16, values []uint16) error {
	_, err := t.client.WriteMultipleRegisters(addr, uint16(len(values)), packRegisters(values))
	return err
}

// packBits packs coils LSB first, eight per byte.
func packBits(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, v := range bits {
		if v {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

func unpackBits(b []byte, count int) []bool {
	out := make([]bool, count)
	for i := 0; i < count; i++ {
		out[i] = b[i/8]&(1<<uint(i%8)) != 0
	}
	return out
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}

func unpackRegisters(b []byte, count int) []uint16 {
	out := make([]uint16, count)
	for i := 0; i < count; i++ {
		out[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return out
}
