package modbus

import (
	"net"
	"sync"

	"github.com/goburrow/modbus"
)

// Per request limits of the Modbus application protocol.
const (
	MaxReadBits   = 2000 // max coils for a digital query
	MaxReadWords  = 125  // max registers for an analog query
	MaxWriteBits  = 1968
	MaxWriteWords = 123
)

// MemoryTransport is an in-memory Conn standing in for a CLICK CPU. It keeps
// both Modbus spaces in maps, defaulting to zero, and answers requests that
// break the protocol limits with an illegal data value exception.
type MemoryTransport struct {
	mu        sync.Mutex
	coils     map[uint16]bool
	registers map[uint16]uint16
	connected bool
	connects  int
	requests  int
}

// NewMemoryTransport returns an empty, unconnected MemoryTransport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		coils:     make(map[uint16]bool),
		registers: make(map[uint16]uint16),
	}
}

// Connect marks the transport connected.
func (m *MemoryTransport) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	m.connects++
	return nil
}

// Close marks the transport disconnected. Later requests fail until the next
// Connect.
func (m *MemoryTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// Connects returns how many times Connect was called.
func (m *MemoryTransport) Connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

// Requests returns how many requests were served or rejected.
func (m *MemoryTransport) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

// SetBits seeds coils without counting as a request.
func (m *MemoryTransport) SetBits(addr uint16, values ...bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, v := range values {
		m.coils[addr+uint16(i)] = v
	}
}

// SetWords seeds registers without counting as a request.
func (m *MemoryTransport) SetWords(addr uint16, values ...uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, v := range values {
		m.registers[addr+uint16(i)] = v
	}
}

// Bit returns the coil at addr.
func (m *MemoryTransport) Bit(addr uint16) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coils[addr]
}

// Word returns the register at addr.
func (m *MemoryTransport) Word(addr uint16) uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registers[addr]
}

// request checks the connection and the quantity limit of one request. The
// caller holds m.mu.
func (m *MemoryTransport) request(fc byte, addr uint16, count, limit int) error {
	m.requests++
	if !m.connected {
		return &net.OpError{Op: "request", Net: "memory", Err: net.ErrClosed}
	}
	if count < 1 || count > limit {
		return &modbus.ModbusError{FunctionCode: fc | 0x80, ExceptionCode: modbus.ExceptionCodeIllegalDataValue}
	}
	if int(addr)+count > 0x10000 {
		return &modbus.ModbusError{FunctionCode: fc | 0x80, ExceptionCode: modbus.ExceptionCodeIllegalDataAddress}
	}
	return nil
}

// ReadBits implements Transport.
func (m *MemoryTransport) ReadBits(addr, count uint16) ([]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.request(modbus.FuncCodeReadCoils, addr, int(count), MaxReadBits); err != nil {
		return nil, err
	}
	out := make([]bool, count)
	for i := range out {
		out[i] = m.coils[addr+uint16(i)]
	}
	return out, nil
}

// ReadWords implements Transport.
func (m *MemoryTransport) ReadWords(addr, count uint16) ([]uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.request(modbus.FuncCodeReadHoldingRegisters, addr, int(count), MaxReadWords); err != nil {
		return nil, err
	}
	out := make([]uint16, count)
	for i := range out {
		out[i] = m.registers[addr+uint16(i)]
	}
	return out, nil
}

// WriteBit implements Transport.
func (m *MemoryTransport) WriteBit(addr uint16, v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.request(modbus.FuncCodeWriteSingleCoil, addr, 1, 1); err != nil {
		return err
	}
	m.coils[addr] = v
	return nil
}

// WriteBits implements Transport.
func (m *MemoryTransport) WriteBits(addr uint16, values []bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.request(modbus.FuncCodeWriteMultipleCoils, addr, len(values), MaxWriteBits); err != nil {
		return err
	}
	for i, v := range values {
		m.coils[addr+uint16(i)] = v
	}
	return nil
}

// WriteWord implements Transport.
func (m *MemoryTransport) WriteWord(addr uint16, v uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.request(modbus.FuncCodeWriteSingleRegister, addr, 1, 1); err != nil {
		return err
	}
	m.registers[addr] = v
	return nil
}

// WriteWords implements Transport.
func (m *MemoryTransport) WriteWords(addr uint16, values []uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.request(modbus.FuncCodeWriteMultipleRegisters, addr, len(values), MaxWriteWords); err != nil {
		return err
	}
	for i, v := range values {
		m.registers[addr+uint16(i)] = v
	}
	return nil
}
