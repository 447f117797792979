// Package modbus contains all the modbus related components: device
// transports, request chunking and the request serializer guarding a single
// connection.
package modbus

// Transport issues single Modbus requests against the flat coil and holding
// register spaces. Implementations don't split requests; see Adapter.
type Transport interface {
	ReadBits(addr, count uint16) ([]bool, error)
	ReadWords(addr, count uint16) ([]uint16, error)
	WriteBit(addr uint16, v bool) error
	WriteBits(addr uint16, values []bool) error
	WriteWord(addr uint16, v uint16) error
	WriteWords(addr uint16, values []uint16) error
}

// Conn is a Transport owning a connection to the device.
type Conn interface {
	Transport
	Connect() error
	Close() error
}
