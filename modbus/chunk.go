package modbus

import "fmt"

// chunk is one protocol legal slice of a larger request, in elements relative
// to the first address.
type chunk struct {
	offset int
	size   int
}

// chunks splits count elements into requests of at most limit elements. The
// limit is rounded down to a multiple of width so that no value straddles two
// requests.
func chunks(count, limit, width int) []chunk {
	if width < 1 {
		width = 1
	}
	limit -= limit % width
	var out []chunk
	for offset := 0; offset < count; offset += limit {
		size := count - offset
		if size > limit {
			size = limit
		}
		out = append(out, chunk{offset, size})
	}
	return out
}

// Adapter splits over-sized requests into sequential chunks in ascending
// address order. It neither retries nor reorders; the first error aborts the
// sequence and is returned unchanged.
type Adapter struct {
	t Transport
}

// NewAdapter returns an Adapter issuing its requests on t.
func NewAdapter(t Transport) *Adapter {
	return &Adapter{t: t}
}

func checkSpan(addr, count int) error {
	if addr < 0 || count < 0 || addr+count > 0x10000 {
		return fmt.Errorf("request of %d elements at %d leaves the 16 bit address space", count, addr)
	}
	return nil
}

// ReadBits reads count coils starting at addr.
func (a *Adapter) ReadBits(addr, count int) ([]bool, error) {
	if err := checkSpan(addr, count); err != nil {
		return nil, err
	}
	out := make([]bool, 0, count)
	for _, c := range chunks(count, MaxReadBits, 1) {
		bits, err := a.t.ReadBits(uint16(addr+c.offset), uint16(c.size))
		if err != nil {
			return nil, err
		}
		out = append(out, bits...)
	}
	return out, nil
}

// ReadWords reads count registers starting at addr, keeping values of width
// registers inside a single request.
func (a *Adapter) ReadWords(addr, count, width int) ([]uint16, error) {
	if err := checkSpan(addr, count); err != nil {
		return nil, err
	}
	out := make([]uint16, 0, count)
	for _, c := range chunks(count, MaxReadWords, width) {
		words, err := a.t.ReadWords(uint16(addr+c.offset), uint16(c.size))
		if err != nil {
			return nil, err
		}
		out = append(out, words...)
	}
	return out, nil
}

// WriteBit forces a single coil.
func (a *Adapter) WriteBit(addr int, v bool) error {
	if err := checkSpan(addr, 1); err != nil {
		return err
	}
	return a.t.WriteBit(uint16(addr), v)
}

// WriteWord presets a single register.
func (a *Adapter) WriteWord(addr int, v uint16) error {
	if err := checkSpan(addr, 1); err != nil {
		return err
	}
	return a.t.WriteWord(uint16(addr), v)
}

// WriteBits forces consecutive coils starting at addr.
func (a *Adapter) WriteBits(addr int, bits []bool) error {
	if err := checkSpan(addr, len(bits)); err != nil {
		return err
	}
	for _, c := range chunks(len(bits), MaxWriteBits, 1) {
		if err := a.t.WriteBits(uint16(addr+c.offset), bits[c.offset:c.offset+c.size]); err != nil {
			return err
		}
	}
	return nil
}

// WriteWords presets consecutive registers starting at addr, keeping values
// of width registers inside a single request.
func (a *Adapter) WriteWords(addr int, words []uint16, width int) error {
	if err := checkSpan(addr, len(words)); err != nil {
		return err
	}
	for _, c := range chunks(len(words), MaxWriteWords, width) {
		if err := a.t.WriteWords(uint16(addr+c.offset), words[c.offset:c.offset+c.size]); err != nil {
			return err
		}
	}
	return nil
}

// PadHundredBlocks lays out values destined for consecutive hundred-block
// indices starting at index start (e.g. 101 for x101). Sixteen false gap
// coils are inserted after every *16 that is followed by more values.
func PadHundredBlocks(start int, values []bool) []bool {
	out := make([]bool, 0, len(values)+16*(len(values)/16+1))
	pos := start % 100
	for i, v := range values {
		out = append(out, v)
		if pos == 16 && i < len(values)-1 {
			out = append(out, make([]bool, 16)...)
			pos = 1
			continue
		}
		pos++
	}
	return out
}
