package click

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/RichiH/clickplc/address"
	"github.com/RichiH/clickplc/codec"
	"github.com/RichiH/clickplc/modbus"
	"github.com/RichiH/clickplc/tags"
)

func newTestDriver(t *testing.T, opts ...Option) (*Driver, *modbus.MemoryTransport) {
	t.Helper()
	mem := modbus.NewMemoryTransport()
	d := New(mem, opts...)
	t.Cleanup(func() { d.Close() })
	return d, mem
}

func mustGet(t *testing.T, d *Driver, expr string) interface{} {
	t.Helper()
	v, err := d.Get(context.Background(), expr)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func mustSet(t *testing.T, d *Driver, expr string, value interface{}) {
	t.Helper()
	if err := d.Set(context.Background(), expr, value); err != nil {
		t.Fatal(err)
	}
}

func expectValues(t *testing.T, got interface{}, keys []string, expected map[string]interface{}) {
	t.Helper()
	values, ok := got.(*Values)
	if !ok {
		t.Fatalf("expected *Values but got %T", got)
	}
	if values.Len() != len(keys) {
		t.Fatalf("expected %v entries but got %v: %v", len(keys), values.Len(), values.Keys())
	}
	for i, k := range values.Keys() {
		if k != keys[i] {
			t.Fatalf("expected key %v at %v but got %v", keys[i], i, k)
		}
		v, _ := values.Value(k)
		if v != expected[k] {
			t.Fatalf("%s: expected %v (%T) but got %v (%T)", k, expected[k], expected[k], v, v)
		}
	}
}

func TestCRoundTrip(t *testing.T) {
	d, _ := newTestDriver(t)
	mustSet(t, d, "c2", true)
	mustSet(t, d, "c3", []bool{false, true})
	expectValues(t, mustGet(t, d, "c1-c5"),
		[]string{"c1", "c2", "c3", "c4", "c5"},
		map[string]interface{}{"c1": false, "c2": true, "c3": false, "c4": true, "c5": false})

	mustSet(t, d, "c2000", true)
	if v := mustGet(t, d, "c2000"); v != true {
		t.Fatalf("expected true but got %v", v)
	}
}

func TestXYRoundTrip(t *testing.T) {
	for _, prefix := range []string{"x", "y"} {
		t.Run(prefix, func(t *testing.T) {
			d, _ := newTestDriver(t)
			mustSet(t, d, prefix+"1", []bool{false, true, false, true})
			expectValues(t, mustGet(t, d, prefix+"1-"+prefix+"4"),
				[]string{prefix + "001", prefix + "002", prefix + "003", prefix + "004"},
				map[string]interface{}{prefix + "001": false, prefix + "002": true, prefix + "003": false, prefix + "004": true})

			mustSet(t, d, prefix+"816", true)
			if v := mustGet(t, d, prefix+"816"); v != true {
				t.Fatalf("expected true but got %v", v)
			}
		})
	}
}

func TestXListCrossesGap(t *testing.T) {
	d, mem := newTestDriver(t)
	mustSet(t, d, "y15", []bool{true, true, true, true})

	values := mustGet(t, d, "y1-y116").(*Values)
	if values.Len() != 32 {
		t.Fatalf("expected 32 entries without gap addresses but got %v", values.Len())
	}
	for _, k := range []string{"y015", "y016", "y101", "y102"} {
		if v, _ := values.Value(k); v != true {
			t.Fatalf("%s: expected true", k)
		}
	}
	if v, _ := values.Value("y103"); v != false {
		t.Fatal("y103: expected false")
	}
	// y101 sits 32 coils after y001.
	if !mem.Bit(8192+32) || mem.Bit(8192+16) {
		t.Fatal("values not placed on the hundred-block coils")
	}
}

func TestSingleElementRange(t *testing.T) {
	d, _ := newTestDriver(t)
	mustSet(t, d, "c1", true)
	expectValues(t, mustGet(t, d, "c1-c1"), []string{"c1"}, map[string]interface{}{"c1": true})
	expectValues(t, mustGet(t, d, "df3-df3"), []string{"df3"}, map[string]interface{}{"df3": float32(0)})
}

func TestGapAddressesAbsent(t *testing.T) {
	d, _ := newTestDriver(t)
	values := mustGet(t, d, "x1-x816").(*Values)
	if values.Len() != 16*9 {
		t.Fatalf("expected %v entries but got %v", 16*9, values.Len())
	}
	for _, k := range values.Keys() {
		var n int
		fmt.Sscanf(k, "x%d", &n)
		if n%100 == 0 || n%100 > 16 {
			t.Fatalf("gap address %s returned", k)
		}
	}
}

func TestDFRoundTrip(t *testing.T) {
	d, _ := newTestDriver(t)
	mustSet(t, d, "df1", 0.0)
	mustSet(t, d, "df2", []float64{2.0, 3.0, 4.0, 0.0})
	expectValues(t, mustGet(t, d, "df1-df5"),
		[]string{"df1", "df2", "df3", "df4", "df5"},
		map[string]interface{}{"df1": float32(0), "df2": float32(2), "df3": float32(3), "df4": float32(4), "df5": float32(0)})

	mustSet(t, d, "df500", 1.0)
	if v := mustGet(t, d, "df500"); v != float32(1) {
		t.Fatalf("expected 1.0 but got %v", v)
	}
}

func TestDFIntegerCoercion(t *testing.T) {
	d, _ := newTestDriver(t)
	mustSet(t, d, "df2", 2)
	v := mustGet(t, d, "df2")
	if _, ok := v.(float32); !ok || v != float32(2) {
		t.Fatalf("expected float32 2.0 but got %v (%T)", v, v)
	}
}

func TestDFWireOrder(t *testing.T) {
	d, mem := newTestDriver(t)
	mustSet(t, d, "df1", float32(0.1))
	if mem.Word(28672) != 0xcccd || mem.Word(28673) != 0x3dcc {
		t.Fatalf("expected word swapped float, got %#04x %#04x", mem.Word(28672), mem.Word(28673))
	}
}

func TestDSRoundTrip(t *testing.T) {
	d, _ := newTestDriver(t)
	mustSet(t, d, "ds2", 2)
	mustSet(t, d, "ds3", []int{-32768, 32767})
	expectValues(t, mustGet(t, d, "ds1-ds5"),
		[]string{"ds1", "ds2", "ds3", "ds4", "ds5"},
		map[string]interface{}{"ds1": int16(0), "ds2": int16(2), "ds3": int16(-32768), "ds4": int16(32767), "ds5": int16(0)})

	mustSet(t, d, "ds4500", 4500)
	if v := mustGet(t, d, "ds4500"); v != int16(4500) {
		t.Fatalf("expected 4500 but got %v", v)
	}
}

func TestSDAndCTD(t *testing.T) {
	d, mem := newTestDriver(t)
	mem.SetWords(61440, 7)
	if v := mustGet(t, d, "sd1"); v != int16(7) {
		t.Fatalf("expected 7 but got %v", v)
	}

	mustSet(t, d, "ctd1", []int32{-1, 100000})
	expectValues(t, mustGet(t, d, "ctd1-ctd2"),
		[]string{"ctd1", "ctd2"},
		map[string]interface{}{"ctd1": int32(-1), "ctd2": int32(100000)})
	if mem.Word(49154) != uint16(100000&0xffff) || mem.Word(49155) != uint16(100000>>16) {
		t.Fatal("ctd2 not word swapped")
	}
}

func TestChunkTransparency(t *testing.T) {
	d, mem := newTestDriver(t)
	floats := make([]float32, 499)
	for i := range floats {
		floats[i] = float32(i) + 0.5
	}
	mustSet(t, d, "df1", floats)

	values := mustGet(t, d, "df1-df499").(*Values)
	for i, k := range values.Keys() {
		if v, _ := values.Value(k); v != floats[i] {
			t.Fatalf("%s: expected %v but got %v", k, floats[i], v)
		}
	}
	for i := range floats {
		w := []uint16{mem.Word(uint16(28672 + 2*i)), mem.Word(uint16(28673 + 2*i))}
		v, _ := codec.Decode(w, "float32")
		if v != floats[i] {
			t.Fatalf("register content differs at df%d", i+1)
		}
	}

	bits := make([]bool, 1999)
	for i := range bits {
		bits[i] = i%3 == 0
	}
	mustSet(t, d, "c1", bits)
	cs := mustGet(t, d, "c1-c2000").(*Values)
	if cs.Len() != 2000 {
		t.Fatalf("expected 2000 entries but got %v", cs.Len())
	}
	for i, k := range cs.Keys()[:len(bits)] {
		if v, _ := cs.Value(k); v != bits[i] {
			t.Fatalf("%s: expected %v", k, bits[i])
		}
	}
	if v, _ := cs.Value("c2000"); v != false {
		t.Fatalf("c2000: expected false but got %v", v)
	}
}

func TestIdempotentGet(t *testing.T) {
	d, _ := newTestDriver(t)
	mustSet(t, d, "ds1", []int{1, 2, 3})
	a, _ := json.Marshal(mustGet(t, d, "ds1-ds10"))
	b, _ := json.Marshal(mustGet(t, d, "ds1-ds10"))
	if string(a) != string(b) {
		t.Fatalf("expected identical results, got %s and %s", a, b)
	}
}

func TestGetErrors(t *testing.T) {
	d, mem := newTestDriver(t)
	tests := []struct {
		expr  string
		check func(error) bool
		msg   string
	}{
		{"", func(err error) bool { return err == ErrNoAddress }, "an address must be supplied"},
		{"c3-c1", as(new(*address.InvalidRangeError)), "end address must be greater than start address"},
		{"foo1", as(new(*address.UnknownCategoryError)), "foo currently unsupported"},
		{"c1-x3", as(new(*address.InterCategoryRangeError)), "inter-category ranges are unsupported"},
		{"x17", as(new(*address.AddressOutOfRangeError)), "X start address must be *01-*16"},
		{"y1-y1001", as(new(*address.AddressOutOfRangeError)), "Y end address must be in [001, 816]"},
		{"df1-df501", as(new(*address.AddressOutOfRangeError)), "DF end address must be in [1, 500]"},
		{"ctd251", as(new(*address.AddressOutOfRangeError)), "CTD start address must be in [1, 250]"},
	}
	for _, test := range tests {
		t.Run(test.expr, func(t *testing.T) {
			_, err := d.Get(context.Background(), test.expr)
			if err == nil || !test.check(err) {
				t.Fatalf("unexpected error %T: %v", err, err)
			}
			if !strings.Contains(err.Error(), test.msg) {
				t.Fatalf("expected %q in %q", test.msg, err)
			}
		})
	}
	if mem.Requests() != 0 {
		t.Fatalf("validation errors must not reach the device, got %v requests", mem.Requests())
	}

	if _, err := d.Get(context.Background(), "x101"); err != nil {
		t.Fatal(err)
	}
}

func TestSetErrors(t *testing.T) {
	d, mem := newTestDriver(t)
	tests := []struct {
		name  string
		expr  string
		value interface{}
		check func(error) bool
		msg   string
	}{
		{"unknown", "foo1", 1, as(new(*address.UnknownCategoryError)), "foo currently unsupported"},
		{"y gap", "y17", true, as(new(*address.AddressOutOfRangeError)), "*01-*16"},
		{"y bound", "y1001", true, as(new(*address.AddressOutOfRangeError)), "[001, 816]"},
		{"y capacity", "y816", []bool{true, true}, as(new(*CapacityError)), "data list longer than available addresses"},
		{"c capacity", "c2000", []bool{true, true}, as(new(*CapacityError)), "data list longer than available addresses"},
		{"df bound", "df501", 1.0, as(new(*address.AddressOutOfRangeError)), "DF start address must be in [1, 500]"},
		{"df capacity", "df500", []float64{1, 2}, as(new(*CapacityError)), "data list longer than available addresses"},
		{"df list at last", "df499", []float64{1, 2}, as(new(*CapacityError)), "data list longer than available addresses"},
		{"df single element list", "df500", []float64{1}, as(new(*CapacityError)), "data list longer than available addresses"},
		{"ds capacity", "ds4500", []int{1, 2}, as(new(*CapacityError)), "data list longer than available addresses"},
		{"range", "c1-c3", true, as(new(*address.SyntaxError)), "got a range"},
		{"df bool", "df1", true, as(new(*TypeMismatchError)), "expected df1 as a float, got bool"},
		{"c int", "c1", 1, as(new(*TypeMismatchError)), "expected c1 as a bool, got int"},
		{"ds float", "ds1", 1.5, as(new(*TypeMismatchError)), "expected ds1 as a int, got float64"},
		{"ds list element", "ds1", []interface{}{1, "2"}, as(new(*TypeMismatchError)), "expected ds2 as a int, got string"},
		{"ds overflow", "ds1", 40000, as(new(*codec.EncodingError)), "out of range"},
		{"empty list", "ds1", []int{}, func(err error) bool { return err != nil }, "no values supplied"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := d.Set(context.Background(), test.expr, test.value)
			if err == nil || !test.check(err) {
				t.Fatalf("unexpected error %T: %v", err, err)
			}
			if !strings.Contains(err.Error(), test.msg) {
				t.Fatalf("expected %q in %q", test.msg, err)
			}
		})
	}
	if mem.Requests() != 0 {
		t.Fatalf("validation errors must not reach the device, got %v requests", mem.Requests())
	}
}

func TestCapacityBoundary(t *testing.T) {
	d, _ := newTestDriver(t)
	tests := []struct {
		expr  string
		value interface{}
		ok    bool
	}{
		{"df499", []float64{1}, true},
		{"df499", []float64{1, 2}, false},
		{"df500", 1.0, true},
		{"x815", []bool{true}, true},
		{"x815", []bool{true, true}, false},
		{"x816", true, true},
		{"x716", make([]bool, 16), true},
		{"x716", make([]bool, 17), false},
		{"c1", make([]bool, 1999), true},
		{"c1", make([]bool, 2000), false},
	}
	for _, test := range tests {
		err := d.Set(context.Background(), test.expr, test.value)
		if test.ok && err != nil {
			t.Errorf("%s: %v", test.expr, err)
		}
		var ce *CapacityError
		if !test.ok && !errors.As(err, &ce) {
			t.Errorf("%s: expected CapacityError but got %v", test.expr, err)
		}
	}
}

func TestTaggedDriver(t *testing.T) {
	r, err := tags.Load("../tags/testdata/plc_tags.csv")
	if err != nil {
		t.Fatal(err)
	}
	d, mem := newTestDriver(t, WithTags(r))

	mustSet(t, d, "VAH_101_OK", true)
	mustSet(t, d, "TI_101", 21)
	mustSet(t, d, "timer", 42)
	mem.SetWords(61440, 3)

	state, ok := mustGet(t, d, "").(*Values)
	if !ok {
		t.Fatal("expected *Values for the tag dump")
	}
	if state.Len() != len(r) {
		t.Fatalf("expected %v values but got %v", len(r), state.Len())
	}
	checks := map[string]interface{}{
		"VAH_101_OK":     true,
		"VAHH_101_OK":    false,
		"TI_101":         float32(21),
		"timer":          int32(42),
		"PLC_Error_Code": int16(3),
		"P_101":          false,
	}
	for name, expected := range checks {
		if v, _ := state.Value(name); v != expected {
			t.Fatalf("%s: expected %v but got %v", name, expected, v)
		}
	}
	if state.Keys()[0] != "P_101" {
		t.Fatalf("expected tag order by address, got %v", state.Keys())
	}
	if v := mustGet(t, d, "TI_101"); v != float32(21) {
		t.Fatalf("expected 21 but got %v", v)
	}

	err = d.Set(context.Background(), "VAH_101_OK", 1.0)
	var terr *TypeMismatchError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TypeMismatchError but got %v", err)
	}

	tagsCopy := d.Tags()
	delete(tagsCopy, "timer")
	if _, ok := d.Tags()["timer"]; !ok {
		t.Fatal("Tags must return a copy")
	}
}

func TestCloseReconnects(t *testing.T) {
	d, mem := newTestDriver(t)
	if err := d.Set(context.Background(), "ds1", 1); err != nil {
		t.Fatal(err)
	}
	d.Close()
	if d.State() != modbus.StateDisconnected {
		t.Fatalf("expected disconnected after close but got %v", d.State())
	}
	if _, err := d.Get(context.Background(), "ds1"); err != nil {
		t.Fatalf("expected a reconnect after close, got %v", err)
	}
	if mem.Connects() != 2 {
		t.Fatalf("expected 2 connects but got %v", mem.Connects())
	}
}

func TestGetRanges(t *testing.T) {
	d, mem := newTestDriver(t)
	mustSet(t, d, "c1", true)
	mustSet(t, d, "ds2", 7)
	mustSet(t, d, "x101", true)

	values, err := d.GetRanges(context.Background(), "c1-c2", "ds2", "x016-x101")
	if err != nil {
		t.Fatal(err)
	}
	expectValues(t, values,
		[]string{"c1", "c2", "ds2", "x016", "x101"},
		map[string]interface{}{"c1": true, "c2": false, "ds2": int16(7), "x016": false, "x101": true})

	before := mem.Requests()
	if _, err := d.GetRanges(context.Background(), "c1-c2", "c3-c1"); !as(new(*address.InvalidRangeError))(err) {
		t.Fatalf("expected InvalidRangeError but got %v", err)
	}
	if mem.Requests() != before {
		t.Fatal("an invalid range must fail before any request")
	}
}

func TestValuesJSON(t *testing.T) {
	v := newValues(3)
	v.add("x016", true)
	v.add("x101", false)
	v.add("df1", float32(0.1))
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	expected := `{"x016":true,"x101":false,"df1":0.1}`
	if string(b) != expected {
		t.Fatalf("expected %s but got %s", expected, b)
	}
}

// as returns a predicate matching errors assignable to target.
func as(target interface{}) func(error) bool {
	return func(err error) bool { return errors.As(err, target) }
}
