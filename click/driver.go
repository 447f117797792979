// Package click exposes the memory of a CLICK PLC in its own notation
// ("x101", "df1-df40", nicknames) on top of a single Modbus connection.
package click

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/RichiH/clickplc/address"
	"github.com/RichiH/clickplc/codec"
	"github.com/RichiH/clickplc/config"
	"github.com/RichiH/clickplc/modbus"
	"github.com/RichiH/clickplc/parser"
	"github.com/RichiH/clickplc/tags"
)

type options struct {
	timeout time.Duration
	unitID  byte
	logger  log.Logger
	metrics *modbus.Metrics
	tags    tags.Registry
}

// Option configures a Driver.
type Option func(*options)

// WithTimeout sets the per request timeout, one second by default.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithUnitID sets the Modbus unit id used by Dial.
func WithUnitID(id byte) Option {
	return func(o *options) { o.unitID = id }
}

// WithLogger sets the logger for connection and write events.
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics reports request telemetry to m.
func WithMetrics(m *modbus.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTags makes the nicknames of r usable in Get and Set.
func WithTags(r tags.Registry) Option {
	return func(o *options) { o.tags = r }
}

// Driver reads and writes CLICK addresses. It is safe for concurrent use;
// all calls share one connection and are served in arrival order.
type Driver struct {
	ser    *modbus.Serializer
	tags   tags.Registry
	logger log.Logger
}

// New returns a Driver using conn. The connection is opened on first use or
// by Open.
func New(conn modbus.Conn, opts ...Option) *Driver {
	o := options{
		timeout: modbus.DefaultTimeout,
		unitID:  config.DefaultUnitID,
		logger:  log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Driver{
		ser: modbus.NewSerializer(conn,
			modbus.WithTimeout(o.timeout),
			modbus.WithLogger(o.logger),
			modbus.WithMetrics(o.metrics),
		),
		tags:   o.tags,
		logger: o.logger,
	}
}

// Dial returns a Driver for the Modbus TCP server at target. Port 502 is
// assumed when target has none. No connection is made until first use.
func Dial(target string, opts ...Option) (*Driver, error) {
	target = config.WithDefaultPort(target)
	if err := config.CheckTarget(target); err != nil {
		return nil, err
	}
	o := options{timeout: modbus.DefaultTimeout, unitID: config.DefaultUnitID}
	for _, opt := range opts {
		opt(&o)
	}
	conn := modbus.NewTCPTransport(target, o.unitID, o.timeout)
	return New(conn, opts...), nil
}

// Open connects to the PLC unless already connected.
func (d *Driver) Open(ctx context.Context) error {
	return d.ser.Open(ctx)
}

// Close releases the connection. A later call reconnects.
func (d *Driver) Close() error {
	return d.ser.Close()
}

// State returns the connection state.
func (d *Driver) State() modbus.State {
	return d.ser.State()
}

// Tags returns a copy of the tag registry.
func (d *Driver) Tags() tags.Registry {
	out := make(tags.Registry, len(d.tags))
	for k, v := range d.tags {
		out[k] = v
	}
	return out
}

// Get reads expr. A single address or nickname yields a bool, int16, int32
// or float32; a range yields *Values keyed by notation address with the X/Y
// gaps left out. An empty expr reads every tag, keyed by nickname.
func (d *Driver) Get(ctx context.Context, expr string) (interface{}, error) {
	if expr == "" {
		if len(d.tags) == 0 {
			return nil, ErrNoAddress
		}
		return d.getTags(ctx)
	}

	var r address.Range
	if tag, ok := d.tags[expr]; ok {
		r = address.Range{Rule: tag.Rule, Start: tag.Index, End: tag.Index, Single: true}
	} else {
		var err error
		if r, err = parser.Parse(expr); err != nil {
			return nil, err
		}
	}

	values, err := d.readRange(ctx, r)
	if err != nil {
		return nil, err
	}
	if r.Single {
		v, _ := values.Value(r.Rule.Format(r.Start))
		return v, nil
	}
	return values, nil
}

// GetRanges reads every notation expression in exprs and merges the results
// into one mapping keyed by address. All expressions are validated before
// the first request is sent.
func (d *Driver) GetRanges(ctx context.Context, exprs ...string) (*Values, error) {
	ranges := make([]address.Range, 0, len(exprs))
	for _, expr := range exprs {
		r, err := parser.Parse(expr)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}

	out := newValues(0)
	for _, r := range ranges {
		values, err := d.readRange(ctx, r)
		if err != nil {
			return nil, err
		}
		out.Merge(values)
	}
	return out, nil
}

// getTags reads one range per category spanning all of its tags.
func (d *Driver) getTags(ctx context.Context) (*Values, error) {
	spans := make(map[address.Category]*address.Range)
	for _, tag := range d.tags {
		r, ok := spans[tag.Rule.Category]
		if !ok {
			spans[tag.Rule.Category] = &address.Range{Rule: tag.Rule, Start: tag.Index, End: tag.Index}
			continue
		}
		if tag.Index < r.Start {
			r.Start = tag.Index
		}
		if tag.Index > r.End {
			r.End = tag.Index
		}
	}

	categories := make([]address.Category, 0, len(spans))
	for c := range spans {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	read := newValues(0)
	for _, c := range categories {
		values, err := d.readRange(ctx, *spans[c])
		if err != nil {
			return nil, err
		}
		read.Merge(values)
	}

	names := d.tags.Nicknames()
	out := newValues(len(names))
	for _, name := range names {
		tag := d.tags[name]
		v, _ := read.Value(tag.Rule.Format(tag.Index))
		out.add(name, v)
	}
	return out, nil
}

func (d *Driver) readRange(ctx context.Context, r address.Range) (*Values, error) {
	rule := r.Rule
	indices := r.Indices()
	out := newValues(len(indices))

	err := d.ser.Do(ctx, func(t modbus.Transport) error {
		a := modbus.NewAdapter(t)
		switch rule.Space {
		case config.Coils:
			bits, err := a.ReadBits(r.FlatStart(), r.Span())
			if err != nil {
				return err
			}
			for _, n := range indices {
				out.add(rule.Format(n), bits[r.Offset(n)])
			}
		case config.Registers:
			// Register categories have no gaps: one value per index.
			words, err := a.ReadWords(r.FlatStart(), r.Span(), rule.Width())
			if err != nil {
				return err
			}
			vals, err := codec.DecodeAll(words, rule.Type)
			if err != nil {
				return err
			}
			for i, n := range indices {
				out.add(rule.Format(n), vals[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %v: %w", r, err)
	}
	return out, nil
}

// Set writes value, a single value or a slice of values, starting at expr,
// a notation address or nickname. Lists continue over consecutive valid
// addresses, skipping X/Y gaps. Values are checked against the address type
// before anything is sent: bool addresses take bool, integer addresses take
// Go integers and float addresses take floats or integers.
func (d *Driver) Set(ctx context.Context, expr string, value interface{}) error {
	var (
		rule  address.Rule
		index int
	)
	if tag, ok := d.tags[expr]; ok {
		rule, index = tag.Rule, tag.Index
	} else {
		var err error
		if rule, index, err = parser.ParseAddress(expr); err != nil {
			return err
		}
	}

	values, single := flatten(value)
	if len(values) == 0 {
		return fmt.Errorf("no values supplied for %s", rule.Format(index))
	}
	if available := rule.Capacity(index); !single && len(values) > available {
		return &CapacityError{Start: rule.Format(index), Count: len(values), Available: available}
	}

	n := index
	for i, v := range values {
		if i > 0 {
			n = rule.Next(n)
		}
		if err := checkType(rule, n, v); err != nil {
			return err
		}
	}

	level.Debug(d.logger).Log("msg", "writing", "address", rule.Format(index), "count", len(values))

	flat := rule.FlatAddress(index)
	if rule.Space == config.Coils {
		bits := make([]bool, len(values))
		for i, v := range values {
			bits[i] = v.(bool)
		}
		if rule.HundredBlock {
			bits = modbus.PadHundredBlocks(index, bits)
		}
		return d.do(ctx, rule.Format(index), func(a *modbus.Adapter) error {
			if single {
				return a.WriteBit(flat, bits[0])
			}
			return a.WriteBits(flat, bits)
		})
	}

	words := make([]uint16, 0, len(values)*rule.Width())
	for _, v := range values {
		w, err := codec.Encode(v, rule.Type)
		if err != nil {
			return err
		}
		words = append(words, w...)
	}
	return d.do(ctx, rule.Format(index), func(a *modbus.Adapter) error {
		if len(words) == 1 {
			return a.WriteWord(flat, words[0])
		}
		return a.WriteWords(flat, words, rule.Width())
	})
}

func (d *Driver) do(ctx context.Context, addr string, f func(*modbus.Adapter) error) error {
	err := d.ser.Do(ctx, func(t modbus.Transport) error {
		return f(modbus.NewAdapter(t))
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", addr, err)
	}
	return nil
}

// flatten turns a slice or array into its elements. single reports whether
// value was a scalar.
func flatten(value interface{}) (values []interface{}, single bool) {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return []interface{}{value}, true
	}
	values = make([]interface{}, rv.Len())
	for i := range values {
		values[i] = rv.Index(i).Interface()
	}
	return values, false
}

// checkType validates v against the type of rule, naming index n in the
// error.
func checkType(rule address.Rule, n int, v interface{}) error {
	var ok bool
	switch rule.Type {
	case config.Bool:
		_, ok = v.(bool)
	case config.Int16, config.Int32:
		ok = isInteger(v)
	case config.Float32:
		switch v.(type) {
		case float32, float64:
			ok = true
		default:
			ok = isInteger(v)
		}
	}
	if !ok {
		return &TypeMismatchError{Address: rule.Format(n), Expected: rule.Type.Kind(), Value: v}
	}
	return nil
}

func isInteger(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}
