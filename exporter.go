package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RichiH/clickplc/click"
	"github.com/RichiH/clickplc/config"
	"github.com/RichiH/clickplc/glog"
	"github.com/RichiH/clickplc/modbus"
	"github.com/RichiH/clickplc/parser"
	"github.com/RichiH/clickplc/tags"
)

// Exporter reads the configured addresses of one PLC on every scrape.
type Exporter struct {
	driver *click.Driver
	ranges []string
	tags   tags.Registry
	errors *glog.ErrorLogger
	logger log.Logger
}

// NewExporter validates the ranges of c up front. When the driver carries
// tags, every nicknamed address is exported and the ranges are ignored.
func NewExporter(c config.Config, d *click.Driver, logger log.Logger) (*Exporter, error) {
	e := &Exporter{
		driver: d,
		tags:   d.Tags(),
		errors: glog.New(logger, scrapeErrorInterval),
		logger: logger,
	}
	if len(e.tags) > 0 {
		return e, nil
	}
	for _, r := range c.Ranges {
		if _, err := parser.Parse(r); err != nil {
			return nil, fmt.Errorf("invalid range %q: %w", r, err)
		}
		e.ranges = append(e.ranges, r)
	}
	return e, nil
}

// scrapeErrorInterval bounds how often an identical scrape error is logged.
const scrapeErrorInterval = time.Minute

// Scrape reads the PLC and returns a gatherer holding one clickplc_value
// sample per address.
func (e *Exporter) Scrape(ctx context.Context) (prometheus.Gatherer, error) {
	registry := prometheus.NewRegistry()
	values := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clickplc_value",
			Help: "Current value of a CLICK PLC address. Booleans are exported as 0 or 1.",
		},
		[]string{"address", "nickname", "type"},
	)
	registry.MustRegister(values)

	if len(e.tags) > 0 {
		read, err := e.driver.Get(ctx, "")
		if err != nil {
			return nil, err
		}
		vs := read.(*click.Values)
		for _, name := range vs.Keys() {
			tag := e.tags[name]
			v, _ := vs.Value(name)
			values.WithLabelValues(tag.Address(), name, string(tag.Type)).Set(toFloat64(v))
		}
		return registry, nil
	}

	read, err := e.driver.GetRanges(ctx, e.ranges...)
	if err != nil {
		return nil, err
	}
	for _, addr := range read.Keys() {
		v, _ := read.Value(addr)
		rule, _, err := parser.ParseAddress(addr)
		if err != nil {
			return nil, err
		}
		values.WithLabelValues(addr, "", string(rule.Type)).Set(toFloat64(v))
	}
	return registry, nil
}

func toFloat64(v interface{}) float64 {
	switch v := v.(type) {
	case bool:
		if v {
			return 1
		}
		return 0
	case int16:
		return float64(v)
	case int32:
		return float64(v)
	case float32:
		return float64(v)
	}
	return 0
}

func scrapeHandler(e *Exporter, w http.ResponseWriter, r *http.Request) {
	level.Debug(e.logger).Log("msg", "got scrape request")

	gatherer, err := e.Scrape(r.Context())
	if err != nil {
		httpStatus := http.StatusInternalServerError
		var (
			timeoutErr *modbus.TimeoutError
			connErr    *modbus.ConnectionError
		)
		if errors.As(err, &timeoutErr) {
			httpStatus = http.StatusGatewayTimeout
		} else if errors.As(err, &connErr) {
			httpStatus = http.StatusServiceUnavailable
		}
		http.Error(w, fmt.Sprintf("failed to scrape PLC: %v", err), httpStatus)
		e.errors.Error(err)
		return
	}
	e.errors.Reset()

	promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
