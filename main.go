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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	kingpin "github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/promlog"
	promlogflag "github.com/prometheus/common/promlog/flag"
	"github.com/prometheus/exporter-toolkit/web"
	webflag "github.com/prometheus/exporter-toolkit/web/kingpinflag"

	"github.com/RichiH/clickplc/click"
	"github.com/RichiH/clickplc/config"
	"github.com/RichiH/clickplc/modbus"
	"github.com/RichiH/clickplc/parser"
	"github.com/RichiH/clickplc/tags"
)

var (
	timeout = kingpin.Flag(
		"timeout",
		"Timeout of a single Modbus request.",
	).Default(modbus.DefaultTimeout.String()).Duration()
	unitID = kingpin.Flag(
		"unit-id",
		"Modbus unit id of the PLC.",
	).Default(strconv.Itoa(config.DefaultUnitID)).Uint8()
	mock = kingpin.Flag(
		"mock",
		"Talk to an in-memory PLC instead of the network.",
	).Bool()

	getCmd    = kingpin.Command("get", "Read an address, a range, a nickname or every tag and print it as JSON.")
	getTarget = getCmd.Arg("address", "Host or host:port of the PLC.").Required().String()
	getExpr   = getCmd.Arg("expr", "Address or range, e.g. df1 or x001-x016. Empty reads all tags or the default ranges.").String()
	getTags   = getCmd.Flag("tags", "CLICK nickname CSV export.").String()

	setCmd    = kingpin.Command("set", "Write one value or consecutive values starting at an address.")
	setTarget = setCmd.Arg("address", "Host or host:port of the PLC.").Required().String()
	setExpr   = setCmd.Arg("expr", "Start address or nickname.").Required().String()
	setValues = setCmd.Arg("values", "Values, parsed according to the address type.").Required().Strings()
	setTags   = setCmd.Flag("tags", "CLICK nickname CSV export.").String()

	tagsCmd  = kingpin.Command("tags", "Print a CLICK nickname CSV export as JSON.")
	tagsFile = tagsCmd.Arg("file", "CLICK nickname CSV export.").Required().ExistingFile()

	serveCmd   = kingpin.Command("serve", "Export PLC values as Prometheus metrics.")
	configFile = serveCmd.Flag(
		"config.file",
		"Sets the configuration file.",
	).Default("clickplc.yml").String()
)

func main() {
	promlogConfig := &promlog.Config{}
	promlogflag.AddFlags(kingpin.CommandLine, promlogConfig)
	webConfig := webflag.AddFlags(kingpin.CommandLine, ":9602")

	kingpin.HelpFlag.Short('h')
	cmd := kingpin.Parse()

	logger := promlog.New(promlogConfig)

	var err error
	switch cmd {
	case getCmd.FullCommand():
		err = runGet(context.Background(), os.Stdout, logger)
	case setCmd.FullCommand():
		err = runSet(context.Background(), logger)
	case tagsCmd.FullCommand():
		err = runTags(os.Stdout)
	case serveCmd.FullCommand():
		err = runServe(webConfig, logger)
	}
	if err != nil {
		level.Error(logger).Log("err", err)
		os.Exit(1)
	}
}

func newDriver(target, tagsFile string, logger log.Logger, opts ...click.Option) (*click.Driver, error) {
	opts = append([]click.Option{
		click.WithTimeout(*timeout),
		click.WithUnitID(*unitID),
		click.WithLogger(logger),
	}, opts...)
	if tagsFile != "" {
		registry, err := tags.Load(tagsFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, click.WithTags(registry))
	}
	if *mock {
		level.Info(logger).Log("msg", "using the in-memory PLC", "target", target)
		return click.New(modbus.NewMemoryTransport(), opts...), nil
	}
	return click.Dial(target, opts...)
}

func runGet(ctx context.Context, out io.Writer, logger log.Logger) error {
	d, err := newDriver(*getTarget, *getTags, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	var v interface{}
	switch {
	case *getExpr != "":
		v, err = d.Get(ctx, *getExpr)
	case *getTags != "":
		v, err = d.Get(ctx, "")
	default:
		v, err = d.GetRanges(ctx, config.DefaultRanges...)
	}
	if err != nil {
		return err
	}
	return printJSON(out, v)
}

func runSet(ctx context.Context, logger log.Logger) error {
	d, err := newDriver(*setTarget, *setTags, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	t, err := addressType(d.Tags(), *setExpr)
	if err != nil {
		return err
	}
	values, err := parseValues(t, *setValues)
	if err != nil {
		return err
	}
	if len(values) == 1 {
		return d.Set(ctx, *setExpr, values[0])
	}
	return d.Set(ctx, *setExpr, values)
}

func runTags(out io.Writer) error {
	registry, err := tags.Load(*tagsFile)
	if err != nil {
		return err
	}
	return printJSON(out, registry)
}

func runServe(webConfig *web.FlagConfig, logger log.Logger) error {
	level.Info(logger).Log("msg", "Loading configuration file", "file", *configFile)
	c, err := config.LoadConfig(*configFile)
	if err != nil {
		return err
	}

	telemetryRegistry := prometheus.NewRegistry()
	telemetryRegistry.MustRegister(collectors.NewGoCollector())
	telemetryRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := modbus.NewMetrics(telemetryRegistry)

	d, err := newDriver(c.Target, c.TagsFile, logger,
		click.WithTimeout(c.TimeoutDuration()),
		click.WithUnitID(c.UnitID),
		click.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}
	defer d.Close()

	exporter, err := NewExporter(c, d, logger)
	if err != nil {
		return err
	}

	router := http.NewServeMux()
	router.Handle("/metrics", promhttp.HandlerFor(telemetryRegistry, promhttp.HandlerOpts{}))
	router.Handle("/click",
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scrapeHandler(exporter, w, r)
		}),
	)

	level.Info(logger).Log("msg", "Serving PLC values", "target", c.Target, "path", "/click")
	srv := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	return web.ListenAndServe(srv, webConfig, logger)
}

// addressType resolves the data type behind a nickname or notation address.
func addressType(registry tags.Registry, expr string) (config.DataType, error) {
	if tag, ok := registry[expr]; ok {
		return tag.Type, nil
	}
	rule, _, err := parser.ParseAddress(expr)
	if err != nil {
		return "", err
	}
	return rule.Type, nil
}

// parseValues converts command line arguments to the Go type stored at
// addresses of type t.
func parseValues(t config.DataType, args []string) ([]interface{}, error) {
	values := make([]interface{}, 0, len(args))
	for _, arg := range args {
		var (
			v   interface{}
			err error
		)
		switch t {
		case config.Bool:
			v, err = strconv.ParseBool(arg)
		case config.Int16:
			var n int64
			n, err = strconv.ParseInt(arg, 10, 16)
			v = int16(n)
		case config.Int32:
			var n int64
			n, err = strconv.ParseInt(arg, 10, 32)
			v = int32(n)
		case config.Float32:
			var f float64
			f, err = strconv.ParseFloat(arg, 32)
			v = float32(f)
		default:
			err = fmt.Errorf("unsupported data type %q", t)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", t, arg, err)
		}
		values = append(values, v)
	}
	return values, nil
}

func printJSON(out io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\n", b)
	return err
}
