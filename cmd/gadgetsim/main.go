// Command gadgetsim is a thin demo/test harness for the usbxgadget class
// drivers: it wires the X360 and custom HID drivers plus the MS OS 1.0
// responder against an in-process simulated host stack, binds one X360 and
// one HID interface, queries the MS OS compat-ID descriptor, and sends one
// X360 input report, logging each step. It does not exercise rumble or LED
// OUT messages or the HID class control requests. It is not a USB-IP
// server or a real gadget firmware.
package main

import (
	"os"
	"strings"

	"github.com/nullstream/usbxgadget/internal/cmd"
	"github.com/nullstream/usbxgadget/internal/configpaths"
	"github.com/nullstream/usbxgadget/internal/log"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"
)

// CLI is gadgetsim's top-level command tree.
type CLI struct {
	Simulate cmd.Simulate      `cmd:"" default:"1" help:"Run the scripted XInput/HID gadget simulation."`
	Config   cmd.ConfigCommand `cmd:"" help:"Generate a configuration template."`

	Log struct {
		Level string `help:"Log level: trace, debug, info, warn, error." default:"info" enum:"trace,debug,info,warn,error"`
		File  string `help:"Also write logs to this file; console logs then all go to stderr."`
	} `embed:"" prefix:"log."`
}

func main() {
	userCfg := findUserConfig(os.Args[1:])
	jsonPaths, yamlPaths, tomlPaths := configpaths.ConfigCandidatePaths(userCfg)

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("gadgetsim"),
		kong.Description("USB XInput / custom HID class-driver simulator"),
		kong.UsageOnError(),
		kong.Configuration(kong.JSON, jsonPaths...),
		kong.Configuration(kongyaml.Loader, yamlPaths...),
		kong.Configuration(kongtoml.Loader, tomlPaths...),
	)

	logger, closeFiles, err := log.SetupLogger(cli.Log.Level, cli.Log.File)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() {
		for _, c := range closeFiles {
			_ = c.Close()
		}
	}()

	var trace log.TraceLogger
	if cli.Simulate.Trace || cli.Log.Level == "trace" {
		trace = log.NewTrace(os.Stdout)
	} else {
		trace = log.NewTrace(nil)
	}

	ctx.Bind(logger)
	ctx.BindTo(trace, (*log.TraceLogger)(nil))

	var monitor *Monitor
	if cli.Simulate.Monitor.Addr != "" {
		m, ln, err := NewMonitor(cli.Simulate.Monitor.Addr, cli.Simulate.Monitor.Key, logger)
		if err != nil {
			logger.Error("failed to start monitor channel", "error", err)
			os.Exit(2)
		}
		defer ln.Close()
		monitor = m
	}
	ctx.BindTo(publisherOrNil(monitor), (*cmd.ReportPublisher)(nil))

	err = ctx.Run()
	ctx.FatalIfErrorf(err)

	if err == nil && strings.HasPrefix(ctx.Command(), "simulate") {
		_, _ = VerifyXUSBBinding(logger)
	}
}

// publisherOrNil adapts a possibly-nil *Monitor to cmd.ReportPublisher
// without handing kong a typed-nil interface value.
func publisherOrNil(m *Monitor) cmd.ReportPublisher {
	if m == nil {
		return nil
	}
	return m
}

func findUserConfig(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "--config=") {
			return a[len("--config="):]
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	if v := os.Getenv("GADGETSIM_CONFIG"); v != "" {
		return v
	}
	return ""
}
