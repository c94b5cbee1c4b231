// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"vizpipe/cmd"
	"vizpipe/internal/audio"
	"vizpipe/internal/log"
	"vizpipe/pkg/build"
)

// main is the entry point for the visualization pipeline.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load configuration
//   - Execute one-off commands if requested
//   - Initialize PortAudio
//
// 2. Concurrent Phase (Hot Path):
//   - Register plugins and start their listeners
//   - Start the audio engine and optional recording
//   - Host the active plugin in the terminal UI
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals or the quit key
//   - Stop recording if active
//   - Clean up resources
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Development builds run without ldflags.
	if err := build.Initialize(); err != nil {
		log.Debugf("Build: %v", err)
	}

	inv, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}
	if inv.Config == nil {
		// --help or --version
		return
	}

	if level, ok := log.ParseLevel(inv.Config.LogLevel); ok {
		log.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch inv.Command {
	case cmd.CommandPlugins:
		if err := cmd.RunPlugins(os.Stdout, inv.Config); err != nil {
			log.Fatalf("%v", err)
		}
		return

	case cmd.CommandAnalyze:
		summary, err := cmd.Analyze(ctx, inv.Config, inv.File, inv.Plugin, inv.Realtime)
		if err != nil {
			log.Fatalf("%v", err)
		}
		if err := cmd.WriteSummary(os.Stdout, summary, inv.JSON); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	// Limit OS threads for real-time audio processing:
	// - One thread dedicated to the audio callback (time-critical)
	// - One thread for the UI, plugins and I/O
	runtime.GOMAXPROCS(2)

	if err := audio.Initialize(); err != nil {
		log.Fatalf("%v", err)
	}
	defer audio.Terminate()

	if inv.Command == cmd.CommandList {
		if err := cmd.RunList(os.Stdout, inv.Interactive); err != nil {
			log.Errorf("%v", err)
		}
		return
	}

	if !inv.Live {
		return
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	// The terminal belongs to the UI from here on.
	var logSink io.Writer = io.Discard
	if inv.Config.Debug {
		if f, err := os.OpenFile("vizpipe.log", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			defer f.Close()
			logSink = f
		}
	}
	log.SetOutput(logSink)
	err = cmd.RunLive(ctx, inv.Config)

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	log.SetOutput(os.Stderr)
	if err != nil {
		log.Errorf("%v", err)
		audio.Terminate()
		os.Exit(1)
	}
}
