/*
Headless driver for the runtime: brings up a Vulkan device without a
window, renders the testbed scene offscreen and prints the runtime stats.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/anima-runtime/engine"
	"github.com/spaghettifunk/anima-runtime/engine/core"
	"github.com/spaghettifunk/anima-runtime/engine/renderer/vulkan"
	"github.com/spaghettifunk/anima-runtime/testbed"
)

func main() {
	appConfig := &engine.ApplicationConfig{Name: "anima-runtime"}
	flag.StringVar(&appConfig.ConfigPath, "config", "", "TOML runtime configuration")
	flag.BoolVar(&appConfig.Debug, "debug", false, "enable the Vulkan validation layers")
	flag.StringVar(&appConfig.VertexShaderPath, "vert", "", "SPIR-V vertex shader for the scene pipeline")
	flag.StringVar(&appConfig.FragmentShaderPath, "frag", "", "SPIR-V fragment shader for the scene pipeline")
	frames := flag.Int("frames", -1, "frames to render, 0 runs until interrupted (overrides the config)")
	width := flag.Uint("width", 1280, "offscreen target width")
	height := flag.Uint("height", 720, "offscreen target height")
	flag.Parse()
	appConfig.Width, appConfig.Height = uint32(*width), uint32(*height)

	if err := run(appConfig, *frames); err != nil {
		core.LogError("%+v", err)
		os.Exit(1)
	}
}

func run(appConfig *engine.ApplicationConfig, frames int) error {
	cfg := core.DefaultConfig()
	if appConfig.ConfigPath != "" {
		loaded, err := core.LoadConfig(appConfig.ConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if frames >= 0 {
		cfg.Frames.Count = frames
	}
	if err := core.SetLogLevel(cfg.LogLevel); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if appConfig.ConfigPath != "" {
		// only the log level is applied live; everything else needs a restart
		if err := core.WatchConfig(ctx, appConfig.ConfigPath, func(updated *core.Config) {
			if err := core.SetLogLevel(updated.LogLevel); err != nil {
				core.LogWarn("%v", err)
			}
		}); err != nil {
			core.LogWarn("config hot reload disabled: %v", err)
		}
	}

	driver, err := vulkan.NewHeadlessDevice(appConfig.Name, appConfig.Debug)
	if err != nil {
		return err
	}
	defer driver.Destroy()

	tb := testbed.NewTestGame(appConfig)
	e, err := engine.New(tb.Game, driver, cfg)
	if err != nil {
		return err
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			core.LogInfo("interrupted, finishing the current frame")
			e.Stop()
		case <-ctx.Done():
		}
	}()

	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		return err
	}
	runErr := e.Run()

	if stats, err := e.Context().StatsJSON(); err == nil {
		fmt.Println(string(stats))
	}
	if err := e.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
