package engine

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/anima-runtime/engine/core"
	"github.com/spaghettifunk/anima-runtime/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released every resource
	EngineStageShutdown
)

// Engine drives a Game through the frame loop of one VulkanContext.
type Engine struct {
	currentStage Stage
	gameInstance *Game
	driver       vulkan.Driver
	config       *core.Config
	context      *vulkan.VulkanContext
	clock        *core.Clock
	lastTime     float64
	stopping     atomic.Bool

	// frames rendered since Run started
	frames int
}

func New(g *Game, driver vulkan.Driver, cfg *core.Config) (*Engine, error) {
	if g == nil || g.FnRender == nil {
		return nil, errors.AssertionFailedf("engine needs a game with a render callback")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		driver:       driver,
		config:       cfg,
		clock:        core.NewClock(),
	}, nil
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return errors.AssertionFailedf("engine initialized twice")
	}
	e.currentStage = EngineStageInitializing

	vc, err := vulkan.NewVulkanContext(e.driver, e.config)
	if err != nil {
		return err
	}
	e.context = vc

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(vc); err != nil {
			core.LogError("game initialization failed: %v", err)
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

// Context is nil until Initialize succeeds.
func (e *Engine) Context() *vulkan.VulkanContext {
	return e.context
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

// Frames returns how many frames Run has submitted.
func (e *Engine) Frames() int {
	return e.frames
}

// Stop asks Run to return after the frame in progress, or right away if it
// has not started yet. Safe to call from any goroutine.
func (e *Engine) Stop() {
	e.stopping.Store(true)
}

// Run renders frames until Stop is called or the configured frame count is
// reached. A zero frame count runs until Stop. Fence timeouts are retried;
// any other frame error ends the loop and is returned.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return errors.AssertionFailedf("engine run in stage %d", e.currentStage)
	}
	e.currentStage = EngineStageRunning
	defer func() { e.currentStage = EngineStageInitialized }()

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed().Seconds()

	limit := e.config.Frames.Count
	for !e.stopping.Load() && (limit == 0 || e.frames < limit) {
		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed().Seconds()
		delta := currentTime - e.lastTime

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("game update failed, stopping: %v", err)
				return err
			}
		}

		cmd, err := e.context.BeginFrame()
		if err != nil {
			if errors.Is(err, core.ErrFenceTimeout) {
				core.LogWarn("frame %d: GPU is late, retrying", e.context.FrameNumber+1)
				continue
			}
			return err
		}
		if err := e.gameInstance.FnRender(e.context, cmd, delta); err != nil {
			core.LogError("game render failed, stopping: %v", err)
			return err
		}
		if err := e.context.EndFrame(); err != nil {
			return err
		}

		e.frames++
		e.lastTime = currentTime
	}
	return nil
}

// Shutdown releases the game and then the context. The engine cannot be
// restarted.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown {
		return nil
	}
	if e.currentStage == EngineStageRunning {
		return errors.AssertionFailedf("engine shut down while running; call Stop and wait for Run")
	}
	e.currentStage = EngineStageShuttingDown

	var err error
	if e.gameInstance.FnShutdown != nil {
		err = e.gameInstance.FnShutdown()
	}
	if e.context != nil {
		e.context.Shutdown()
		e.context = nil
	}
	e.currentStage = EngineStageShutdown
	return err
}
