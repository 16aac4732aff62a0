package engine

import (
	"github.com/spaghettifunk/anima-runtime/engine/renderer/vulkan"
)

// Game is the workload the engine drives. Every callback runs on the thread
// that called Engine.Run.
type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnShutdown        Shutdown
}

type Initialize func(vc *vulkan.VulkanContext) error
type Update func(deltaTime float64) error
type Render func(vc *vulkan.VulkanContext, cmd *vulkan.VulkanCommandBuffer, deltaTime float64) error
type Shutdown func() error
