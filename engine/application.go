package engine

type ApplicationConfig struct {
	// The application name reported to the Vulkan instance.
	Name string
	// Enables the validation layers, if installed.
	Debug bool
	// Path of the TOML runtime configuration. Empty means defaults.
	ConfigPath string
	// Optional SPIR-V binaries for the demo pipeline.
	VertexShaderPath   string
	FragmentShaderPath string
	// Offscreen target size.
	Width  uint32
	Height uint32
}
