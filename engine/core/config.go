package core

import (
	"math"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

const (
	MinFlightCount = 2
	MaxFlightCount = 4
)

type DescriptorConfig struct {
	MaxSetsPerPool     uint32 `toml:"max_sets_per_pool"`
	DescriptorsPerType uint32 `toml:"descriptors_per_type"`
}

type UniformConfig struct {
	InitialChunkSize uint64 `toml:"initial_chunk_size"`
	MaxChunkSize     uint64 `toml:"max_chunk_size"`
	GrowthFactor     uint64 `toml:"growth_factor"`
}

type FrameConfig struct {
	Count int `toml:"count"`
}

// Config drives every runtime subsystem owned by a VulkanContext.
type Config struct {
	LogLevel       string           `toml:"log_level"`
	MaxFlightCount int              `toml:"max_flight_count"`
	FenceTimeoutNs uint64           `toml:"fence_timeout_ns"`
	Descriptors    DescriptorConfig `toml:"descriptors"`
	Uniforms       UniformConfig    `toml:"uniforms"`
	Frames         FrameConfig      `toml:"frames"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:       "info",
		MaxFlightCount: 2,
		FenceTimeoutNs: math.MaxUint64,
		Descriptors: DescriptorConfig{
			MaxSetsPerPool:     256,
			DescriptorsPerType: 1024,
		},
		Uniforms: UniformConfig{
			InitialChunkSize: 64 * 1024,
			MaxChunkSize:     64 * 1024 * 1024,
			GrowthFactor:     2,
		},
		Frames: FrameConfig{
			Count: 120,
		},
	}
}

// LoadConfig overlays the TOML file at path on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "decoding config %s", path), ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.MaxFlightCount < MinFlightCount || c.MaxFlightCount > MaxFlightCount {
		return errors.Mark(errors.Newf("max_flight_count %d outside [%d, %d]", c.MaxFlightCount, MinFlightCount, MaxFlightCount), ErrInvalidConfig)
	}
	if c.Descriptors.MaxSetsPerPool == 0 || c.Descriptors.DescriptorsPerType == 0 {
		return errors.Mark(errors.New("descriptor pool sizes must be non-zero"), ErrInvalidConfig)
	}
	if c.Uniforms.InitialChunkSize == 0 {
		return errors.Mark(errors.New("uniforms.initial_chunk_size must be non-zero"), ErrInvalidConfig)
	}
	if c.Uniforms.MaxChunkSize < c.Uniforms.InitialChunkSize {
		return errors.Mark(errors.Newf("uniforms.max_chunk_size %d is below initial_chunk_size %d", c.Uniforms.MaxChunkSize, c.Uniforms.InitialChunkSize), ErrInvalidConfig)
	}
	if c.Uniforms.GrowthFactor < 2 {
		return errors.Mark(errors.Newf("uniforms.growth_factor %d must be at least 2", c.Uniforms.GrowthFactor), ErrInvalidConfig)
	}
	if c.Frames.Count < 0 {
		return errors.Mark(errors.Newf("frames.count %d is negative", c.Frames.Count), ErrInvalidConfig)
	}
	return nil
}
