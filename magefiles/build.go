//go:build mage

package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Compiles the runtime binary into bin/.
func (Build) Binary() error {
	_, err := executeCmd("go", withArgs("build", "-o", filepath.Join("bin", "anima-runtime"), "."), withStream())
	return err
}

// Compiles every GLSL source under shaders/ to SPIR-V next to it.
func (Build) Shaders() error {
	return buildShaders()
}

func buildShaders() error {
	sources, err := filepath.Glob(filepath.Join("shaders", "*.vert"))
	if err != nil {
		return err
	}
	frags, err := filepath.Glob(filepath.Join("shaders", "*.frag"))
	if err != nil {
		return err
	}
	sources = append(sources, frags...)
	if len(sources) == 0 {
		return nil
	}
	for _, src := range sources {
		out := strings.TrimSuffix(src, filepath.Ext(src)) + "." + strings.TrimPrefix(filepath.Ext(src), ".") + ".spv"
		if _, err := executeCmd("glslc", withArgs(src, "-o", out), withStream()); err != nil {
			return err
		}
	}
	return nil
}

func shadersAvailable() bool {
	for _, name := range []string{"scene.vert.spv", "scene.frag.spv"} {
		if _, err := os.Stat(filepath.Join("shaders", name)); err != nil {
			return false
		}
	}
	return true
}

// Tidies the module from the repository root.
func (Build) Tidy() error {
	_, err := executeCmd("go", withArgs("mod", "tidy"), withDir("."))
	return err
}
