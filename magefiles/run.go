//go:build mage

package main

import (
	"fmt"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Renders a fixed number of headless frames with the testbed scene.
func (Run) Engine() error {
	if err := buildShaders(); err != nil {
		return err
	}
	args := []string{"run", ".", "-frames", "300"}
	if shadersAvailable() {
		args = append(args,
			"-vert", filepath.Join("shaders", "scene.vert.spv"),
			"-frag", filepath.Join("shaders", "scene.frag.spv"))
	}
	fmt.Println("Run engine...")
	_, err := executeCmd("go", withArgs(args...), withStream())
	return err
}

// Runs the unit tests; none of them need a GPU.
func (Run) Tests() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}

// Runs go vet and the race detector over the packages.
func (Run) Checks() error {
	if _, err := executeCmd("go", withArgs("vet", "./..."), withStream()); err != nil {
		return err
	}
	// -race needs cgo
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withEnv("CGO_ENABLED=1"), withStream())
	return err
}
