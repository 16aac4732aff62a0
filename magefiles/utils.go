//go:build mage

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/magefile/mage/mg"
)

type cmdOptions struct {
	args   []string
	env    []string
	dir    string
	stream bool
}

type cmdOption func(*cmdOptions)

func withArgs(args ...string) cmdOption {
	return func(o *cmdOptions) {
		o.args = append(o.args, args...)
	}
}

// withEnv adds KEY=VALUE pairs on top of the current environment.
func withEnv(pairs ...string) cmdOption {
	return func(o *cmdOptions) {
		o.env = append(o.env, pairs...)
	}
}

func withDir(dir string) cmdOption {
	return func(o *cmdOptions) {
		o.dir = dir
	}
}

func withStream() cmdOption {
	return func(o *cmdOptions) {
		o.stream = true
	}
}

// executeCmd runs command and returns its combined output. Output is echoed
// live with -v or withStream, otherwise it is only printed on failure.
func executeCmd(command string, options ...cmdOption) (string, error) {
	opts := &cmdOptions{}
	for _, o := range options {
		o(opts)
	}

	line := strings.TrimSpace(strings.Join(append(append([]string{}, opts.env...), append([]string{command}, opts.args...)...), " "))
	fmt.Printf("Executing: %s\n", line)

	cmd := exec.Command(command, opts.args...)
	cmd.Dir = opts.dir
	if len(opts.env) > 0 {
		cmd.Env = append(os.Environ(), opts.env...)
	}

	var out bytes.Buffer
	live := mg.Verbose() || opts.stream
	if live {
		cmd.Stdout = io.MultiWriter(&out, os.Stdout)
		cmd.Stderr = io.MultiWriter(&out, os.Stderr)
	} else {
		cmd.Stdout = &out
		cmd.Stderr = &out
	}

	if err := cmd.Run(); err != nil {
		if !live {
			fmt.Printf("... %s failed:\n%s\n", command, out.String())
		}
		return "", fmt.Errorf("%s: %w", command, err)
	}
	return out.String(), nil
}
