//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/naga"
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const shaderDir = "testbed/shaders"

// Builds the engine binary into bin/.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/anima", "."), withStream()); err != nil {
		return err
	}
	return nil
}

// Compiles every testbed WGSL shader to SPIR-V under bin/shaders.
func (Build) Shaders() error {
	return buildShaders()
}

func buildShaders() error {
	common, err := os.ReadFile(filepath.Join(shaderDir, "common.wgsl"))
	if err != nil {
		return err
	}
	files, err := filepath.Glob(filepath.Join(shaderDir, "*.wgsl"))
	if err != nil {
		return err
	}
	out := filepath.Join("bin", "shaders")
	if err := os.MkdirAll(out, 0o755); err != nil {
		return err
	}
	for _, f := range files {
		name := filepath.Base(f)
		if name == "common.wgsl" {
			continue
		}
		src, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		spirv, err := naga.Compile(string(common) + "\n" + string(src))
		if err != nil {
			return fmt.Errorf("failed to compile %s: %w", name, err)
		}
		dst := filepath.Join(out, strings.TrimSuffix(name, ".wgsl")+".spv")
		if err := os.WriteFile(dst, spirv, 0o644); err != nil {
			return err
		}
		fmt.Printf("Compiled %s (%d bytes)\n", dst, len(spirv))
	}
	return nil
}
