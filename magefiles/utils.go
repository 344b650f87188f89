//go:build mage

package main

import (
	"fmt"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// invocation is one external command run by a target.
type invocation struct {
	args   []string
	dir    string
	env    map[string]string
	stream bool
}

type cmdOption func(*invocation)

func withArgs(args ...string) cmdOption {
	return func(inv *invocation) {
		inv.args = args
	}
}

// withDir runs a go command inside dir through go's -C flag.
func withDir(dir string) cmdOption {
	return func(inv *invocation) {
		inv.dir = dir
	}
}

func withEnv(key, value string) cmdOption {
	return func(inv *invocation) {
		if inv.env == nil {
			inv.env = make(map[string]string)
		}
		inv.env[key] = value
	}
}

func withStream() cmdOption {
	return func(inv *invocation) {
		inv.stream = true
	}
}

// executeCmd runs command and returns its combined output. Streamed runs
// print as they go and return no output.
func executeCmd(command string, options ...cmdOption) (string, error) {
	inv := &invocation{}
	for _, o := range options {
		o(inv)
	}
	args := inv.args
	if inv.dir != "" {
		if command != "go" {
			return "", fmt.Errorf("%s cannot run in %s", command, inv.dir)
		}
		args = append([]string{"-C", inv.dir}, args...)
	}

	fmt.Printf("Executing: %s %s\n", command, strings.Join(args, " "))
	if inv.stream || mg.Verbose() {
		if err := sh.RunWithV(inv.env, command, args...); err != nil {
			return "", fmt.Errorf("error executing %s: %w", command, err)
		}
		return "", nil
	}
	out, err := sh.OutputWith(inv.env, command, args...)
	if err != nil {
		fmt.Println("... failed command output:")
		fmt.Println(out)
		return "", fmt.Errorf("error executing %s: %w", command, err)
	}
	return out, nil
}

// tidy keeps go.mod in sync and vets the tree before tests run.
func tidy() error {
	if _, err := executeCmd("go", withArgs("mod", "tidy")); err != nil {
		return fmt.Errorf("failed to run go mod tidy: %w", err)
	}
	if _, err := executeCmd("go", withArgs("vet", "./...")); err != nil {
		return fmt.Errorf("failed to run go vet: %w", err)
	}
	return nil
}
