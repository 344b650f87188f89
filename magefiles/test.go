//go:build mage

package main

import "github.com/magefile/mage/mg"

type Test mg.Namespace

// Runs every package test.
func (Test) Unit() error {
	mg.Deps(tidy)
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}

// Runs the tests with the race detector.
func (Test) Race() error {
	// the race detector needs cgo
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withEnv("CGO_ENABLED", "1"), withStream())
	return err
}

// Runs the testbed tests only.
func (Test) Testbed() error {
	_, err := executeCmd("go", withArgs("test", "-v", "."), withDir("testbed"), withStream())
	return err
}
