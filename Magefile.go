//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// executable is the backend binary name declared in plugin.json
const executable = "gpx_wasilak_checkmk_datasource"

// Build represents build-related tasks
type Build mg.Namespace

// platform is one release target
type platform struct {
	goos   string
	goarch string
	suffix string
}

var platforms = []platform{
	{goos: "linux", goarch: "amd64", suffix: "_linux_x64"},
	{goos: "linux", goarch: "arm64", suffix: "_linux_arm64"},
	{goos: "darwin", goarch: "amd64", suffix: "_darwin_x64"},
	{goos: "darwin", goarch: "arm64", suffix: "_darwin_arm64"},
	{goos: "windows", goarch: "amd64", suffix: "_windows_x64.exe"},
}

func (p platform) output() string {
	return filepath.Join("dist", executable+p.suffix)
}

func buildFor(p platform) error {
	if err := os.MkdirAll("dist", 0o755); err != nil {
		return err
	}
	fmt.Printf("Building backend for %s/%s -> %s\n", p.goos, p.goarch, p.output())
	return sh.RunWith(
		map[string]string{
			"GO111MODULE": "on",
			"GOOS":        p.goos,
			"GOARCH":      p.goarch,
			"CGO_ENABLED": "0",
		},
		"go",
		"build",
		"-o", p.output(),
		"-ldflags", "-s -w",
		"./pkg",
	)
}

// Backend builds the Go backend plugin for the current platform
func (Build) Backend() error {
	for _, p := range platforms {
		if p.goos != runtime.GOOS || p.goarch != runtime.GOARCH {
			continue
		}
		if err := buildFor(p); err != nil {
			return err
		}

		// generic name matching plugin.json
		generic := filepath.Join("dist", executable)
		if runtime.GOOS == "windows" {
			generic += ".exe"
		}
		fmt.Printf("Creating generic executable: %s\n", generic)
		return sh.Copy(generic, p.output())
	}
	return fmt.Errorf("unsupported platform: %s/%s", runtime.GOOS, runtime.GOARCH)
}

// BuildAll builds backend binaries for all supported platforms
func BuildAll() error {
	fmt.Println("Building backend for all platforms...")
	for _, p := range platforms {
		if err := buildFor(p); err != nil {
			return fmt.Errorf("failed to build %s/%s backend: %w", p.goos, p.goarch, err)
		}
	}
	fmt.Println("All backend binaries built successfully")
	return nil
}

// Test runs the backend tests
func Test() error {
	return sh.RunV("go", "test", "./pkg/...")
}

// Coverage runs the backend tests with a coverage profile in coverage/backend.out
func Coverage() error {
	if err := os.MkdirAll("coverage", 0o755); err != nil {
		return err
	}
	return sh.RunV("go", "test", "-coverprofile", filepath.Join("coverage", "backend.out"), "./pkg/...")
}
