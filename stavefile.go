//go:build stave

package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/yaklabco/stave/pkg/sh"
	"github.com/yaklabco/stave/pkg/st"
)

// Default target when running `stave` with no arguments.
var Default = Build

// Aliases for common targets.
var Aliases = map[string]interface{}{
	"b": Build,
	"t": Test,
	"l": Lint,
	"i": Install,
	"s": Smoke,
}

const (
	binaryName = "vigil"
	mainPkg    = "./cmd/vigil"
	binDir     = "bin"
	coverFile  = "coverage.out"
)

// All lints, tests and builds.
func All() error {
	st.Deps(Lint, Test)
	st.Deps(Build)
	return nil
}

func binaryPath() string {
	p := filepath.Join(binDir, binaryName)
	if runtime.GOOS == "windows" {
		p += ".exe"
	}
	return p
}

// Build compiles the vigil binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating bin directory: %w", err)
	}
	return sh.RunV("go", "build", "-trimpath", "-ldflags", ldflags(), "-o", binaryPath(), mainPkg)
}

// Install copies the built binary into GOBIN, GOPATH/bin or /usr/local/bin.
func Install() error {
	st.Deps(Build)

	dir, err := installDir()
	if err != nil {
		return err
	}
	dst := filepath.Join(dir, filepath.Base(binaryPath()))
	if st.Verbose() {
		fmt.Printf("Installing %s to %s\n", binaryPath(), dst)
	}
	return sh.Copy(dst, binaryPath())
}

func installDir() (string, error) {
	gocmd := st.GoCmd()
	if bin, err := sh.Output(gocmd, "env", "GOBIN"); err != nil {
		return "", fmt.Errorf("determining GOBIN: %w", err)
	} else if bin != "" {
		return bin, nil
	}
	gopath, err := sh.Output(gocmd, "env", "GOPATH")
	if err != nil {
		return "", fmt.Errorf("determining GOPATH: %w", err)
	}
	if gopath == "" {
		return "/usr/local/bin", nil
	}
	return filepath.Join(gopath, "bin"), nil
}

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "-coverprofile="+coverFile, "./...")
}

// Cover prints per-function coverage from the last test run.
func Cover() error {
	st.Deps(Test)
	return sh.RunV("go", "tool", "cover", "-func="+coverFile)
}

// Smoke builds vigil and runs init, check and update against a scratch
// tree, expecting exit status 2 once a file has been changed.
func Smoke() error {
	st.Deps(Build)

	dir, err := os.MkdirTemp("", "vigil-smoke-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	tree := filepath.Join(dir, "tree")
	if err := os.MkdirAll(tree, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(tree, "a.txt"), []byte("hello"), 0o644); err != nil {
		return err
	}

	bin, err := filepath.Abs(binaryPath())
	if err != nil {
		return err
	}
	manifest := filepath.Join(dir, "hashes.json")
	vigil := func(args ...string) error {
		args = append(args, "--manifest", manifest, "--no-history", "--no-progress", "-q", tree)
		cmd := exec.Command(bin, args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd.Run()
	}

	if err := vigil("init"); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := vigil("check"); err != nil {
		return fmt.Errorf("check of an unchanged tree: %w", err)
	}

	if err := os.WriteFile(filepath.Join(tree, "a.txt"), []byte("hello, world"), 0o644); err != nil {
		return err
	}
	err = vigil("check", "-o", "plain")
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 2 {
		return fmt.Errorf("check of a modified tree: want exit status 2, got %v", err)
	}

	if err := vigil("update"); err != nil {
		return fmt.Errorf("update: %w", err)
	}
	return vigil("check")
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV("golangci-lint", "run", "./...")
}

// Clean removes build and coverage artifacts.
func Clean() error {
	if st.Verbose() {
		fmt.Printf("Removing %s/ and %s\n", binDir, coverFile)
	}
	if err := sh.Rm(coverFile); err != nil {
		return err
	}
	return sh.Rm(binDir + "/")
}

// Fmt formats all Go code.
func Fmt() error {
	if err := sh.Run("gofmt", "-w", "."); err != nil {
		return fmt.Errorf("running gofmt: %w", err)
	}
	return sh.Run("goimports", "-w", ".")
}

// Tidy runs go mod tidy.
func Tidy() error {
	return sh.RunV("go", "mod", "tidy")
}

// ldflags injects version information into package main.
func ldflags() string {
	version := "dev"
	commit := "unknown"
	date := time.Now().UTC().Format(time.RFC3339)

	if v, err := sh.Output("git", "describe", "--tags", "--always"); err == nil && v != "" {
		version = strings.TrimSpace(v)
	}
	if c, err := sh.Output("git", "rev-parse", "--short", "HEAD"); err == nil && c != "" {
		commit = strings.TrimSpace(c)
	}

	return fmt.Sprintf("-s -w -X main.version=%s -X main.commit=%s -X main.date=%s", version, commit, date)
}
