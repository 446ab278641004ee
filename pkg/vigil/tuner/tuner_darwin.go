//go:build darwin

package tuner

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Detect reports CPU cores and memory. Memory comes from sysctl hw.memsize;
// available memory is estimated as half of total.
func Detect() (SystemResources, error) {
	resources := SystemResources{
		CPUCores: runtime.NumCPU(),
	}

	memsize, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return resources, fmt.Errorf("sysctl hw.memsize: %w", err)
	}
	resources.TotalRAM = int64(memsize)
	resources.AvailableRAM = resources.TotalRAM / 2

	return resources, nil
}
