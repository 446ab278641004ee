// Package tuner detects system resources and sizes the worker pools used to
// walk and hash a tree.
package tuner

// SystemResources contains detected system resources.
type SystemResources struct {
	// CPUCores is the number of logical CPU cores available.
	CPUCores int

	// TotalRAM is the total physical RAM in bytes.
	TotalRAM int64

	// AvailableRAM is the available (free) RAM in bytes.
	// This may be an estimate based on system heuristics.
	AvailableRAM int64
}

// Worker configuration limits.
const (
	maxWorkers = 64

	// minHashWorkers keeps some I/O overlap on single-core machines.
	minHashWorkers = 4

	minWalkWorkers = 4
	maxWalkWorkers = 32

	minResultBuffer = 64
	maxResultBuffer = 4096

	// bytesPerResult estimates the memory held by one buffered snapshot.
	bytesPerResult = 512

	// bufferMemoryFraction is the share of available RAM the result buffer
	// may occupy. Hashing itself is streamed and needs little memory.
	bufferMemoryFraction = 0.01
)

// OptimalConfig is the tuned pool configuration.
type OptimalConfig struct {
	// HashWorkers is the number of files digested concurrently.
	HashWorkers int

	// WalkWorkers is the number of directory readers used by the walker.
	WalkWorkers int

	// ResultBuffer is the capacity of the channel feeding the aggregator.
	ResultBuffer int
}

// Calculate returns a configuration for resources.
//
// Hashing is mostly I/O bound, so HashWorkers is twice the core count,
// between 4 and 64. WalkWorkers follows the core count between 4 and 32.
func Calculate(resources SystemResources) OptimalConfig {
	hash := resources.CPUCores * 2
	hash = max(hash, minHashWorkers)
	hash = min(hash, maxWorkers)

	walk := max(resources.CPUCores, minWalkWorkers)
	walk = min(walk, maxWalkWorkers)

	return OptimalConfig{
		HashWorkers:  hash,
		WalkWorkers:  walk,
		ResultBuffer: calculateBuffer(resources.AvailableRAM),
	}
}

// CalculateWithOverrides applies a user worker override to the calculated
// config. Values of zero or less leave the calculation untouched; larger
// values are capped at 64.
func CalculateWithOverrides(resources SystemResources, workerOverride int) OptimalConfig {
	config := Calculate(resources)
	if workerOverride > 0 {
		config.HashWorkers = min(workerOverride, maxWorkers)
	}
	return config
}

// Auto detects resources and calculates a configuration with the override
// applied. Detection failures fall back to the partial resources returned.
func Auto(workerOverride int) OptimalConfig {
	resources, _ := Detect()
	if resources.CPUCores < 1 {
		resources.CPUCores = 1
	}
	return CalculateWithOverrides(resources, workerOverride)
}

func calculateBuffer(availableRAM int64) int {
	entries := int(float64(availableRAM) * bufferMemoryFraction / bytesPerResult)
	entries = max(entries, minResultBuffer)
	return min(entries, maxResultBuffer)
}
