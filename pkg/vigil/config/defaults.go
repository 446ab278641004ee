// Package config provides configuration management for vigil.
package config

// Default configuration values.
const (
	// DefaultManifestPath is where the manifest is kept when none is given.
	// Relative paths resolve against the working directory.
	DefaultManifestPath = "hashes.json"

	// DefaultBackupSuffix names the previous manifest generation.
	DefaultBackupSuffix = ".bak"

	// DefaultChunkSize is the read buffer used while digesting.
	DefaultChunkSize = "64KiB"

	// DefaultIgnoreFile is read from the root of every walked tree.
	DefaultIgnoreFile = ".vigilignore"

	// DefaultSymlinks is the symlink policy.
	DefaultSymlinks = "skip"

	// DefaultReportFormat is the formatter used for command output.
	DefaultReportFormat = "text"

	// DefaultRetentionDays is how long run history is kept.
	DefaultRetentionDays = 90

	// DefaultLogLevel is the file log level.
	DefaultLogLevel = "info"
)

// DefaultExclusions are left out of every walk.
var DefaultExclusions = []string{
	".git",
}
