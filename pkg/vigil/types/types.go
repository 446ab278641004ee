// Package types provides the core data model for the vigil integrity checker.
// It includes file snapshots, diff results, skipped-file records, the typed
// error kinds shared by every engine package, and the observer contract the
// engines report events through.
package types

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Size constants for binary (IEC) units.
const (
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
	TiB int64 = 1024 * GiB
)

// DigestAlgorithm names the content hash used for every snapshot.
const DigestAlgorithm = "sha256"

// DigestHexLen is the length of a hex-encoded SHA-256 digest.
const DigestHexLen = 64

// FileSnapshot is the observed state of one file at a point in time.
type FileSnapshot struct {
	// Path is the normalized identity of the file: absolute, cleaned and
	// slash-separated.
	Path string `json:"path" yaml:"path"`

	// Digest is the hex-encoded SHA-256 of the file content.
	Digest string `json:"digest" yaml:"digest"`

	// Size is the byte length of the file.
	Size int64 `json:"size" yaml:"size"`

	// ModifiedTime is the filesystem modification time, in UTC.
	ModifiedTime time.Time `json:"modified_time" yaml:"modified_time"`

	// CheckedTime is when this snapshot was computed, in UTC.
	CheckedTime time.Time `json:"checked_time" yaml:"checked_time"`
}

// HumanSize returns the snapshot size formatted with binary units.
func (s *FileSnapshot) HumanSize() string {
	return FormatSize(s.Size)
}

// DiffResult compares the live state of one file with its stored entry.
//
// Modified is true exactly when the digests differ. SizeChanged and
// MtimeChanged are auxiliary signals and can be set while Modified is false.
type DiffResult struct {
	Path         string       `json:"path" yaml:"path"`
	Modified     bool         `json:"is_modified" yaml:"is_modified"`
	SizeChanged  bool         `json:"size_changed" yaml:"size_changed"`
	MtimeChanged bool         `json:"mtime_changed" yaml:"mtime_changed"`
	Current      FileSnapshot `json:"current" yaml:"current"`
	Stored       FileSnapshot `json:"stored" yaml:"stored"`
}

// SkippedFile records a file that could not be digested.
// The batch that produced it carries on without the file.
type SkippedFile struct {
	// Path is the file or directory where the failure occurred.
	Path string `json:"path" yaml:"path"`

	// Kind classifies the failure.
	Kind Kind `json:"kind" yaml:"kind"`

	// Error is the message of the underlying error.
	Error string `json:"error" yaml:"error"`
}

// NewSkippedFile builds a SkippedFile from a digest or walk error.
func NewSkippedFile(path string, err error) SkippedFile {
	return SkippedFile{
		Path:  path,
		Kind:  KindOf(err),
		Error: err.Error(),
	}
}

// sizePattern matches size strings like "64K", "2M", "1.5GiB".
var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([KMGT]?(?:i?B)?)\s*$`)

// ErrInvalidSize indicates that the size string could not be parsed.
var ErrInvalidSize = errors.New("invalid size format")

// ErrNegativeSize indicates that a negative size value was provided.
var ErrNegativeSize = errors.New("size cannot be negative")

// ParseSize parses a human-readable size string and returns the size in bytes.
// Suffixes K, M, G and T (optionally followed by B or iB) are binary units.
// Decimal values are truncated to the nearest byte.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidSize)
	}

	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeSize
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	suffix := strings.ToUpper(matches[2])
	suffix = strings.TrimSuffix(suffix, "IB")
	suffix = strings.TrimSuffix(suffix, "B")

	var multiplier int64
	switch suffix {
	case "":
		multiplier = 1
	case "K":
		multiplier = KiB
	case "M":
		multiplier = MiB
	case "G":
		multiplier = GiB
	case "T":
		multiplier = TiB
	default:
		return 0, fmt.Errorf("%w: unknown suffix %q", ErrInvalidSize, suffix)
	}

	return int64(value * float64(multiplier)), nil
}

// FormatSize converts a size in bytes to a human-readable string
// using binary units, e.g. FormatSize(1536) returns "1.5 KiB".
func FormatSize(bytes int64) string {
	if bytes < 0 {
		return "-" + humanize.IBytes(uint64(-bytes))
	}
	return humanize.IBytes(uint64(bytes))
}
