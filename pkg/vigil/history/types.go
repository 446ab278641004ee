package history

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"time"

	"github.com/jamesainslie/vigil/pkg/vigil/report"
)

// keyPrefix namespaces run records inside the database.
var keyPrefix = []byte("run\x00")

// Record describes one vigil run.
type Record struct {
	ID       string
	Time     time.Time
	Command  string
	Root     string
	Manifest string
	Duration time.Duration

	// Check counters.
	Checked   int
	Modified  int
	Missing   int
	Untracked int

	// Recorded is the number of manifest entries written by init or update.
	Recorded int
	Skipped  int

	// Error is the failure message of a run that did not complete.
	Error string
}

// Succeeded reports whether the run completed.
func (r *Record) Succeeded() bool {
	return r.Error == ""
}

// FromReport builds a record from a finished run.
func FromReport(rep *report.Report) Record {
	return Record{
		Time:      rep.GeneratedAt,
		Command:   string(rep.Command),
		Root:      rep.Root,
		Manifest:  rep.Manifest,
		Duration:  rep.Duration,
		Checked:   rep.Checked(),
		Modified:  rep.ModifiedCount(),
		Missing:   len(rep.Missing),
		Untracked: len(rep.Untracked),
		Recorded:  rep.Recorded,
		Skipped:   len(rep.Skipped),
	}
}

// Failed builds a record for a run that ended with err.
func Failed(cmd report.Command, root, manifest string, at time.Time, err error) Record {
	return Record{
		Time:     at,
		Command:  string(cmd),
		Root:     root,
		Manifest: manifest,
		Error:    err.Error(),
	}
}

// Encode serializes the record using gob.
func (r *Record) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes a record using gob.
func (r *Record) Decode(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(r)
}

// MakeKey builds the key for a record. Keys sort by time, so iteration
// order is chronological.
// Format: run\x00<unix nanos, big endian><id>
func MakeKey(at time.Time, id string) []byte {
	key := make([]byte, 0, len(keyPrefix)+8+len(id))
	key = append(key, keyPrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(at.UnixNano()))
	return append(key, id...)
}

var errMalformedKey = errors.New("malformed history key")

// ParseKey extracts the time and id from a record key.
func ParseKey(key []byte) (time.Time, string, error) {
	if len(key) < len(keyPrefix)+8 || !bytes.HasPrefix(key, keyPrefix) {
		return time.Time{}, "", errMalformedKey
	}
	rest := key[len(keyPrefix):]
	nanos := int64(binary.BigEndian.Uint64(rest[:8]))
	return time.Unix(0, nanos).UTC(), string(rest[8:]), nil
}
