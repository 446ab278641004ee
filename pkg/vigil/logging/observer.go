package logging

import (
	"github.com/jamesainslie/vigil/pkg/vigil/types"
)

// Observer writes engine events to a Logger.
type Observer struct {
	logger *Logger
}

// NewObserver returns an Observer that logs through logger.
func NewObserver(logger *Logger) *Observer {
	return &Observer{logger: logger}
}

// Observe logs e at a level matching its significance. Queued-file events
// are not logged; hashed files are logged at debug.
func (o *Observer) Observe(e types.Event) {
	l := o.logger
	switch e.Type {
	case types.EventPhase:
		if e.Err != nil {
			l.Error("operation failed", "phase", e.Phase.String(), "path", e.Path, "error", e.Err)
			return
		}
		l.Debug("phase", "phase", e.Phase.String(), "path", e.Path)
	case types.EventFileHashed:
		if e.Snapshot != nil {
			l.Debug("hashed", "path", e.Snapshot.Path, "digest", e.Snapshot.Digest, "size", e.Snapshot.Size)
		}
	case types.EventFileSkipped:
		kind := types.KindOf(e.Err)
		if e.Skipped != nil {
			kind = e.Skipped.Kind
		}
		l.Warn("skipped file", "path", e.Path, "kind", kind.String(), "error", e.Err)
	case types.EventWarning:
		l.Warn(e.Message, "path", e.Path, "error", e.Err)
	case types.EventManifestLoaded:
		l.Info("manifest loaded", "path", e.Path, "entries", e.Count)
	case types.EventManifestSaved:
		l.Info("manifest saved", "path", e.Path, "entries", e.Count)
	}
}
