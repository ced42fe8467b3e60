package badger

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/poiesic/ragflow/core"
)

// Key prefixes for different data types
const (
	collectionPrefix = "col"
	pointPrefix      = "pt"
	runPrefix        = "run"
	runEventPrefix   = "runevt"
	stepPrefix       = "step"
)

// makeCollectionKey generates a key for a collection config by name.
func makeCollectionKey(name string) []byte {
	return []byte(fmt.Sprintf("%s:%s", collectionPrefix, name))
}

// makePointPrefix generates the key prefix shared by all points of a collection.
// The name is length-prefixed so no collection's prefix is a prefix of another's.
// Format: prefix:len(name):name:
func makePointPrefix(collection string) []byte {
	return []byte(fmt.Sprintf("%s:%d:%s:", pointPrefix, len(collection), collection))
}

// makePointKey generates a key for a point.
// Format: prefix:len(name):name:id
func makePointKey(collection string, id core.PointID) []byte {
	prefix := makePointPrefix(collection)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeRunKey generates a key for a run by ID.
func makeRunKey(runID string) []byte {
	return []byte(fmt.Sprintf("%s:%s", runPrefix, runID))
}

// makeRunEventPrefix generates the prefix of the event index for one event.
// Format: prefix:len(eventID):eventID:
func makeRunEventPrefix(eventID string) []byte {
	return []byte(fmt.Sprintf("%s:%d:%s:", runEventPrefix, len(eventID), eventID))
}

// makeRunEventKey generates a composite key for the event index.
// Format: prefix:len(eventID):eventID:createdAt:runID
func makeRunEventKey(eventID string, createdAt time.Time, runID string) []byte {
	prefix := makeRunEventPrefix(eventID)
	buf := make([]byte, len(prefix)+8+len(runID))
	offset := copy(buf, prefix)
	// Write in BigEndian order so runs sort by creation time
	binary.BigEndian.PutUint64(buf[offset:], uint64(createdAt.UnixMicro()))
	offset += 8
	copy(buf[offset:], runID)
	return buf
}

// makeStepKey generates a key for a memoized step result.
// Format: prefix:len(runID):runID:stepID
func makeStepKey(runID, stepID string) []byte {
	return []byte(fmt.Sprintf("%s:%d:%s:%s", stepPrefix, len(runID), runID, stepID))
}
