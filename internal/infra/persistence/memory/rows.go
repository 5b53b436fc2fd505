package memory

import (
	"encoding/json"
	"fmt"

	"mocacore/pkg/domain"
)

// Collection names shared by the durable backends. SQL stores use them as
// table names, the key-value store as key prefixes.
const (
	CollectionUsers    = "users"
	CollectionSessions = "sessions"
	CollectionResults  = "section_results"
)

// Collections lists every persisted collection in load order.
var Collections = []string{CollectionUsers, CollectionSessions, CollectionResults}

// RowWrite is one durable mutation derived from a committed change. A nil
// Payload means the row is deleted.
type RowWrite struct {
	Collection string
	ID         string
	Payload    []byte
	// ExpectVersion is the session version the update was computed from, or
	// zero when the write is unconditional.
	ExpectVersion int64
}

// Deleted reports whether the write removes the row.
func (w RowWrite) Deleted() bool { return w.Payload == nil }

// CollectionFor maps an entity type to its collection.
func CollectionFor(entity domain.EntityType) (string, error) {
	switch entity {
	case domain.EntityUser:
		return CollectionUsers, nil
	case domain.EntitySession:
		return CollectionSessions, nil
	case domain.EntityResult:
		return CollectionResults, nil
	default:
		return "", fmt.Errorf("unknown entity %q", entity)
	}
}

// RowWrites converts transaction changes into row writes, in change order.
func RowWrites(changes []Change) ([]RowWrite, error) {
	out := make([]RowWrite, 0, len(changes))
	for _, change := range changes {
		collection, err := CollectionFor(change.Entity)
		if err != nil {
			return nil, err
		}
		w := RowWrite{Collection: collection, ID: change.EntityID}
		if change.Action != domain.ActionDelete {
			payload, err := json.Marshal(change.After)
			if err != nil {
				return nil, fmt.Errorf("encode %s %s: %w", collection, change.EntityID, err)
			}
			w.Payload = payload
		}
		if before, ok := change.Before.(Session); ok && change.Action == domain.ActionUpdate {
			w.ExpectVersion = before.Version
		}
		out = append(out, w)
	}
	return out, nil
}

// SnapshotBuilder accumulates persisted rows into a Snapshot.
type SnapshotBuilder struct {
	snapshot Snapshot
}

// NewSnapshotBuilder returns an empty builder.
func NewSnapshotBuilder() *SnapshotBuilder {
	return &SnapshotBuilder{snapshot: Snapshot{
		Users:    map[string]User{},
		Sessions: map[string]Session{},
		Results:  map[string]SectionResult{},
	}}
}

// Add decodes one persisted row.
func (b *SnapshotBuilder) Add(collection string, payload []byte) error {
	switch collection {
	case CollectionUsers:
		var u User
		if err := json.Unmarshal(payload, &u); err != nil {
			return fmt.Errorf("decode %s: %w", collection, err)
		}
		b.snapshot.Users[u.ID] = u
	case CollectionSessions:
		var s Session
		if err := json.Unmarshal(payload, &s); err != nil {
			return fmt.Errorf("decode %s: %w", collection, err)
		}
		b.snapshot.Sessions[s.ID] = s
	case CollectionResults:
		var r SectionResult
		if err := json.Unmarshal(payload, &r); err != nil {
			return fmt.Errorf("decode %s: %w", collection, err)
		}
		b.snapshot.Results[r.ID] = r
	default:
		return fmt.Errorf("unknown collection %q", collection)
	}
	return nil
}

// Snapshot returns the accumulated state.
func (b *SnapshotBuilder) Snapshot() Snapshot { return b.snapshot }
