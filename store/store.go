// Package store defines the snapshot persistence interface. Snapshotting
// is best-effort: the engine logs failures and carries on.
package store

import "github.com/copairhq/copair/model"

// SnapshotStore persists and recalls session snapshots by session id.
type SnapshotStore interface {
	// Save upserts a snapshot. Saving the same session twice overwrites.
	Save(snap *model.Snapshot) error
	// Load returns the snapshot for a session id, or model.ErrNotFound.
	Load(id string) (*model.Snapshot, error)
	// List returns all persisted snapshots, newest first.
	List() ([]*model.Snapshot, error)
	Close() error
}
