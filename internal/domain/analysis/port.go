package analysis

import "context"

// Repository port (interface for persistence of analysis records).
// Update applies a merge function under the store's lock so that partial
// module-result writes and the final scoring write never interleave.
type Repository interface {
	Create(ctx context.Context, r *AnalysisRecord) error
	// CreateIfAbsent stores r unless a live record with the same file hash
	// already exists, in which case that record is returned with created
	// false. Check and insert happen under one lock so two concurrent
	// submissions of the same hash cannot both create.
	CreateIfAbsent(ctx context.Context, r *AnalysisRecord) (record *AnalysisRecord, created bool, err error)
	Update(ctx context.Context, id AnalysisID, apply func(*AnalysisRecord) error) (*AnalysisRecord, error)
	Get(ctx context.Context, id AnalysisID) (*AnalysisRecord, error)
	GetByFileHash(ctx context.Context, hash string) (*AnalysisRecord, error)
	Latest(ctx context.Context, limit int) ([]*AnalysisRecord, error)
	DeleteExpired(ctx context.Context) (int, error)
}

// Registry port (directory of analysis providers). Read concurrently by
// many in-flight analyses; mutated only at startup wiring time.
type Registry interface {
	Register(m Module) error
	Unregister(name string)
	Get(name string) (Module, bool)
	All() []Module
	Names() []string
}

// ArtifactStore port (interface for off-box storage of quarantined
// originals).
type ArtifactStore interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
}
