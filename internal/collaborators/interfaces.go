// Package collaborators defines the narrow interfaces the core consumes
// from external systems (spec §6): the knowledge graph, session manager,
// file system snapshot source, and database readiness gate. Grounded on
// db/repository/interfaces.go's GraphRepository/CacheRepository/
// MetricsRepository/DocumentRepository split — one interface per storage
// concern, composed by callers rather than a single god-interface.
package collaborators

import "context"

// RelationshipQuery filters a QueryRelationships/GetRelationships call.
type RelationshipQuery struct {
	FromEntityID string
	ToEntityID   string
	Type         string
	Limit        int
}

// BulkCreateOptions tunes CreateRelationshipsBulk.
type BulkCreateOptions struct {
	Validate bool
}

// CheckpointOptions tunes CreateCheckpoint.
type CheckpointOptions struct {
	Type string
	Hops int
}

// DatabaseService gates operations that require a live backing store.
type DatabaseService interface {
	IsReady(ctx context.Context) (bool, error)
}

// KnowledgeGraphService is the core's view of the graph database, matching
// spec §6 verbatim.
type KnowledgeGraphService interface {
	GetEntity(ctx context.Context, id string) (*Entity, error)
	GetEntities(ctx context.Context) ([]*Entity, error)
	GetRelationships(ctx context.Context, query RelationshipQuery) ([]*Relationship, error)
	QueryRelationships(ctx context.Context, query RelationshipQuery) ([]*Relationship, error)
	CreateEntity(ctx context.Context, e *Entity) error
	CreateOrUpdateEntity(ctx context.Context, e *Entity) error
	CreateRelationship(ctx context.Context, r *Relationship) error
	CreateRelationshipsBulk(ctx context.Context, rels []*Relationship, opts BulkCreateOptions) error
	CreateCheckpoint(ctx context.Context, seedIDs []string, opts CheckpointOptions) (string, error)
}

// SessionManager exposes the current session and arbitrary session-scoped
// data, used to seed snapshots and BROKE_IN/FIXED_IN session sequencing.
type SessionManager interface {
	GetCurrentSessionID(ctx context.Context) (string, error)
	GetSessionData(ctx context.Context, id string) (map[string]interface{}, error)
}

// FileSystemService is an optional collaborator contributing a
// file_system-typed snapshot source.
type FileSystemService interface {
	Snapshot(ctx context.Context) (map[string]interface{}, error)
}

// Entity and Relationship mirror graphmodel's types at the collaborator
// boundary; kept distinct so the wire contract with an external graph
// database can evolve independently of the internal model.
type Entity struct {
	ID           string
	Type         string
	Path         string
	Hash         string
	Language     string
	Attributes   map[string]interface{}
}

type Relationship struct {
	ID           string
	FromEntityID string
	ToEntityID   string
	Type         string
	Metadata     map[string]interface{}
}
