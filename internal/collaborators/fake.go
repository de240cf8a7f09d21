package collaborators

import (
	"context"
	"sync"
)

// FakeGraphService is an in-memory KnowledgeGraphService for tests,
// satisfying the same interface the Neo4j-backed implementation does.
type FakeGraphService struct {
	mu            sync.Mutex
	entities      map[string]*Entity
	relationships map[string]*Relationship
	checkpoints   []CheckpointCall
}

// CheckpointCall records one CreateCheckpoint invocation for assertions.
type CheckpointCall struct {
	SeedIDs []string
	Opts    CheckpointOptions
}

// NewFakeGraphService returns an empty in-memory graph.
func NewFakeGraphService() *FakeGraphService {
	return &FakeGraphService{
		entities:      make(map[string]*Entity),
		relationships: make(map[string]*Relationship),
	}
}

func (f *FakeGraphService) GetEntity(_ context.Context, id string) (*Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entities[id], nil
}

func (f *FakeGraphService) GetEntities(_ context.Context) ([]*Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Entity, 0, len(f.entities))
	for _, e := range f.entities {
		out = append(out, e)
	}
	return out, nil
}

func (f *FakeGraphService) GetRelationships(ctx context.Context, query RelationshipQuery) ([]*Relationship, error) {
	return f.QueryRelationships(ctx, query)
}

func (f *FakeGraphService) QueryRelationships(_ context.Context, query RelationshipQuery) ([]*Relationship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Relationship
	for _, r := range f.relationships {
		if query.FromEntityID != "" && r.FromEntityID != query.FromEntityID {
			continue
		}
		if query.ToEntityID != "" && r.ToEntityID != query.ToEntityID {
			continue
		}
		if query.Type != "" && r.Type != query.Type {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *FakeGraphService) CreateEntity(_ context.Context, e *Entity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities[e.ID] = e
	return nil
}

func (f *FakeGraphService) CreateOrUpdateEntity(ctx context.Context, e *Entity) error {
	return f.CreateEntity(ctx, e)
}

func (f *FakeGraphService) CreateRelationship(_ context.Context, r *Relationship) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relationships[r.ID] = r
	return nil
}

func (f *FakeGraphService) CreateRelationshipsBulk(ctx context.Context, rels []*Relationship, _ BulkCreateOptions) error {
	for _, r := range rels {
		if err := f.CreateRelationship(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (f *FakeGraphService) CreateCheckpoint(_ context.Context, seedIDs []string, opts CheckpointOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkpoints = append(f.checkpoints, CheckpointCall{SeedIDs: seedIDs, Opts: opts})
	return "checkpoint-" + seedIDs[0], nil
}

// Checkpoints returns every CreateCheckpoint call recorded so far.
func (f *FakeGraphService) Checkpoints() []CheckpointCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CheckpointCall(nil), f.checkpoints...)
}

// FakeSessionManager is a fixed-session SessionManager for tests.
type FakeSessionManager struct {
	SessionID string
	Data      map[string]interface{}
}

func (f *FakeSessionManager) GetCurrentSessionID(_ context.Context) (string, error) {
	return f.SessionID, nil
}

func (f *FakeSessionManager) GetSessionData(_ context.Context, _ string) (map[string]interface{}, error) {
	return f.Data, nil
}

// FakeDatabaseService reports a fixed readiness state.
type FakeDatabaseService struct {
	Ready bool
}

func (f *FakeDatabaseService) IsReady(_ context.Context) (bool, error) {
	return f.Ready, nil
}

// FakeFileSystemService returns a fixed snapshot payload.
type FakeFileSystemService struct {
	Data map[string]interface{}
}

func (f *FakeFileSystemService) Snapshot(_ context.Context) (map[string]interface{}, error) {
	return f.Data, nil
}
