package collaborators

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jGraphService implements KnowledgeGraphService against a Neo4j graph
// database, grounded on db/repository/neo4j.go's MERGE-based upsert pattern
// and ExecuteWrite/ExecuteRead session idiom.
type Neo4jGraphService struct {
	driver neo4j.DriverWithContext
}

// NewNeo4jGraphService opens a driver and verifies connectivity.
func NewNeo4jGraphService(ctx context.Context, uri, username, password string) (*Neo4jGraphService, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("connect to neo4j: %w", err)
	}
	return &Neo4jGraphService{driver: driver}, nil
}

// Close releases the underlying driver.
func (s *Neo4jGraphService) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Neo4jGraphService) GetEntity(ctx context.Context, id string) (*Entity, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, `MATCH (e:Entity {id: $id}) RETURN e.id as id, e.type as type, e.path as path, e.hash as hash, e.language as language`, map[string]interface{}{"id": id})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			return nil, res.Err()
		}
		record := res.Record()
		return recordToEntity(record), nil
	})
	if err != nil {
		return nil, fmt.Errorf("get entity %s: %w", id, err)
	}
	if result == nil {
		return nil, nil
	}
	return result.(*Entity), nil
}

func (s *Neo4jGraphService) GetEntities(ctx context.Context) ([]*Entity, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, `MATCH (e:Entity) RETURN e.id as id, e.type as type, e.path as path, e.hash as hash, e.language as language`, nil)
		if err != nil {
			return nil, err
		}
		var entities []*Entity
		for res.Next(ctx) {
			entities = append(entities, recordToEntity(res.Record()))
		}
		return entities, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	return result.([]*Entity), nil
}

func (s *Neo4jGraphService) CreateEntity(ctx context.Context, e *Entity) error {
	return s.upsertEntity(ctx, e)
}

func (s *Neo4jGraphService) CreateOrUpdateEntity(ctx context.Context, e *Entity) error {
	return s.upsertEntity(ctx, e)
}

func (s *Neo4jGraphService) upsertEntity(ctx context.Context, e *Entity) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		_, err := tx.Run(ctx, `
			MERGE (e:Entity {id: $id})
			SET e.type = $type, e.path = $path, e.hash = $hash, e.language = $language
		`, map[string]interface{}{
			"id": e.ID, "type": e.Type, "path": e.Path, "hash": e.Hash, "language": e.Language,
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("upsert entity %s: %w", e.ID, err)
	}
	return nil
}

func (s *Neo4jGraphService) CreateRelationship(ctx context.Context, r *Relationship) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		query := fmt.Sprintf(`
			MATCH (from:Entity {id: $fromId})
			MERGE (to:Entity {id: $toId})
			MERGE (from)-[rel:%s {id: $id}]->(to)
		`, sanitizeRelType(r.Type))
		_, err := tx.Run(ctx, query, map[string]interface{}{
			"fromId": r.FromEntityID, "toId": r.ToEntityID, "id": r.ID,
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("create relationship %s: %w", r.ID, err)
	}
	return nil
}

func (s *Neo4jGraphService) CreateRelationshipsBulk(ctx context.Context, rels []*Relationship, opts BulkCreateOptions) error {
	for _, r := range rels {
		if opts.Validate && (r.FromEntityID == "" || r.ToEntityID == "") {
			return fmt.Errorf("relationship %s missing endpoint", r.ID)
		}
		if err := s.CreateRelationship(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *Neo4jGraphService) GetRelationships(ctx context.Context, query RelationshipQuery) ([]*Relationship, error) {
	return s.QueryRelationships(ctx, query)
}

func (s *Neo4jGraphService) QueryRelationships(ctx context.Context, query RelationshipQuery) ([]*Relationship, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	relType := "REL"
	if query.Type != "" {
		relType = sanitizeRelType(query.Type)
	}
	cypher := fmt.Sprintf(`
		MATCH (from:Entity)-[r:%s]->(to:Entity)
		WHERE ($fromId = '' OR from.id = $fromId) AND ($toId = '' OR to.id = $toId)
		RETURN r.id as id, from.id as fromId, to.id as toId
		LIMIT $limit
	`, relType)
	limit := query.Limit
	if limit <= 0 {
		limit = 1000
	}

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, cypher, map[string]interface{}{
			"fromId": query.FromEntityID, "toId": query.ToEntityID, "limit": limit,
		})
		if err != nil {
			return nil, err
		}
		var rels []*Relationship
		for res.Next(ctx) {
			record := res.Record()
			id, _ := record.Get("id")
			fromID, _ := record.Get("fromId")
			toID, _ := record.Get("toId")
			rels = append(rels, &Relationship{
				ID: toStr(id), FromEntityID: toStr(fromID), ToEntityID: toStr(toID), Type: query.Type,
			})
		}
		return rels, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	return result.([]*Relationship), nil
}

// CreateCheckpoint seeds a checkpoint by tagging the given entities with a
// Checkpoint marker node, expanded to every entity within opts.Hops hops of
// a seed, following relationships in either direction.
func (s *Neo4jGraphService) CreateCheckpoint(ctx context.Context, seedIDs []string, opts CheckpointOptions) (string, error) {
	hops := opts.Hops
	if hops <= 0 {
		hops = 1
	}
	if hops > 5 {
		hops = 5
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	checkpointID := fmt.Sprintf("checkpoint-%s", seedIDs[0])
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		query := fmt.Sprintf(`
			MATCH (seed:Entity) WHERE seed.id IN $seedIds
			MATCH (seed)-[*0..%d]-(impacted:Entity)
			MERGE (c:Checkpoint {id: $checkpointId, type: $type})
			MERGE (c)-[:SEEDED_BY]->(impacted)
		`, hops)
		_, err := tx.Run(ctx, query, map[string]interface{}{
			"seedIds": seedIDs, "checkpointId": checkpointID, "type": opts.Type,
		})
		return nil, err
	})
	if err != nil {
		return "", fmt.Errorf("create checkpoint: %w", err)
	}
	return checkpointID, nil
}

func recordToEntity(record *neo4j.Record) *Entity {
	get := func(key string) string {
		if v, ok := record.Get(key); ok && v != nil {
			return toStr(v)
		}
		return ""
	}
	return &Entity{
		ID: get("id"), Type: get("type"), Path: get("path"),
		Hash: get("hash"), Language: get("language"),
	}
}

func toStr(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// sanitizeRelType guards against Cypher injection through relationship type
// names, which Neo4j's driver cannot parameterize; only identifier
// characters survive.
func sanitizeRelType(t string) string {
	out := make([]byte, 0, len(t))
	for i := 0; i < len(t); i++ {
		c := t[i]
		if c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return "REL"
	}
	return string(out)
}
