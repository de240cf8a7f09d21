package workerpool

import (
	"context"
	"fmt"
	"time"

	"github.com/memento-graph/memento/internal/collaborators"
	"github.com/memento-graph/memento/internal/graphmodel"
)

// FragmentEmitter receives fragments a parser task produced, handing them to
// whatever assembles them into batches (internal/batchcoordinator in the
// full pipeline).
type FragmentEmitter interface {
	Emit(fragment graphmodel.ChangeFragment)
}

// FragmentParser turns one ChangeEvent's payload into zero or more
// fragments. The embedding/markdown tokenizer that actually understands
// source text is an out-of-scope external collaborator (spec §1); this
// interface is the seam the parser task calls through.
type FragmentParser interface {
	Parse(ctx context.Context, event graphmodel.ChangeEvent) ([]graphmodel.ChangeFragment, error)
}

// ParserProcessor is the TaskParser Processor: dequeues a ChangeEvent,
// parses it into fragments, and emits them downstream.
type ParserProcessor struct {
	Parser  FragmentParser
	Emitter FragmentEmitter
	timeout time.Duration
}

// NewParserProcessor builds a ParserProcessor with the given per-task timeout.
func NewParserProcessor(parser FragmentParser, emitter FragmentEmitter, timeout time.Duration) *ParserProcessor {
	return &ParserProcessor{Parser: parser, Emitter: emitter, timeout: timeout}
}

func (p *ParserProcessor) Timeout(*Task) time.Duration { return p.timeout }

func (p *ParserProcessor) Process(ctx context.Context, task *Task) error {
	event, ok := task.Data.(graphmodel.ChangeEvent)
	if !ok {
		return fmt.Errorf("parser task %s: expected graphmodel.ChangeEvent, got %T", task.ID, task.Data)
	}
	fragments, err := p.Parser.Parse(ctx, event)
	if err != nil {
		return fmt.Errorf("parse event %s: %w", event.ID, err)
	}
	for _, f := range fragments {
		p.Emitter.Emit(f)
	}
	return nil
}

// EntityProcessor is the TaskEntity Processor: writes entity fragments to
// the knowledge graph collaborator.
type EntityProcessor struct {
	Graph   collaborators.KnowledgeGraphService
	timeout time.Duration
}

func NewEntityProcessor(graph collaborators.KnowledgeGraphService, timeout time.Duration) *EntityProcessor {
	return &EntityProcessor{Graph: graph, timeout: timeout}
}

func (p *EntityProcessor) Timeout(*Task) time.Duration { return p.timeout }

func (p *EntityProcessor) Process(ctx context.Context, task *Task) error {
	fragment, ok := task.Data.(graphmodel.ChangeFragment)
	if !ok || fragment.Kind != graphmodel.FragmentEntity || fragment.Entity == nil {
		return fmt.Errorf("entity task %s: expected entity fragment, got %T", task.ID, task.Data)
	}
	entity := &collaborators.Entity{
		ID:         fragment.Entity.ID,
		Type:       fragment.Entity.Type,
		Path:       fragment.Entity.Path,
		Hash:       fragment.Entity.Hash,
		Language:   fragment.Entity.Language,
		Attributes: fragment.Entity.Attributes,
	}
	return p.Graph.CreateOrUpdateEntity(ctx, entity)
}

// RelationshipProcessor is the TaskRelationship Processor: writes
// relationship fragments to the knowledge graph collaborator.
type RelationshipProcessor struct {
	Graph   collaborators.KnowledgeGraphService
	timeout time.Duration
}

func NewRelationshipProcessor(graph collaborators.KnowledgeGraphService, timeout time.Duration) *RelationshipProcessor {
	return &RelationshipProcessor{Graph: graph, timeout: timeout}
}

func (p *RelationshipProcessor) Timeout(*Task) time.Duration { return p.timeout }

func (p *RelationshipProcessor) Process(ctx context.Context, task *Task) error {
	fragment, ok := task.Data.(graphmodel.ChangeFragment)
	if !ok || fragment.Kind != graphmodel.FragmentRelationship || fragment.Relationship == nil {
		return fmt.Errorf("relationship task %s: expected relationship fragment, got %T", task.ID, task.Data)
	}
	rel := &collaborators.Relationship{
		ID:           fragment.Relationship.ID,
		FromEntityID: fragment.Relationship.FromEntityID,
		ToEntityID:   fragment.Relationship.ToEntityID,
		Type:         fragment.Relationship.Type,
		Metadata:     fragment.Relationship.Metadata,
	}
	return p.Graph.CreateRelationship(ctx, rel)
}

// EmbeddingSink is the out-of-scope embedding vector index, consumed
// through a narrow interface per spec §1's external-collaborator contract.
type EmbeddingSink interface {
	Upsert(ctx context.Context, entityID string, vector []float32) error
}

// EmbeddingProcessor is the TaskEmbedding Processor: forwards a precomputed
// vector to the embedding index collaborator. Memento does not compute
// embeddings itself; the task's Data already carries the vector produced by
// an out-of-scope collaborator.
type EmbeddingProcessor struct {
	Sink    EmbeddingSink
	timeout time.Duration
}

func NewEmbeddingProcessor(sink EmbeddingSink, timeout time.Duration) *EmbeddingProcessor {
	return &EmbeddingProcessor{Sink: sink, timeout: timeout}
}

func (p *EmbeddingProcessor) Timeout(*Task) time.Duration { return p.timeout }

// EmbeddingTask is the payload an EmbeddingProcessor task carries.
type EmbeddingTask struct {
	EntityID string
	Vector   []float32
}

func (p *EmbeddingProcessor) Process(ctx context.Context, task *Task) error {
	et, ok := task.Data.(EmbeddingTask)
	if !ok {
		return fmt.Errorf("embedding task %s: expected EmbeddingTask, got %T", task.ID, task.Data)
	}
	return p.Sink.Upsert(ctx, et.EntityID, et.Vector)
}
