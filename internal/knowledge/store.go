// Package knowledge implements the confidence-weighted memory the agent
// learns from: typed items embedded by signature, similarity search with
// read-time decay, and reinforcement updates that sharpen or erode
// confidence as fixes are replayed.
package knowledge

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/wander-cli/api/schemas"
)

// minDecisionConfidence filters memory hits before they reach the decision
// engine.
const minDecisionConfidence = 0.3

// defaultTopK bounds each per-type similarity search.
const defaultTopK = 5

// Store wires an embedder to a vector backend. It is safe for concurrent
// use across runs: every mutation is a read-modify-write of a single point
// by id.
type Store struct {
	backend  schemas.VectorBackend
	embedder schemas.Embedder
	logger   *zap.Logger
	now      func() time.Time
}

func NewStore(backend schemas.VectorBackend, embedder schemas.Embedder, logger *zap.Logger) *Store {
	return &Store{
		backend:  backend,
		embedder: embedder,
		logger:   logger.Named("knowledge"),
		now:      time.Now,
	}
}

// Init makes sure the backing collection exists with the embedder's
// dimension.
func (s *Store) Init(ctx context.Context) error {
	return s.backend.EnsureCollection(ctx, s.embedder.Dimension())
}

// Put validates and normalizes the item, embeds its signature, and upserts
// it. The returned item carries the assigned id and computed fields. Write
// failures are reported but are never fatal to a run; callers log and move
// on.
func (s *Store) Put(ctx context.Context, item schemas.KnowledgeItem) (schemas.KnowledgeItem, error) {
	if item.Content == "" {
		return item, fmt.Errorf("knowledge item requires content")
	}
	if item.RunID == "" {
		return item, fmt.Errorf("knowledge item requires a run id")
	}

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.ErrorSignature == "" {
		item.ErrorSignature = NormalizeSignature(item.Content)
	}
	if item.CreatedAt == 0 {
		item.CreatedAt = s.now().UnixMilli()
	}
	item.Confidence = ComputeConfidence(item.SuccessCount, item.FailureCount)

	// The signature, not the raw content, is what gets embedded, so noisy
	// ids and timestamps cannot scatter recurrences of one failure across
	// vector space.
	vector, err := s.embedder.Embed(ctx, item.ErrorSignature)
	if err != nil {
		return item, fmt.Errorf("failed to embed signature: %w", err)
	}

	point := schemas.VectorPoint{ID: item.ID, Vector: vector, Payload: item}
	if err := s.backend.Upsert(ctx, point); err != nil {
		return item, fmt.Errorf("failed to upsert knowledge item: %w", err)
	}

	s.logger.Debug("Stored knowledge item.",
		zap.String("type", string(item.Type)),
		zap.String("id", item.ID),
		zap.Float64("confidence", item.Confidence))
	return item, nil
}

// Search embeds the query and runs a similarity search, optionally filtered
// by type. Read-time decay is applied to every hit that has been used
// before. Backend failures degrade to an empty result set.
func (s *Store) Search(ctx context.Context, query string, filterType schemas.KnowledgeType, topK int) []schemas.KnowledgeItem {
	if topK <= 0 {
		topK = defaultTopK
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("Query embedding failed; returning no memories.", zap.Error(err))
		return nil
	}

	points, err := s.backend.Search(ctx, vector, filterType, topK)
	if err != nil {
		s.logger.Warn("Knowledge search failed; returning no memories.", zap.Error(err))
		return nil
	}

	now := s.now()
	items := make([]schemas.KnowledgeItem, 0, len(points))
	for _, p := range points {
		item := p.Payload
		item.Confidence = DecayConfidence(item.Confidence, item.LastUsed, now)
		item.Score = p.Score
		items = append(items, item)
	}
	return items
}

// QueryForDecision fans out the three memory reads the decision engine
// consumes (error, fix, pattern), merges everything above the confidence
// floor, and sorts descending by confidence. The reads are independent, so
// they run concurrently; each degrades to an empty slice on its own.
func (s *Store) QueryForDecision(ctx context.Context, query string, topK int) []schemas.KnowledgeItem {
	types := []schemas.KnowledgeType{
		schemas.KnowledgeError,
		schemas.KnowledgeFix,
		schemas.KnowledgePattern,
	}

	results := make([][]schemas.KnowledgeItem, len(types))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range types {
		g.Go(func() error {
			results[i] = s.Search(gctx, query, t, topK)
			return nil
		})
	}
	// Search never returns an error, so Wait cannot fail; it only joins.
	_ = g.Wait()

	var merged []schemas.KnowledgeItem
	for _, items := range results {
		for _, item := range items {
			if item.Confidence > minDecisionConfidence {
				merged = append(merged, item)
			}
		}
	}
	sortByConfidence(merged)
	return merged
}

// Reinforce applies an outcome to a stored item: bump the matching counter,
// shift confidence by the boost, stamp usage, and re-upsert with the same
// vector. A missing item is not an error; memory is best-effort.
func (s *Store) Reinforce(ctx context.Context, id string, success bool, boost float64) error {
	point, err := s.backend.Retrieve(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to retrieve knowledge item %s: %w", id, err)
	}
	if point == nil {
		return nil
	}

	item := point.Payload
	if success {
		item.SuccessCount++
	} else {
		item.FailureCount++
	}
	item.Confidence = ApplyBoost(item.Confidence, success, boost)
	item.LastUsed = s.now().UnixMilli()
	item.UsageCount++

	point.Payload = item
	if err := s.backend.Upsert(ctx, *point); err != nil {
		return fmt.Errorf("failed to re-upsert knowledge item %s: %w", id, err)
	}

	s.logger.Debug("Reinforced knowledge item.",
		zap.String("id", id), zap.Bool("success", success),
		zap.Float64("confidence", item.Confidence))
	return nil
}

func sortByConfidence(items []schemas.KnowledgeItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Confidence > items[j].Confidence
	})
}
