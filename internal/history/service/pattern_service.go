package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/helicon-e2e/trailhead/internal/history/model"
	orchModel "github.com/helicon-e2e/trailhead/internal/orchestrator/model"
	"github.com/helicon-e2e/trailhead/internal/vector"
	"go.uber.org/zap"
)

const (
	defaultSearchTimeout    = 2 * time.Second
	defaultSuccessThreshold = 0.7
)

type PatternServiceConfig struct {
	// SuccessThreshold is the success rate at or above which a mined flow is
	// classified SUCCESS_FLOW rather than a failure pattern.
	SuccessThreshold float64
	// SearchTimeout bounds every similarity-search call.
	SearchTimeout time.Duration
}

func (c *PatternServiceConfig) ApplyDefaults() {
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = defaultSuccessThreshold
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = defaultSearchTimeout
	}
}

// PatternService mines the execution history store into aggregated patterns
// keyed by service-flow signature, keeps those aggregates refined through
// incremental updates, and answers similarity queries from a live test
// context. Similarity search is advisory: any backend failure degrades to an
// empty result, never to an error for the caller.
type PatternService struct {
	histories ExecutionHistoryStore
	patterns  PatternStore
	index     vector.SearchIndex
	config    PatternServiceConfig
	logger    *zap.Logger
}

// NewPatternService creates the service. index may be nil, which disables
// similarity search (FindSimilarPatterns then always returns empty).
func NewPatternService(
	histories ExecutionHistoryStore,
	patterns PatternStore,
	index vector.SearchIndex,
	config PatternServiceConfig,
	logger *zap.Logger,
) *PatternService {
	config.ApplyDefaults()
	return &PatternService{
		histories: histories,
		patterns:  patterns,
		index:     index,
		config:    config,
		logger:    logger,
	}
}

// AnalyzeAndExtractPatterns groups all stored histories by service-flow
// signature and reduces every group with at least minSampleSize samples into
// a pattern. Existing patterns absorb only histories newer than their
// last-used watermark, so repeated extraction runs never double-count a
// sample.
func (ps *PatternService) AnalyzeAndExtractPatterns(ctx context.Context, minSampleSize int) ([]model.Pattern, error) {
	if minSampleSize < 1 {
		minSampleSize = 1
	}
	histories, err := ps.histories.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load execution histories: %w", err)
	}

	groups := make(map[string][]model.ExecutionHistory)
	for _, history := range histories {
		signature := model.FlowSignature(history.ServiceFlow)
		groups[signature] = append(groups[signature], history)
	}

	extracted := make([]model.Pattern, 0, len(groups))
	for signature, group := range groups {
		if len(group) < minSampleSize {
			continue
		}
		pattern, err := ps.reduceGroup(ctx, signature, group)
		if err != nil {
			ps.logger.Error("Failed to reduce history group into pattern",
				zap.String("signature", signature),
				zap.Error(err),
			)
			continue
		}
		if pattern != nil {
			extracted = append(extracted, *pattern)
		}
	}
	return extracted, nil
}

func (ps *PatternService) reduceGroup(
	ctx context.Context,
	signature string,
	group []model.ExecutionHistory,
) (*model.Pattern, error) {
	existing, err := ps.patterns.GetBySignature(ctx, signature)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		return ps.createPattern(ctx, signature, group)
	}

	// Incorporate only samples past the watermark via the incremental rule,
	// keeping the stored aggregate equal to the true mean over all samples.
	updated := existing
	for _, history := range group {
		if !history.EndTime.After(existing.LastUsed) {
			continue
		}
		updated, err = ps.applyUsage(ctx, existing.PatternID, history.Status == model.OutcomeCompleted, history.DurationMs, history.EndTime)
		if err != nil {
			return nil, err
		}
	}
	return updated, nil
}

func (ps *PatternService) createPattern(
	ctx context.Context,
	signature string,
	group []model.ExecutionHistory,
) (*model.Pattern, error) {
	total := len(group)
	successes := 0
	timeouts := 0
	var durationSum float64
	watermark := group[0].EndTime
	for _, history := range group {
		if history.Status == model.OutcomeCompleted {
			successes++
		}
		if history.Status == model.OutcomeTimeout {
			timeouts++
		}
		durationSum += float64(history.DurationMs)
		if history.EndTime.After(watermark) {
			watermark = history.EndTime
		}
	}
	successRate := float64(successes) / float64(total)

	pattern := model.Pattern{
		PatternID:          "pattern-" + uuid.NewString(),
		Label:              fmt.Sprintf("flow %s", signature),
		Type:               ps.classify(successRate, timeouts, total-successes),
		ServiceFlow:        group[0].ServiceFlow,
		Signature:          signature,
		UsageCount:         int64(total),
		SuccessRate:        successRate,
		AvgExecutionTimeMs: durationSum / float64(total),
		LastUsed:           watermark,
		EmbeddingKey:       signature,
		CreatedAt:          time.Now(),
	}
	if err := ps.patterns.Save(ctx, pattern); err != nil {
		return nil, fmt.Errorf("failed to save pattern for signature %s: %w", signature, err)
	}
	ps.indexPattern(ctx, pattern)

	ps.logger.Info("Extracted new pattern",
		zap.String("pattern_id", pattern.PatternID),
		zap.String("signature", signature),
		zap.Int64("usage_count", pattern.UsageCount),
		zap.Float64("success_rate", pattern.SuccessRate),
	)
	return &pattern, nil
}

func (ps *PatternService) classify(successRate float64, timeouts int, failures int) model.PatternType {
	if successRate >= ps.config.SuccessThreshold {
		return model.PatternSuccessFlow
	}
	if failures > 0 && timeouts*2 > failures {
		return model.PatternTimeoutPattern
	}
	return model.PatternFailurePattern
}

// UpdatePatternUsage incorporates one more observed sample into the pattern's
// running aggregates:
//
//	newRate = (oldRate*(n-1) + sample) / n
//	newAvg  = oldAvg + (duration-oldAvg)/n
//
// with n the post-increment usage count. The update is atomic per pattern id,
// so concurrent completions with the same signature never lose a sample.
// Returns nil for an unknown pattern id.
func (ps *PatternService) UpdatePatternUsage(
	ctx context.Context,
	patternID string,
	wasSuccessful bool,
	durationMs int64,
) (*model.Pattern, error) {
	return ps.applyUsage(ctx, patternID, wasSuccessful, durationMs, time.Now())
}

func (ps *PatternService) applyUsage(
	ctx context.Context,
	patternID string,
	wasSuccessful bool,
	durationMs int64,
	usedAt time.Time,
) (*model.Pattern, error) {
	sample := 0.0
	if wasSuccessful {
		sample = 1.0
	}
	updated, err := ps.patterns.Update(ctx, patternID, func(pattern *model.Pattern) {
		n := pattern.UsageCount + 1
		pattern.SuccessRate = (pattern.SuccessRate*float64(n-1) + sample) / float64(n)
		pattern.AvgExecutionTimeMs += (float64(durationMs) - pattern.AvgExecutionTimeMs) / float64(n)
		pattern.UsageCount = n
		if usedAt.After(pattern.LastUsed) {
			pattern.LastUsed = usedAt
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update pattern %s: %w", patternID, err)
	}
	return updated, nil
}

// RecordOutcome folds a finished execution into the pattern registered for
// its signature, if one exists. Unknown signatures are left to the next
// extraction run.
func (ps *PatternService) RecordOutcome(
	ctx context.Context,
	serviceFlow []string,
	wasSuccessful bool,
	durationMs int64,
) error {
	pattern, err := ps.patterns.GetBySignature(ctx, model.FlowSignature(serviceFlow))
	if err != nil || pattern == nil {
		return err
	}
	_, err = ps.UpdatePatternUsage(ctx, pattern.PatternID, wasSuccessful, durationMs)
	return err
}

// FindSimilarPatterns runs a similarity search of the context's observed
// service flow against the stored patterns and returns at most topK matches,
// best first. Any search failure, timeout or missing backend yields an empty
// list: pattern suggestions are advisory, never load-bearing.
func (ps *PatternService) FindSimilarPatterns(
	ctx context.Context,
	testContext *orchModel.TestContext,
	topK int,
) []model.Pattern {
	if ps.index == nil || testContext == nil || topK <= 0 {
		return nil
	}
	query := vector.EmbedServiceFlow(testContext.ServiceFlow())
	if len(query) == 0 {
		return nil
	}

	searchCtx, cancel := context.WithTimeout(ctx, ps.config.SearchTimeout)
	defer cancel()
	matches, err := ps.index.Search(searchCtx, query, topK)
	if err != nil {
		ps.logger.Warn("Similarity search failed, returning no suggestions", zap.Error(err))
		return nil
	}

	out := make([]model.Pattern, 0, len(matches))
	for _, match := range matches {
		pattern, err := ps.patterns.Get(ctx, match.ID)
		if err != nil {
			ps.logger.Warn("Failed to load matched pattern",
				zap.String("pattern_id", match.ID),
				zap.Error(err),
			)
			continue
		}
		if pattern != nil {
			out = append(out, *pattern)
		}
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

// FindPatternsByType lists stored patterns of one kind; empty when none
// match.
func (ps *PatternService) FindPatternsByType(ctx context.Context, patternType model.PatternType) []model.Pattern {
	patterns, err := ps.patterns.FindByType(ctx, patternType)
	if err != nil {
		ps.logger.Warn("Failed to list patterns by type",
			zap.String("pattern_type", string(patternType)),
			zap.Error(err),
		)
		return nil
	}
	return patterns
}

// GetPattern fetches one pattern by id; nil when unknown.
func (ps *PatternService) GetPattern(ctx context.Context, patternID string) *model.Pattern {
	pattern, err := ps.patterns.Get(ctx, patternID)
	if err != nil {
		ps.logger.Warn("Failed to load pattern", zap.String("pattern_id", patternID), zap.Error(err))
		return nil
	}
	return pattern
}

func (ps *PatternService) indexPattern(ctx context.Context, pattern model.Pattern) {
	if ps.index == nil {
		return
	}
	indexCtx, cancel := context.WithTimeout(ctx, ps.config.SearchTimeout)
	defer cancel()
	embedding := vector.EmbedServiceFlow(pattern.ServiceFlow)
	err := ps.index.Upsert(indexCtx, pattern.PatternID, embedding, map[string]string{
		"signature": pattern.Signature,
		"type":      string(pattern.Type),
	})
	if err != nil {
		// Advisory index only; the pattern store remains authoritative.
		ps.logger.Warn("Failed to index pattern embedding",
			zap.String("pattern_id", pattern.PatternID),
			zap.Error(err),
		)
	}
}
