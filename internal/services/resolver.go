package services

import (
	"context"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"gate-service/internal/repository"
)

// blockPrefix strips the leading structural word from free-text block names.
// Historical data stores "Block A", "BLOCK A", "Tower A" or just "A".
var blockPrefix = regexp.MustCompile(`^(BLOCK|TOWER|WING)\s+`)

// NormalizeBlockName makes free-text block names comparable: uppercase,
// leading structural word stripped, surrounding whitespace trimmed.
func NormalizeBlockName(name string) string {
	upper := strings.ToUpper(strings.TrimSpace(name))
	return strings.TrimSpace(blockPrefix.ReplaceAllString(upper, ""))
}

// TokenResolver turns a dispatch target into the deduplicated set of valid
// device tokens. Canonical and legacy data coexist, so both strategies run
// and their results are unioned rather than short-circuited.
type TokenResolver struct {
	directory      repository.DirectoryRepository
	minTokenLength int
	logger         *logrus.Entry
}

// NewTokenResolver creates a new token resolver
func NewTokenResolver(directory repository.DirectoryRepository, minTokenLength int) *TokenResolver {
	return &TokenResolver{
		directory:      directory,
		minTokenLength: minTokenLength,
		logger:         logrus.WithField("component", "token_resolver"),
	}
}

// ResolveFlat resolves tokens for one unit. Lookup failures in either
// strategy degrade to an empty contribution; a bad legacy record never
// blocks sends to residents found the canonical way.
func (r *TokenResolver) ResolveFlat(ctx context.Context, residencyID, flatID string) []string {
	var tokens []string

	// Strategy A (canonical): direct match on the residents' flat_id field
	byID, err := r.directory.FindByFlatID(ctx, residencyID, flatID)
	if err != nil {
		r.logger.WithError(err).WithField("flat_id", flatID).Warn("Canonical resident lookup failed")
	}
	for _, resident := range byID {
		tokens = append(tokens, resident.FCMToken)
	}

	// Strategy B (legacy): flat record -> block record -> normalized name
	// match against the residents' denormalized (block, flat) pair
	tokens = append(tokens, r.resolveLegacy(ctx, residencyID, flatID)...)

	return r.filterTokens(tokens)
}

func (r *TokenResolver) resolveLegacy(ctx context.Context, residencyID, flatID string) []string {
	flat, err := r.directory.GetFlat(ctx, residencyID, flatID)
	if err != nil || flat == nil {
		if err != nil {
			r.logger.WithError(err).WithField("flat_id", flatID).Warn("Flat lookup failed")
		}
		return nil
	}

	block, err := r.directory.GetBlock(ctx, residencyID, flat.BlockID)
	if err != nil || block == nil {
		if err != nil {
			r.logger.WithError(err).WithField("block_id", flat.BlockID).Warn("Block lookup failed")
		}
		return nil
	}

	residents, err := r.directory.FindByFlatNumber(ctx, residencyID, flat.Number)
	if err != nil {
		r.logger.WithError(err).WithField("flat_number", flat.Number).Warn("Legacy resident lookup failed")
		return nil
	}

	// Normalized comparison covers both the raw stored name and the
	// historical "BLOCK <name>" prefixed form.
	target := NormalizeBlockName(block.Name)
	var tokens []string
	for _, resident := range residents {
		if NormalizeBlockName(resident.Block) == target {
			tokens = append(tokens, resident.FCMToken)
		}
	}
	return tokens
}

// ResolveBroadcast collects every present token in the residency
func (r *TokenResolver) ResolveBroadcast(ctx context.Context, residencyID string) []string {
	residents, err := r.directory.ListWithTokens(ctx, residencyID)
	if err != nil {
		r.logger.WithError(err).WithField("residency_id", residencyID).Warn("Broadcast resident lookup failed")
		return nil
	}

	tokens := make([]string, 0, len(residents))
	for _, resident := range residents {
		tokens = append(tokens, resident.FCMToken)
	}
	return r.filterTokens(tokens)
}

// filterTokens deduplicates and drops values too short to be real device
// tokens (empty strings, placeholders accidentally stored in the field).
func (r *TokenResolver) filterTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	var valid []string
	for _, token := range tokens {
		if len(token) <= r.minTokenLength {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		valid = append(valid, token)
	}
	return valid
}
