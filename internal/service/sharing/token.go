package sharing

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/vertextoedge/sharelink/internal/domain"
	"github.com/vertextoedge/sharelink/internal/domain/repository"
)

const maxTokenAttempts = 5

// TokenGenerator issues share tokens: a random (v4) UUID rendered as 32 hex chars
type TokenGenerator struct {
	shares  repository.ShareRepository
	newUUID func() (uuid.UUID, error)
}

// NewTokenGenerator creates a new TokenGenerator
func NewTokenGenerator(shares repository.ShareRepository) *TokenGenerator {
	return &TokenGenerator{
		shares:  shares,
		newUUID: uuid.NewRandom,
	}
}

// Generate returns a fresh token without checking the store
func (g *TokenGenerator) Generate() (string, error) {
	id, err := g.newUUID()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(id[:]), nil
}

// GenerateUnique returns a token no existing share uses.
// It gives up with domain.ErrConflict after maxTokenAttempts collisions.
func (g *TokenGenerator) GenerateUnique(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := g.Generate()
		if err != nil {
			return "", err
		}

		exists, err := g.shares.TokenExists(ctx, token)
		if err != nil {
			return "", fmt.Errorf("failed to check token: %w", err)
		}
		if !exists {
			return token, nil
		}
	}
	return "", fmt.Errorf("no unique token after %d attempts: %w", maxTokenAttempts, domain.ErrConflict)
}
