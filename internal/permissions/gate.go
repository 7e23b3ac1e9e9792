package permissions

import (
	"context"
	"errors"
	"fmt"

	"pairchat/internal/models"
	"pairchat/internal/repositories"
)

// Gate loads both users and the pair's request history before applying the rules.
type Gate struct {
	users    repositories.UserRepository
	requests repositories.ChatRequestRepository
}

// NewGate builds a Gate.
func NewGate(users repositories.UserRepository, requests repositories.ChatRequestRepository) *Gate {
	return &Gate{users: users, requests: requests}
}

// Pair is the loaded state of a caller and a counterpart.
type Pair struct {
	Caller models.User
	Other  models.User
	Latest *models.ChatRequest
}

// Load fetches the caller, the other user and the pair's latest request.
func (g *Gate) Load(ctx context.Context, callerID, otherID string) (Pair, error) {
	if callerID == otherID {
		return Pair{}, ErrSelfTarget
	}
	caller, err := g.users.GetUser(ctx, callerID)
	if err != nil {
		return Pair{}, fmt.Errorf("load caller: %w", err)
	}
	other, err := g.users.GetUser(ctx, otherID)
	if err != nil {
		return Pair{}, fmt.Errorf("load user: %w", err)
	}
	pair := Pair{Caller: caller, Other: other}

	latest, err := g.requests.Latest(ctx, models.ChatID(callerID, otherID))
	switch {
	case err == nil:
		pair.Latest = &latest
	case !errors.Is(err, repositories.ErrChatRequestNotFound):
		return Pair{}, fmt.Errorf("load chat request: %w", err)
	}
	return pair, nil
}

// Authorize returns the loaded pair when the caller may message otherID.
func (g *Gate) Authorize(ctx context.Context, callerID, otherID string) (Pair, error) {
	pair, err := g.Load(ctx, callerID, otherID)
	if err != nil {
		return Pair{}, err
	}
	if err := CheckMessaging(pair.Caller, pair.Other, pair.Latest); err != nil {
		return Pair{}, err
	}
	return pair, nil
}

// Permission resolves the relationship between the caller and otherID.
func (g *Gate) Permission(ctx context.Context, callerID, otherID string) (Permission, error) {
	pair, err := g.Load(ctx, callerID, otherID)
	if err != nil {
		return Permission{}, err
	}
	return Resolve(pair.Caller, pair.Other, pair.Latest), nil
}
