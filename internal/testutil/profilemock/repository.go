package profilemock

import (
	"context"

	domain "mazaochain/internal/domain/profile"
)

var _ domain.Repository = (*Repo)(nil)

// Repo is a function-backed mock that satisfies domain.Repository.
// Profiles registered with Put are served without a GetByUserIDFn.
type Repo struct {
	GetByUserIDFn func(ctx context.Context, userID string) (*domain.Profile, error)
	profiles      map[string]*domain.Profile
}

func (m *Repo) Put(p *domain.Profile) *Repo {
	if m.profiles == nil {
		m.profiles = map[string]*domain.Profile{}
	}
	m.profiles[p.UserID] = p
	return m
}

func (m *Repo) GetByUserID(ctx context.Context, userID string) (*domain.Profile, error) {
	if m.GetByUserIDFn != nil {
		return m.GetByUserIDFn(ctx, userID)
	}
	if p, ok := m.profiles[userID]; ok {
		return p, nil
	}
	return nil, domain.ErrNotFound
}
