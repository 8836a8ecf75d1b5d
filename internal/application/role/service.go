package role

import (
	"context"

	"github.com/go-shop-api/internal/domain"
)

type Service interface {
	List(ctx context.Context) []domain.RoleInfo
}

type service struct{}

func NewService() Service { return &service{} }

// List returns the fixed role catalogue, least privileged first.
func (s *service) List(_ context.Context) []domain.RoleInfo {
	out := make([]domain.RoleInfo, 0, len(domain.Roles))
	for _, r := range domain.Roles {
		out = append(out, domain.RoleInfo{Name: r, Description: r.Description()})
	}
	return out
}
