package principal

import "context"

// Service wraps principal lookups for the identity loader.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Load fetches the current principal record by ID.
func (s *Service) Load(ctx context.Context, id int64) (*Principal, error) {
	return s.repo.GetByID(ctx, id)
}

// Attributes returns the principal's attribute list.
func (s *Service) Attributes(ctx context.Context, id int64) ([]Attribute, error) {
	return s.repo.ListAttributes(ctx, id)
}
