package profiles

import (
	"context"

	"github.com/google/uuid"

	"github.com/corporatepranks/storefront-backend/pkg/db"
	"github.com/corporatepranks/storefront-backend/pkg/enums"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
)

// Buyer is the identity used to prefill a checkout.
type Buyer struct {
	UserID   uuid.UUID         `json:"user_id"`
	Email    string            `json:"email"`
	FullName string            `json:"full_name,omitempty"`
	Phone    string            `json:"phone,omitempty"`
	Role     enums.ProfileRole `json:"role"`
}

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) (*Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "profile repository required")
	}
	return &Service{repo: repo}, nil
}

// Buyer returns the buyer identity of userID, or nil when the user has no profile yet.
func (s *Service) Buyer(ctx context.Context, userID uuid.UUID) (*Buyer, error) {
	profile, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load profile")
	}
	return &Buyer{
		UserID:   profile.ID,
		Email:    profile.Email,
		FullName: profile.FullName,
		Phone:    profile.Phone,
		Role:     profile.Role,
	}, nil
}
