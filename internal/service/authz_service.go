package service

import (
	"context"

	"github.com/cassiomorais/marketplace/internal/domain/errors"
	"github.com/cassiomorais/marketplace/internal/middleware"
	"github.com/google/uuid"
)

type AuthzService struct{}

func NewAuthzService() *AuthzService {
	return &AuthzService{}
}

// CurrentSellerID returns the seller the caller acts for.
func (s *AuthzService) CurrentSellerID(ctx context.Context) (uuid.UUID, error) {
	claims, ok := middleware.GetClaims(ctx)
	if !ok {
		return uuid.Nil, errors.ErrUnauthorized
	}
	if claims.SellerID == "" {
		return uuid.Nil, errors.ErrForbidden
	}
	id, err := uuid.Parse(claims.SellerID)
	if err != nil {
		return uuid.Nil, errors.ErrForbidden
	}
	return id, nil
}

// VerifySellerAccess allows admins and the seller itself.
func (s *AuthzService) VerifySellerAccess(ctx context.Context, sellerID uuid.UUID) error {
	claims, ok := middleware.GetClaims(ctx)
	if !ok {
		return errors.ErrUnauthorized
	}
	if claims.Role == middleware.RoleAdmin {
		return nil
	}

	current, err := s.CurrentSellerID(ctx)
	if err != nil {
		return err
	}
	if current != sellerID {
		return errors.ErrForbidden
	}
	return nil
}

// ActorID returns the authenticated user id, or "system".
func (s *AuthzService) ActorID(ctx context.Context) string {
	if id, ok := middleware.GetUserID(ctx); ok && id != "" {
		return id
	}
	return "system"
}
