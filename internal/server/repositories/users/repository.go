// Package users provides PostgreSQL-backed persistence for identity records.
package users

import (
	"context"

	"github.com/ivolkov/taskvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}
