// Package services contains server-side business logic. This file implements
// UserService, which handles registration, login, and session token
// issuance/verification.
package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ivolkov/taskvault/internal/common"
	"github.com/ivolkov/taskvault/internal/dbx"
	"github.com/ivolkov/taskvault/internal/server/auth"
	"github.com/ivolkov/taskvault/internal/server/config"
	"github.com/ivolkov/taskvault/internal/server/models"
	"github.com/ivolkov/taskvault/internal/server/repositories/repomanager"
)

// UserService provides authentication-related operations:
//   - Register: create users with hashed credentials
//   - Login: verify credentials and mint a session token
//   - ResolveIdentity: map a presented token back to a user id
type UserService struct {
	db                    *sql.DB
	repomanager           repomanager.RepositoryManager
	hasher                *auth.PasswordHasher
	jwtSecret             []byte
	tokenValidityDuration time.Duration
	storeTimeout          time.Duration
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:                    db,
		repomanager:           m,
		hasher:                auth.NewPasswordHasher(),
		jwtSecret:             []byte(cfg.SecretKey),
		tokenValidityDuration: cfg.TokenValidityDuration,
		storeTimeout:          cfg.StoreTimeout,
	}
}

// Register creates a new user with a salted one-way password hash. A taken
// email yields common.ErrorAlreadyExists. The existence lookup and the
// insert run in one transaction; the lookup is a courtesy pre-check, and the
// unique index on users.email is what actually closes the
// concurrent-registration race, with the repository reporting that case as
// the same error.
func (s *UserService) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, common.ErrorInternal
	}

	var user *models.User
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		_, err := repo.GetByEmail(ctx, email)
		if err == nil {
			return common.ErrorAlreadyExists
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return err
		}

		user, err = repo.Create(ctx, &models.User{Name: name, Email: email, PasswordHash: hash})
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, common.ErrorInternal
	}

	return user, nil
}

// Login verifies the credentials and, on success, returns the user together
// with a freshly signed session token. Unknown email and wrong password are
// deliberately indistinguishable: both return common.ErrorUnauthorized.
func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, "", common.ErrorUnauthorized
		}
		return nil, "", common.ErrorInternal
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, "", common.ErrorUnauthorized
	}

	token, err := auth.GenerateToken(user.ID, s.jwtSecret, s.tokenValidityDuration)
	if err != nil {
		return nil, "", common.ErrorInternal
	}

	return user, token, nil
}

// ResolveIdentity verifies the presented token's signature and expiry and
// returns the embedded user id.
func (s *UserService) ResolveIdentity(token string) (string, error) {
	return auth.GetUserIDFromToken(token, s.jwtSecret)
}

// GetByID loads a user record, for the current-user endpoint.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.repomanager.Users(s.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, common.ErrorInternal
	}
	return user, nil
}
