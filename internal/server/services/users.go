// Package services contains server-side business logic. This file implements
// UserService, which handles registration, login, and issuing/refreshing JWTs
// plus server-stored refresh tokens.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ipsvault/ips/internal/common"
	"github.com/ipsvault/ips/internal/dbx"
	"github.com/ipsvault/ips/internal/server/auth"
	"github.com/ipsvault/ips/internal/server/config"
	"github.com/ipsvault/ips/internal/server/models"
	"github.com/ipsvault/ips/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// UserService provides authentication-related operations:
// registration, login and refresh token rotation.
type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
	}
}

// Register creates an account. Missing fields or a taken username/email
// yield a validation error carrying the client-facing message.
func (s *UserService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return nil, common.Invalid("username, email and password are required")
	}

	repo := s.repomanager.Users(s.db)

	taken, err := repo.ExistsByUserName(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("error checking username: %w", err)
	}
	if taken {
		return nil, common.Invalid("username already exists")
	}

	taken, err = repo.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("error checking email: %w", err)
	}
	if taken {
		return nil, common.Invalid("email already registered")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user, err := repo.Create(ctx, &models.User{UserName: username, Email: email, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.Invalid("username already exists")
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return user, nil
}

// Login checks the credentials and, on success, returns the user and a new TokenPair.
func (s *UserService) Login(ctx context.Context, username, password string) (*models.User, *TokenPair, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, nil, common.Invalid("username and password are required")
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByUserName(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrorUnauthorized
		}
		return nil, nil, common.ErrorInternal
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, nil, common.ErrorUnauthorized
	}

	pair, err := s.generateTokenPair(ctx, user.ID, s.db)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// RefreshToken validates a refresh token, rotates it transactionally, and
// returns a fresh TokenPair. Expired tokens yield ErrRefreshTokenExpired.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	repo := s.repomanager.RefreshTokens(s.db)

	token, err := repo.Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}

	if token.Expires.Before(time.Now()) {
		_ = repo.Delete(ctx, refreshToken)
		return nil, common.ErrRefreshTokenExpired
	}

	var pair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		// Deleting inside the transaction redeems the token exactly once.
		if err := s.repomanager.RefreshTokens(tx).Delete(ctx, refreshToken); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorUnauthorized
			}
			return fmt.Errorf("error deleting refresh token: %w", err)
		}
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, token.UserID, tx)
		return genErr
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Authenticate resolves an access token to the user id it was issued for.
func (s *UserService) Authenticate(accessToken string) (int64, error) {
	sub, err := auth.GetUserIDFromToken(accessToken, s.jwtSecret)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, common.ErrInvalidToken
	}
	return id, nil
}

func (s *UserService) generateTokenPair(ctx context.Context, userID int64, db dbx.DBTX) (*TokenPair, error) {
	access, err := auth.GenerateToken(strconv.FormatInt(userID, 10), s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}

	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}

	if err := s.repomanager.RefreshTokens(db).Create(ctx, userID, refresh, s.refreshTokenValidityDuration); err != nil {
		return nil, common.ErrorInternal
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
