package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/yakoovad/head2head/internal/auth"
	"github.com/yakoovad/head2head/internal/db"
	"github.com/yakoovad/head2head/internal/model"
	"github.com/yakoovad/head2head/internal/repository"
	"github.com/yakoovad/head2head/pkg/logger"
	"go.uber.org/zap"
)

const minPasswordLength = 6

var validate = validator.New(validator.WithRequiredStructEnabled())

type TokenIssuer interface {
	GenerateToken(userID int64) (string, error)
}

type UserService struct {
	tx db.Transactor

	users  repository.UserRepository
	tokens TokenIssuer
}

func NewUserService(tx db.Transactor) *UserService {
	return &UserService{tx: tx}
}

func (u *UserService) SignUp(ctx context.Context, req *model.SignUp) (*model.User, *Error) {
	l := logger.FromContext(ctx)

	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, validationError("username is required")
	}
	if len(req.Password) < minPasswordLength {
		return nil, validationError("password must be at least %d characters", minPasswordLength)
	}

	var email *string
	if req.Email != nil {
		if e := strings.ToLower(strings.TrimSpace(*req.Email)); e != "" {
			if err := validate.Var(e, "email"); err != nil {
				return nil, validationError("email must be valid")
			}
			email = &e
		}
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		l.Error("failed to hash password", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to create user")
	}

	user := &repository.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}
	err = u.users.Create(ctx, user)
	switch {
	case errors.Is(err, repository.ErrAlreadyExists):
		l.Warn("user already exists", zap.String("username", username))
		if strings.Contains(err.Error(), "email") {
			return nil, conflictError("email already in use")
		}
		return nil, conflictError("username already taken")
	case err != nil:
		l.Error("failed to create user", zap.String("username", username), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to create user")
	}

	l.Info("user signed up", zap.Int64("user_id", user.ID))

	return toModelUser(user), nil
}

// Login checks the credentials and issues a token for the user.
func (u *UserService) Login(ctx context.Context, username, password string) (string, *model.User, *Error) {
	l := logger.FromContext(ctx)

	user, err := u.users.GetByUsername(ctx, strings.TrimSpace(username))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return "", nil, NewError(ErrorCodeUnauthorized, "invalid credentials")
	case err != nil:
		l.Error("failed to get user", zap.String("username", username), zap.Error(err))
		return "", nil, NewError(ErrorCodeUnspecified, "failed to get user")
	}

	if err = auth.CheckPassword(user.PasswordHash, password); err != nil {
		l.Warn("wrong password", zap.Int64("user_id", user.ID))
		return "", nil, NewError(ErrorCodeUnauthorized, "invalid credentials")
	}

	token, err := u.tokens.GenerateToken(user.ID)
	if err != nil {
		l.Error("failed to generate token", zap.Int64("user_id", user.ID), zap.Error(err))
		return "", nil, NewError(ErrorCodeUnspecified, "failed to generate token")
	}

	return token, toModelUser(user), nil
}

func (u *UserService) GetUser(ctx context.Context, userID int64) (*model.User, *Error) {
	user, err := u.users.Get(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, notFoundError("user not found")
	case err != nil:
		logger.FromContext(ctx).Error("failed to get user", zap.Int64("user_id", userID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get user")
	}
	return toModelUser(user), nil
}

func toModelUser(u *repository.User) *model.User {
	return &model.User{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

func (u *UserService) WithUserRepo(userRepo repository.UserRepository) *UserService {
	u.users = userRepo
	return u
}

func (u *UserService) WithTokenIssuer(tokens TokenIssuer) *UserService {
	u.tokens = tokens
	return u
}
