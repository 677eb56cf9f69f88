package memory

import (
	"context"

	"github.com/pkg/errors"
	"github.com/yakoovad/head2head/internal/repository"
)

type userRepo struct {
	s *Store
}

func (r *userRepo) Create(ctx context.Context, user *repository.User) error {
	defer r.s.acquire(ctx)()
	st := r.s.state

	for _, u := range st.users {
		if u.Username == user.Username {
			return errors.Wrap(repository.ErrAlreadyExists, "users_username_key")
		}
		if user.Email != nil && u.Email != nil && *u.Email == *user.Email {
			return errors.Wrap(repository.ErrAlreadyExists, "users_email_key")
		}
	}

	user.ID = st.nextID()
	user.CreatedAt = r.s.now()
	st.users[user.ID] = *user
	return nil
}

func (r *userRepo) Get(ctx context.Context, userID int64) (*repository.User, error) {
	defer r.s.acquire(ctx)()

	u, ok := r.s.state.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*repository.User, error) {
	defer r.s.acquire(ctx)()

	for _, u := range r.s.state.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}
