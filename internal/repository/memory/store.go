// Package memory is an in-process implementation of the repository
// interfaces. A transaction holds a store-wide lock and restores a snapshot
// of the state when its function fails.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/yakoovad/head2head/internal/db"
	"github.com/yakoovad/head2head/internal/repository"
)

type txKey struct{}

type memberKey struct {
	groupID int64
	userID  int64
}

type state struct {
	seq int64

	users        map[int64]repository.User
	groups       map[int64]repository.Group
	memberships  map[memberKey]repository.Membership
	invites      map[int64]repository.Invite
	matches      map[int64]repository.Match
	participants map[int64][]repository.Participant
}

func newState() *state {
	return &state{
		users:        make(map[int64]repository.User),
		groups:       make(map[int64]repository.Group),
		memberships:  make(map[memberKey]repository.Membership),
		invites:      make(map[int64]repository.Invite),
		matches:      make(map[int64]repository.Match),
		participants: make(map[int64][]repository.Participant),
	}
}

func (s *state) clone() *state {
	c := newState()
	c.seq = s.seq
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.groups {
		c.groups[k] = v
	}
	for k, v := range s.memberships {
		c.memberships[k] = v
	}
	for k, v := range s.invites {
		c.invites[k] = v
	}
	for k, v := range s.matches {
		c.matches[k] = v
	}
	for k, v := range s.participants {
		c.participants[k] = append([]repository.Participant(nil), v...)
	}
	return c
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{
		state: newState(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

var _ db.Transactor = (*Store)(nil)

func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.state = snapshot
		return errors.Wrap(err, "transaction function failed")
	}
	return nil
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// acquire locks the store unless ctx already runs inside a transaction.
func (s *Store) acquire(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) Users() repository.UserRepository             { return &userRepo{s: s} }
func (s *Store) Groups() repository.GroupRepository           { return &groupRepo{s: s} }
func (s *Store) Memberships() repository.MembershipRepository { return &membershipRepo{s: s} }
func (s *Store) Invites() repository.InviteRepository         { return &inviteRepo{s: s} }
func (s *Store) Matches() repository.MatchRepository          { return &matchRepo{s: s} }
