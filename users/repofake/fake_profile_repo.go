package fakeuserrepo

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/movie-ratings/internal/errors"
	"github.com/jrsteele09/movie-ratings/internal/utils"
	"github.com/jrsteele09/movie-ratings/users"
)

var _ users.ProfileRepo = (*FakeProfileRepo)(nil)

// FakeProfileRepo is an in-memory users.ProfileRepo. GetErr and UpsertErr
// inject failures; Block, when set, delays GetByIdentity until it is closed
// or the context ends.
type FakeProfileRepo struct {
	profiles map[string]*users.Profile
	lock     sync.RWMutex

	GetErr    error
	UpsertErr error
	Block     map[string]chan struct{}

	Upserts int
	gets    atomic.Int64
}

func NewFakeProfileRepo() *FakeProfileRepo {
	return &FakeProfileRepo{
		profiles: make(map[string]*users.Profile),
		Block:    make(map[string]chan struct{}),
	}
}

// Put stores a profile with the given role
func (pr *FakeProfileRepo) Put(identityID, email string, role users.RoleType) {
	pr.lock.Lock()
	defer pr.lock.Unlock()
	now := time.Now()
	pr.profiles[identityID] = &users.Profile{
		ID:         utils.Ptr(uuid.New().String()),
		IdentityID: identityID,
		Role:       role,
		CreatedAt:  &now,
		Email:      utils.Ptr(email),
	}
}

// Hold makes GetByIdentity for identityID wait until the returned func is called
func (pr *FakeProfileRepo) Hold(identityID string) (release func()) {
	ch := make(chan struct{})
	pr.lock.Lock()
	pr.Block[identityID] = ch
	pr.lock.Unlock()
	return func() { close(ch) }
}

// Gets returns how many times GetByIdentity was called
func (pr *FakeProfileRepo) Gets() int {
	return int(pr.gets.Load())
}

func (pr *FakeProfileRepo) GetByIdentity(ctx context.Context, identityID string) (*users.Profile, error) {
	pr.gets.Add(1)
	pr.lock.RLock()
	block := pr.Block[identityID]
	pr.lock.RUnlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	pr.lock.RLock()
	defer pr.lock.RUnlock()

	if pr.GetErr != nil {
		return nil, pr.GetErr
	}
	profile, ok := pr.profiles[identityID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *profile
	return &copied, nil
}

func (pr *FakeProfileRepo) UpsertDefault(_ context.Context, identityID string) error {
	pr.lock.Lock()
	defer pr.lock.Unlock()

	pr.Upserts++
	if pr.UpsertErr != nil {
		return pr.UpsertErr
	}
	if _, ok := pr.profiles[identityID]; ok {
		return nil
	}
	now := time.Now()
	pr.profiles[identityID] = &users.Profile{
		ID:         utils.Ptr(uuid.New().String()),
		IdentityID: identityID,
		Role:       users.RoleUser,
		CreatedAt:  &now,
	}
	return nil
}

func (pr *FakeProfileRepo) UpdateRole(_ context.Context, identityID string, role users.RoleType) error {
	pr.lock.Lock()
	defer pr.lock.Unlock()

	profile, ok := pr.profiles[identityID]
	if !ok {
		return apperrors.ErrNotFound
	}
	profile.Role = role
	return nil
}

func (pr *FakeProfileRepo) List(_ context.Context) ([]*users.Profile, error) {
	pr.lock.RLock()
	defer pr.lock.RUnlock()

	list := make([]*users.Profile, 0, len(pr.profiles))
	for _, p := range pr.profiles {
		copied := *p
		list = append(list, &copied)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].IdentityID < list[j].IdentityID
	})
	return list, nil
}
