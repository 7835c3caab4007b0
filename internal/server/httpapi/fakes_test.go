package httpapi

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

// fakeTokens is both the revocation checker and the token manager.
type fakeTokens struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*models.Session
	err    error
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{rows: map[int64]*models.Session{}}
}

func (f *fakeTokens) add(jti, identity string, typ models.TokenType) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.rows[f.nextID] = &models.Session{
		ID: f.nextID, JTI: jti, TokenType: typ, UserIdentity: identity,
		ExpiresAt: time.Now().Add(time.Hour), CreatedAt: time.Now(),
	}
	return f.nextID
}

func (f *fakeTokens) IsRevoked(_ context.Context, jti string) (bool, error) {
	if f.err != nil {
		return true, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.JTI == jti {
			return r.Revoked, nil
		}
	}
	return true, nil
}

func (f *fakeTokens) ListTokens(_ context.Context, identity string) ([]*models.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.Session{}
	for _, r := range f.rows {
		if r.UserIdentity == identity {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeTokens) GetToken(_ context.Context, id int64, identity string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok || r.UserIdentity != identity {
		return nil, common.ErrorNotFound
	}
	c := *r
	return &c, nil
}

func (f *fakeTokens) set(id int64, identity string, revoked bool) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok || r.UserIdentity != identity {
		return false, nil
	}
	r.Revoked = revoked
	return true, nil
}

func (f *fakeTokens) Revoke(_ context.Context, id int64, identity string) (bool, error) {
	return f.set(id, identity, true)
}

func (f *fakeTokens) Unrevoke(_ context.Context, id int64, identity string) (bool, error) {
	return f.set(id, identity, false)
}

func (f *fakeTokens) DeleteTokens(_ context.Context, ids []int64, identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if r, ok := f.rows[id]; ok && r.UserIdentity == identity {
			delete(f.rows, id)
		}
	}
	return nil
}

// fakeAccounts returns err from every call when set and records arguments.
type fakeAccounts struct {
	err      error
	pair     *services.TokenPair
	refresh  string
	profile  *models.Profile
	settings *models.Settings

	lastEmail    string
	lastKey      string
	lastPassword *services.PasswordChange
	lastProfile  models.ProfileUpdate
	lastSettings models.SettingsUpdate
}

func (a *fakeAccounts) Register(_ context.Context, email, _, _ string) error {
	a.lastEmail = email
	return a.err
}

func (a *fakeAccounts) Login(_ context.Context, email, _, _ string) (*services.TokenPair, error) {
	a.lastEmail = email
	return a.pair, a.err
}

func (a *fakeAccounts) Refresh(context.Context, string) (string, error) { return a.refresh, a.err }

func (a *fakeAccounts) RequestActivation(_ context.Context, email string) error {
	a.lastEmail = email
	return a.err
}

func (a *fakeAccounts) Activate(_ context.Context, key string) error {
	a.lastKey = key
	return a.err
}

func (a *fakeAccounts) RequestPasswordReset(_ context.Context, email string) error {
	a.lastEmail = email
	return a.err
}

func (a *fakeAccounts) ResetPassword(_ context.Context, key string, pc services.PasswordChange) error {
	a.lastKey = key
	a.lastPassword = &pc
	return a.err
}

func (a *fakeAccounts) GetProfile(context.Context, int64) (*models.Profile, error) {
	return a.profile, a.err
}

func (a *fakeAccounts) UpdateProfile(_ context.Context, _ int64, upd models.ProfileUpdate) error {
	a.lastProfile = upd
	if upd.Empty() {
		return common.ErrorInvalidRequest
	}
	return a.err
}

func (a *fakeAccounts) GetSettings(context.Context, int64) (*models.Settings, error) {
	return a.settings, a.err
}

func (a *fakeAccounts) UpdateSettings(_ context.Context, _ int64, upd models.SettingsUpdate, pc *services.PasswordChange) error {
	a.lastSettings = upd
	a.lastPassword = pc
	return a.err
}

type fakeImages struct {
	err error
	url string
}

func (i *fakeImages) Upload(_ context.Context, _ int64, name string) (*services.ImageUpload, error) {
	if i.err != nil {
		return nil, i.err
	}
	return &services.ImageUpload{Key: "users/1/" + name, URL: "https://s3.local/put"}, nil
}

func (i *fakeImages) URL(context.Context, int64) (string, error) { return i.url, i.err }
func (i *fakeImages) Delete(context.Context, int64) error        { return i.err }
