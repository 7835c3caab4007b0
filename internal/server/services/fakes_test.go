package services

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/profiles"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/settings"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
)

// fakeDB holds the state shared by the in-memory repositories below.
type fakeDB struct {
	mu       sync.Mutex
	nextID   int64
	users    map[int64]*models.User
	profiles map[int64]*models.Profile
	settings map[int64]*models.Settings

	usedKeys       map[string]bool
	keysAlwaysUsed bool
	createErr      error
	profileErr     error
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		users:    map[int64]*models.User{},
		profiles: map[int64]*models.Profile{},
		settings: map[int64]*models.Settings{},
		usedKeys: map[string]bool{},
	}
}

func (f *fakeDB) RunMigrations(context.Context, *sql.DB) error { return nil }
func (f *fakeDB) Users(dbx.DBTX) users.Repository              { return fakeUsers{f} }
func (f *fakeDB) Profiles(dbx.DBTX) profiles.Repository        { return fakeProfiles{f} }
func (f *fakeDB) Settings(dbx.DBTX) settings.Repository        { return fakeSettings{f} }
func (f *fakeDB) Sessions(dbx.DBTX) sessions.Repository        { return nil }

func (f *fakeDB) user(id int64) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := *f.users[id]
	return &u
}

type fakeUsers struct{ f *fakeDB }

func (r fakeUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	f := r.f
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c := *u
	c.ID = f.nextID
	c.CreatedAt = time.Now()
	f.users[c.ID] = &c
	out := c
	return &out, nil
}

func (r fakeUsers) find(match func(*models.User) bool) (*models.User, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, u := range r.f.users {
		if match(u) {
			c := *u
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r fakeUsers) FindByID(_ context.Context, id int64) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.ID == id })
}

func (r fakeUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Email == email })
}

func (r fakeUsers) FindByActivationKey(_ context.Context, key string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return key != "" && u.ActivationKey == key })
}

func (r fakeUsers) FindByResetKey(_ context.Context, key string, now time.Time) (*models.User, error) {
	return r.find(func(u *models.User) bool {
		return key != "" && u.ResetKey == key && u.ResetKeyExpiresAt.After(now)
	})
}

func (r fakeUsers) KeyInUse(_ context.Context, key string) (bool, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if r.f.keysAlwaysUsed || r.f.usedKeys[key] {
		return true, nil
	}
	for _, u := range r.f.users {
		if u.ActivationKey == key || u.ResetKey == key {
			return true, nil
		}
	}
	return false, nil
}

func (r fakeUsers) update(id int64, fn func(*models.User)) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	u, ok := r.f.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(u)
	return nil
}

func (r fakeUsers) SetFacebookID(_ context.Context, id int64, fb string) error {
	return r.update(id, func(u *models.User) { u.FacebookID = fb })
}

func (r fakeUsers) Activate(_ context.Context, id int64) error {
	return r.update(id, func(u *models.User) { u.Active = true; u.ActivationKey = "" })
}

func (r fakeUsers) SetResetKey(_ context.Context, id int64, key string, exp time.Time) error {
	return r.update(id, func(u *models.User) { u.ResetKey = key; u.ResetKeyExpiresAt = exp })
}

func (r fakeUsers) SetPassword(_ context.Context, id int64, hash string) error {
	return r.update(id, func(u *models.User) {
		u.PasswordHash = hash
		u.ResetKey = ""
		u.ResetKeyExpiresAt = time.Time{}
	})
}

type fakeProfiles struct{ f *fakeDB }

func (r fakeProfiles) Create(_ context.Context, userID int64) error {
	if r.f.profileErr != nil {
		return r.f.profileErr
	}
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.profiles[userID] = &models.Profile{UserID: userID}
	return nil
}

func (r fakeProfiles) Get(_ context.Context, userID int64) (*models.Profile, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	p, ok := r.f.profiles[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *p
	if u, ok := r.f.users[userID]; ok {
		c.Email = u.Email
	}
	return &c, nil
}

func (r fakeProfiles) Update(_ context.Context, userID int64, upd models.ProfileUpdate) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	p, ok := r.f.profiles[userID]
	if !ok {
		return common.ErrorNotFound
	}
	if upd.FirstName != nil {
		p.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		p.LastName = *upd.LastName
	}
	if upd.Headline != nil {
		p.Headline = *upd.Headline
	}
	if upd.CountryID != nil {
		p.CountryID = *upd.CountryID
	}
	if upd.CityID != nil {
		p.CityID = *upd.CityID
	}
	return nil
}

func (r fakeProfiles) SetImageKey(_ context.Context, userID int64, key string) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	p, ok := r.f.profiles[userID]
	if !ok {
		return common.ErrorNotFound
	}
	p.ProfileImageKey = key
	return nil
}

type fakeSettings struct{ f *fakeDB }

func (r fakeSettings) Create(_ context.Context, userID int64) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.settings[userID] = &models.Settings{UserID: userID, EmailNotifications: true}
	return nil
}

func (r fakeSettings) Get(_ context.Context, userID int64) (*models.Settings, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	s, ok := r.f.settings[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *s
	return &c, nil
}

func (r fakeSettings) Update(_ context.Context, userID int64, upd models.SettingsUpdate) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	s, ok := r.f.settings[userID]
	if !ok {
		return common.ErrorNotFound
	}
	if upd.EmailNotifications != nil {
		s.EmailNotifications = *upd.EmailNotifications
	}
	if upd.EmailMonthlyNewsletter != nil {
		s.EmailMonthlyNewsletter = *upd.EmailMonthlyNewsletter
	}
	return nil
}

type sentMail struct {
	tmpl   string
	to     string
	params map[string]string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, tmpl, to string, params map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{tmpl, to, params})
	return m.err
}

type fakeRegistry struct {
	mu     sync.Mutex
	tokens []string
	err    error
}

func (r *fakeRegistry) Register(_ context.Context, token string) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = append(r.tokens, token)
	return nil
}
