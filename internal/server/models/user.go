package models

import "time"

// User is an account row. PasswordHash is empty for Facebook-only accounts
// and FacebookID is empty for password-only accounts.
type User struct {
	ID                int64
	Email             string
	PasswordHash      string
	FacebookID        string
	Active            bool
	ActivationKey     string
	ResetKey          string
	ResetKeyExpiresAt time.Time
	CreatedAt         time.Time
}

// Profile is the public part of an account, joined with the user's email.
type Profile struct {
	UserID          int64
	Email           string
	FirstName       string
	LastName        string
	Headline        string
	CountryID       int64
	CityID          int64
	ProfileImageKey string
}

// ProfileUpdate carries a partial profile change; nil fields are left alone.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Headline  *string
	CountryID *int64
	CityID    *int64
}

// Empty reports whether no field is set.
func (u ProfileUpdate) Empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Headline == nil && u.CountryID == nil && u.CityID == nil
}

// Settings holds per-user notification preferences.
type Settings struct {
	UserID                 int64
	EmailNotifications     bool
	EmailMonthlyNewsletter bool
}

// SettingsUpdate carries a partial settings change; nil fields are left alone.
type SettingsUpdate struct {
	EmailNotifications     *bool
	EmailMonthlyNewsletter *bool
}

// Empty reports whether no field is set.
func (u SettingsUpdate) Empty() bool {
	return u.EmailNotifications == nil && u.EmailMonthlyNewsletter == nil
}
