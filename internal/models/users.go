package models

import (
	"strings"
	"time"
)

// OnlineWindow is how recent a heartbeat must be for a user to count as online.
const OnlineWindow = 60 * time.Second

const fallbackUserName = "User"

// Identity is the caller as described by the identity provider.
type Identity struct {
	Subject    string
	Issuer     string
	Name       string
	Email      string
	PictureURL string
}

// TokenIdentifier is the stable key users are looked up by.
func (i *Identity) TokenIdentifier() string {
	if i.Issuer == "" {
		return i.Subject
	}
	return i.Issuer + "|" + i.Subject
}

type User struct {
	UserID          string    `json:"user_id" db:"user_id"`
	TokenIdentifier string    `json:"-" db:"token_identifier"`
	Name            *string   `json:"name,omitempty" db:"name"`
	Email           *string   `json:"email,omitempty" db:"email"`
	ImageURL        *string   `json:"image_url,omitempty" db:"image_url"`
	LastSeenAt      time.Time `json:"last_seen_at" db:"last_seen_at"`
}

func (u *User) DisplayName() string {
	if u == nil || u.Name == nil || strings.TrimSpace(*u.Name) == "" {
		return fallbackUserName
	}
	return *u.Name
}

func (u *User) IsOnline(now time.Time) bool {
	return now.Sub(u.LastSeenAt) < OnlineWindow
}

type UserView struct {
	User
	IsOnline bool `json:"is_online"`
}

func NewUserView(u User, now time.Time) UserView {
	return UserView{User: u, IsOnline: u.IsOnline(now)}
}

// UserSummary is the short profile attached to messages and invites.
type UserSummary struct {
	UserID   string  `json:"user_id"`
	Name     string  `json:"name"`
	ImageURL *string `json:"image_url,omitempty"`
}

func NewUserSummary(userID string, u *User) UserSummary {
	s := UserSummary{UserID: userID, Name: u.DisplayName()}
	if u != nil {
		s.ImageURL = u.ImageURL
	}
	return s
}

type SearchHistoryEntry struct {
	EntryID   string    `json:"entry_id" db:"entry_id"`
	UserID    string    `json:"-" db:"user_id"`
	Query     string    `json:"query" db:"query"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
