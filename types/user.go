package types

import "time"

// Plan is a per-application subscription tier.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPremium    Plan = "premium"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
	PlanCustom     Plan = "custom"
)

// Valid reports whether p is one of the known tiers.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPremium, PlanPro, PlanEnterprise, PlanCustom:
		return true
	}
	return false
}

// AvatarRef points at an avatar blob. URL and Path are always set together.
type AvatarRef struct {
	// URL is the public address used for display.
	URL string `json:"url" db:"avatar_url"`

	// Path is the object key inside the bucket, needed for deletion.
	Path string `json:"path" db:"avatar_path"`
}

// User represents an identity record.
// It contains credentials, profile data and per-application subscriptions.
type User struct {
	// ID is the unique identifier of the user, assigned at creation.
	ID string `json:"id" db:"id"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Username is the unique lowercase login name.
	Username string `json:"username" db:"username"`

	// Email is the user's lowercase email address, also usable to log in.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Avatar is nil when the user has no avatar.
	Avatar *AvatarRef `json:"avatar,omitempty"`

	// Subscriptions maps an application name to its plan tier.
	Subscriptions map[string]Plan `json:"subscriptions" db:"subscriptions"`

	// SessionToken is the most recently issued token.
	// This field is never exposed in API responses.
	SessionToken string `json:"-" db:"session_token"`

	// Version is incremented on every profile update.
	Version int64 `json:"-" db:"version"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// PublicUser is the only user shape returned to clients.
type PublicUser struct {
	ID            string          `json:"id"`
	Email         string          `json:"email"`
	Name          string          `json:"name"`
	Username      string          `json:"username"`
	AvatarURL     *string         `json:"avatarUrl"`
	Subscriptions map[string]Plan `json:"subscriptions"`
	CreatedAt     *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt     *time.Time      `json:"updatedAt,omitempty"`
}

// Public strips credentials and session state from u.
func (u User) Public() PublicUser {
	out := PublicUser{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Username:      u.Username,
		Subscriptions: u.Subscriptions,
	}
	if out.Subscriptions == nil {
		out.Subscriptions = map[string]Plan{}
	}
	if u.Avatar != nil {
		url := u.Avatar.URL
		out.AvatarURL = &url
	}
	return out
}

// PublicWithTimestamps is Public plus the audit timestamps.
func (u User) PublicWithTimestamps() PublicUser {
	out := u.Public()
	created, updated := u.CreatedAt, u.UpdatedAt
	out.CreatedAt = &created
	out.UpdatedAt = &updated
	return out
}

// SubscriptionClaims flattens subscriptions to plain strings for token claims.
func (u User) SubscriptionClaims() map[string]string {
	out := make(map[string]string, len(u.Subscriptions))
	for app, plan := range u.Subscriptions {
		out[app] = string(plan)
	}
	return out
}
