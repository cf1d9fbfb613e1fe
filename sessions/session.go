package sessions

import (
	"time"

	"github.com/jrsteele09/festmatch-client/internal/utils"
)

// CurrentVersion is the schema version written with every persisted session.
// Records carrying any other version are discarded on hydrate.
const CurrentVersion = 1

// RegistrationStatus tracks how far a user is through onboarding
type RegistrationStatus string

const (
	RegistrationPending  RegistrationStatus = "pending"  // Signed in, no profile yet
	RegistrationProfile  RegistrationStatus = "profile"  // Profile form submitted
	RegistrationQuiz     RegistrationStatus = "quiz"     // Personality quiz submitted
	RegistrationComplete RegistrationStatus = "complete" // Visible to other users
)

// User is the profile record cached alongside the access token
type User struct {
	ID                 string             `json:"id,omitempty"`
	KakaoID            string             `json:"kakaoId,omitempty"`
	Nickname           string             `json:"nickname,omitempty"`
	Email              string             `json:"email,omitempty"`
	Gender             string             `json:"gender,omitempty"`
	Department         string             `json:"department,omitempty"`
	ProfileImageURL    string             `json:"profileImageUrl,omitempty"`
	Credits            int                `json:"credits"`
	RegistrationStatus RegistrationStatus `json:"registrationStatus,omitempty"`
}

// UserPatch is a partial update to User. Nil fields are left unchanged.
type UserPatch struct {
	Nickname           *string             `json:"nickname,omitempty"`
	Email              *string             `json:"email,omitempty"`
	Gender             *string             `json:"gender,omitempty"`
	Department         *string             `json:"department,omitempty"`
	ProfileImageURL    *string             `json:"profileImageUrl,omitempty"`
	Credits            *int                `json:"credits,omitempty"`
	RegistrationStatus *RegistrationStatus `json:"registrationStatus,omitempty"`
}

// Apply returns a copy of u with every non-nil field of p written over it
func (u User) Apply(p UserPatch) User {
	u.Nickname = utils.ValueOr(p.Nickname, u.Nickname)
	u.Email = utils.ValueOr(p.Email, u.Email)
	u.Gender = utils.ValueOr(p.Gender, u.Gender)
	u.Department = utils.ValueOr(p.Department, u.Department)
	u.ProfileImageURL = utils.ValueOr(p.ProfileImageURL, u.ProfileImageURL)
	u.Credits = utils.ValueOr(p.Credits, u.Credits)
	u.RegistrationStatus = utils.ValueOr(p.RegistrationStatus, u.RegistrationStatus)
	return u
}

// IsEmpty reports whether the patch would change nothing
func (p UserPatch) IsEmpty() bool {
	return p == UserPatch{}
}

// Session is the authenticated identity held by the client
type Session struct {
	Version     int       `json:"version"`
	AccessToken string    `json:"accessToken"`
	User        User      `json:"user"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
