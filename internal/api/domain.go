package api

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Date is a calendar date without a time component, serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid date %s, expected \"YYYY-MM-DD\"", s)
	}
	t, err := time.Parse(dateLayout, s[1:len(s)-1])
	if err != nil {
		return fmt.Errorf("invalid date %s, expected \"YYYY-MM-DD\"", s)
	}
	d.Time = t
	return nil
}

func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		d.Time = v
		return nil
	case string:
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return err
		}
		d.Time = t
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

func (d Date) Value() (driver.Value, error) {
	return d.Time, nil
}

var ErrNotFound = errors.New("requested item not found")
var ErrConflict = errors.New("item already exists or conflict")
var ErrUnauthenticated = errors.New("authentication required or invalid credentials")
var ErrForbidden = errors.New("action forbidden")
var ErrBadRequest = errors.New("malformed or invalid request")

type UserStatus string

const (
	UserStatusRegistered UserStatus = "REGISTERED"
	UserStatusVerified   UserStatus = "VERIFIED"
	UserStatusDeleted    UserStatus = "DELETED"
)

type UserRole string

const (
	UserRoleUser  UserRole = "USER"
	UserRoleAdmin UserRole = "ADMIN"
)

type TokenType string

const (
	// TokenTypeAccess is stateless and never persisted.
	TokenTypeAccess       TokenType = "ACCESS"
	TokenTypeRefresh      TokenType = "REFRESH"
	TokenTypeVerification TokenType = "VERIFICATION"
	TokenTypeReset        TokenType = "RESET"
)

type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	AvatarURL    *string    `json:"avatar_url"`
	PasswordHash string     `json:"-"`
	Status       UserStatus `json:"status"`
	Role         UserRole   `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CurrentUser is the identity snapshot the authentication guard resolves and
// caches. It deliberately carries no password hash.
type CurrentUser struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	AvatarURL *string    `json:"avatar_url"`
	Status    UserStatus `json:"status"`
	Role      UserRole   `json:"role"`
}

func (u *User) Snapshot() *CurrentUser {
	return &CurrentUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
		Status:    u.Status,
		Role:      u.Role,
	}
}

// UserUpdate is an explicit patch: only non-nil fields are applied.
type UserUpdate struct {
	Status       *UserStatus
	PasswordHash *string
	AvatarURL    *string
}

type Token struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	Type      TokenType `json:"type"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenPayload is the claims set embedded in every signed token. The token_type
// claim must match the type the consuming operation expects.
type TokenPayload struct {
	UserID    int64     `json:"user_id"`
	TokenType TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

type Contact struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Birthday  Date      `json:"birthday"`
	UserID    int64     `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ContactUpdate is an explicit patch: only non-nil fields are applied.
type ContactUpdate struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	Birthday  *Date   `json:"birthday"`
}
