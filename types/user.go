package types

import "time"

// Role is the authorization tier of a user.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	default:
		return false
	}
}

// User represents an account in the system.
// It contains identity, role, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"-" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's unique email address.
	Email string `json:"email" db:"email"`

	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`
	Bio       string `json:"bio" db:"bio"`

	// Role indicates the user's authorization level within the system.
	Role Role `json:"role" db:"role"`

	// IsStaff marks operator accounts that hold admin rights regardless of Role.
	IsStaff bool `json:"-" db:"is_staff"`

	// ConfirmationCodeHash stores the bcrypt hash of the last issued
	// confirmation code. This field is never exposed in API responses.
	ConfirmationCodeHash string `json:"-" db:"confirmation_code"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"-" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"-" db:"updated_at"`
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u User) IsModerator() bool {
	return u.Role == RoleModerator
}

// IsAdminOrStaff grants catalog and user management rights.
func (u User) IsAdminOrStaff() bool {
	return u.IsStaff || u.IsAdmin()
}

// IsAdminOrStaffOrModerator grants rights over other users' reviews and comments.
func (u User) IsAdminOrStaffOrModerator() bool {
	return u.IsAdminOrStaff() || u.IsModerator()
}
