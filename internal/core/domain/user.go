package domain

import "time"

// Role is the enumerated role carried by a user and by its session token.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Access classifies what a route requires from the caller.
type Access int

const (
	AccessPublic Access = iota
	AccessAuthenticated
	AccessAdmin
)

func (a Access) String() string {
	switch a {
	case AccessPublic:
		return "public"
	case AccessAuthenticated:
		return "authenticated"
	case AccessAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// roleCapabilities is the capability set granted to each role.
// Public access is implied for every caller, including anonymous ones.
var roleCapabilities = map[Role][]Access{
	RoleUser:  {AccessPublic, AccessAuthenticated},
	RoleAdmin: {AccessPublic, AccessAuthenticated, AccessAdmin},
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// Can reports whether the role's capability set includes required.
func (r Role) Can(required Access) bool {
	if required == AccessPublic {
		return true
	}
	for _, granted := range roleCapabilities[r] {
		if granted == required {
			return true
		}
	}
	return false
}

// Identity is the user data carried by a session token and exposed to handlers.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// User models a stored account together with its credential.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity projects the user onto the fields a session token carries.
func (u *User) Identity() Identity {
	return Identity{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
		Role:  u.Role,
	}
}
