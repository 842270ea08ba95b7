package apiclient

import (
	"fmt"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
)

// Credentials identify a user on login. Email holds the login identifier; it must
// be an email address unless the client logs in by another field.
type Credentials struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// String implements fmt.Stringer without exposing the password.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Email: %s, Password: [REDACTED_PASSWORD]}", c.Email)
}

// Signup is the registration payload of POST /auth/users/.
type Signup struct {
	Email      openapi_types.Email `json:"email" validate:"required,email"`
	Username   string              `json:"username" validate:"required,max=150"`
	Password   string              `json:"password" validate:"required,min=8"`
	RePassword string              `json:"re_password" validate:"required,eqfield=Password"`
}

// String implements fmt.Stringer without exposing the passwords.
func (s Signup) String() string {
	return fmt.Sprintf("Signup{Email: %s, Username: %s}", s.Email, s.Username)
}

// User is an account as returned by the auth endpoints.
type User struct {
	ID        int64               `json:"id"`
	Email     openapi_types.Email `json:"email"`
	Username  string              `json:"username"`
	FirstName string              `json:"first_name,omitempty"`
	LastName  string              `json:"last_name,omitempty"`
}

// Status is the lifecycle state of an issue.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

// Category classifies an issue.
type Category string

const (
	CategoryPothole     Category = "pothole"
	CategoryGraffiti    Category = "graffiti"
	CategoryStreetlight Category = "streetlight"
	CategorySidewalk    Category = "sidewalk"
	CategoryTrash       Category = "trash"
	CategoryOther       Category = "other"
)

// Issue is a reported municipal issue.
type Issue struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    Category  `json:"category"`
	Status      Status    `json:"status"`
	Address     string    `json:"address,omitempty"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	Image       string    `json:"image,omitempty"`
	Reporter    *User     `json:"reporter,omitempty"`
	UpvoteCount int       `json:"upvote_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IssueInput carries the fields of a create or partial update. Nil fields are omitted.
type IssueInput struct {
	Title       *string   `json:"title,omitempty" validate:"omitempty,min=3,max=200"`
	Description *string   `json:"description,omitempty" validate:"omitempty,max=5000"`
	Category    *Category `json:"category,omitempty" validate:"omitempty,oneof=pothole graffiti streetlight sidewalk trash other"`
	Status      *Status   `json:"status,omitempty" validate:"omitempty,oneof=open in_progress resolved closed"`
	Address     *string   `json:"address,omitempty" validate:"omitempty,max=300"`
	Latitude    *float64  `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude   *float64  `json:"longitude,omitempty" validate:"omitempty,longitude"`
}

// IssueFilter narrows ListIssues. Zero values are not sent.
type IssueFilter struct {
	Status   Status
	Category Category
	Search   string
	// Mine restricts the listing to issues reported by the current user.
	Mine bool
	Page int
}

// issuePage is the paginated list envelope.
type issuePage struct {
	Count   int     `json:"count"`
	Next    *string `json:"next"`
	Results []Issue `json:"results"`
}
