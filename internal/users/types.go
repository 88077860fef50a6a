package users

import "time"

// Roles
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// User is the item stored in the users table. PasswordHash never leaves the
// service.
type User struct {
	UserID       string    `json:"user_id" dynamodbav:"user_id"`
	Email        string    `json:"email" dynamodbav:"email"`
	PasswordHash string    `json:"-" dynamodbav:"password_hash"`
	FirstName    string    `json:"first_name" dynamodbav:"first_name"`
	LastName     string    `json:"last_name" dynamodbav:"last_name"`
	PhoneNumber  string    `json:"phone_number,omitempty" dynamodbav:"phone_number,omitempty"`
	Street       string    `json:"street,omitempty" dynamodbav:"street,omitempty"`
	Address      string    `json:"address,omitempty" dynamodbav:"address,omitempty"`
	State        string    `json:"state,omitempty" dynamodbav:"state,omitempty"`
	District     string    `json:"district,omitempty" dynamodbav:"district,omitempty"`
	Taluka       string    `json:"taluka,omitempty" dynamodbav:"taluka,omitempty"`
	Village      string    `json:"village,omitempty" dynamodbav:"village,omitempty"`
	Pincode      string    `json:"pincode,omitempty" dynamodbav:"pincode,omitempty"`
	Role         string    `json:"role" dynamodbav:"role"`
	CreatedAt    time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// Changes is a partial update. Nil fields are left untouched.
type Changes struct {
	Email        *string
	PasswordHash *string
	FirstName    *string
	LastName     *string
	PhoneNumber  *string
	Street       *string
	Address      *string
	State        *string
	District     *string
	Taluka       *string
	Village      *string
	Pincode      *string
	Role         *string
}

// Filter narrows List. An empty Role matches everyone.
type Filter struct {
	Role string
}
