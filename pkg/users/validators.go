package users

// CreateUserPayload represents the request body for creating a user.
type CreateUserPayload struct {
	Username string  `json:"username" mod:"trim" validate:"required,min=3,max=50"`
	Email    *string `json:"email" mod:"trim" validate:"omitempty,email"`
	Password string  `json:"password" validate:"required,min=8"`
	Role     string  `json:"role" mod:"trim,lcase" default:"member" validate:"oneof=staff member"`
}

// UpdateUserPayload represents the request body for updating a user.
type UpdateUserPayload struct {
	Username *string `json:"username" mod:"trim" validate:"omitempty,min=3,max=50"`
	Email    *string `json:"email" mod:"trim" validate:"omitempty,email"`
	IsActive *bool   `json:"is_active"`
}

// ResetPasswordPayload represents the request body for resetting a password.
type ResetPasswordPayload struct {
	CurrentPassword *string `json:"current_password"` // Required when resetting your own password
	NewPassword     string  `json:"new_password" validate:"required,min=8"`
}

// ListUsersQuery represents the query parameters for listing users.
type ListUsersQuery struct {
	Limit      int     `query:"limit" default:"50" validate:"min=1,max=200"`
	Offset     int     `query:"offset" validate:"min=0"`
	Search     *string `query:"search" validate:"omitempty,max=50"`
	Role       *string `query:"role" validate:"omitempty,oneof=staff member"`
	ActiveOnly bool    `query:"active_only"`
}
