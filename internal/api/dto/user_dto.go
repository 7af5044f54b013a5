package dto

// RegisterRequest is the sign-up body.
type RegisterRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	OrgUnit     string `json:"org_unit"`
	Title       string `json:"title"`
	Password    string `json:"password"`
}

// LoginRequest is the login body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// IdentityResponse mirrors the identity a token carries.
type IdentityResponse struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	OrgUnit     string `json:"org_unit,omitempty"`
	Title       string `json:"title,omitempty"`
	Editor      bool   `json:"editor"`
	Monitor     bool   `json:"monitor"`
}

// AuthResponse carries the signed token and the identity it encodes.
type AuthResponse struct {
	Token    string           `json:"token"`
	Identity IdentityResponse `json:"identity"`
}
