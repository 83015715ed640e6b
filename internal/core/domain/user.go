package domain

// User is the profile of the signed-in customer as returned by the backend
type User struct {
	ID              string `json:"id"`
	UserName        string `json:"userName"`
	Email           string `json:"email"`
	FullName        string `json:"fullName"`
	ProfileImageURL string `json:"profileImageUrl"`
	PhoneNumber     string `json:"phoneNumber"`
	Type            string `json:"type"`
}

// DisplayName returns the best human readable name for the user
func (u *User) DisplayName() string {
	switch {
	case u == nil:
		return ""
	case u.FullName != "":
		return u.FullName
	case u.UserName != "":
		return u.UserName
	default:
		return u.Email
	}
}

// Credentials is the login request body. Either Identifier or Email is set.
type Credentials struct {
	Identifier string `json:"identifier,omitempty"`
	Email      string `json:"email,omitempty"`
	Password   string `json:"password"`
}

// ExternalLoginRequest carries a third-party identity token to exchange for a session
type ExternalLoginRequest struct {
	IDToken  string `json:"idToken"`
	Provider string `json:"provider"`
	Role     string `json:"role,omitempty"`
}

// RefreshRequest is the refresh endpoint body
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ForgotPasswordRequest asks the backend to send a password reset code
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest completes a password reset with the emailed code
type ResetPasswordRequest struct {
	Email           string `json:"email"`
	OTP             string `json:"otp"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// ResendOTPRequest asks the backend to issue a fresh one-time code
type ResendOTPRequest struct {
	Email string `json:"email"`
}
