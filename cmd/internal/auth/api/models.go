package api

import "time"

type loginRequest struct {
	EmailOrUsername string `json:"emailOrUsername"`
	Password        string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	CurrentPassword    string `json:"currentPassword"`
	NewPassword        string `json:"newPassword"`
	ConfirmNewPassword string `json:"confirmNewPassword"`
}

type registerRequest struct {
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	DisplayName *string `json:"displayName"`
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token              string `json:"token"`
	NewPassword        string `json:"newPassword"`
	ConfirmNewPassword string `json:"confirmNewPassword"`
}

type userResponse struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	DisplayName   *string   `json:"displayName,omitempty"`
	Role          string    `json:"role"`
	Status        string    `json:"status"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

type tokenResponse struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	ExpiresAt        time.Time `json:"expiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

type loginResponse struct {
	User   userResponse  `json:"user"`
	Tokens tokenResponse `json:"tokens"`
}

type refreshResponse struct {
	Tokens tokenResponse `json:"tokens"`
}

type profileResponse struct {
	User userResponse `json:"user"`
}

type sessionInfo struct {
	ID               string     `json:"id"`
	IssuedAt         time.Time  `json:"issuedAt"`
	ExpiresAt        time.Time  `json:"expiresAt"`
	RefreshExpiresAt time.Time  `json:"refreshExpiresAt"`
	LastUsedAt       *time.Time `json:"lastUsedAt,omitempty"`
	RevokedAt        *time.Time `json:"revokedAt,omitempty"`
	IsOnline         bool       `json:"isOnline"`
	Current          bool       `json:"current"`
	DeviceInfo       *string    `json:"deviceInfo,omitempty"`
	IPAddress        string     `json:"ipAddress,omitempty"`
	UserAgent        *string    `json:"userAgent,omitempty"`
}

type sessionListResponse struct {
	Sessions []sessionInfo `json:"sessions"`
}

type messageResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

type countResponse struct {
	Count int64 `json:"count"`
}
