package api

import (
	"time"

	"agora/cmd/identity"
	"agora/cmd/internal/auth/session"
)

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		Role:          string(u.Role),
		Status:        string(u.Status),
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt.UTC(),
	}
}

func toTokenResponse(pair session.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		ExpiresAt:        pair.ExpiresAt.UTC(),
		RefreshExpiresAt: pair.RefreshExpiresAt.UTC(),
	}
}

func toSessionInfo(s session.Session, currentID string) sessionInfo {
	info := sessionInfo{
		ID:               s.ID,
		IssuedAt:         s.IssuedAt.UTC(),
		ExpiresAt:        s.ExpiresAt.UTC(),
		RefreshExpiresAt: s.RefreshExpiresAt.UTC(),
		LastUsedAt:       utcPtr(s.LastUsedAt),
		RevokedAt:        utcPtr(s.RevokedAt),
		IsOnline:         s.IsOnline,
		Current:          s.ID == currentID,
		DeviceInfo:       s.DeviceInfo,
		UserAgent:        s.UserAgent,
	}
	if s.IPAddress != nil {
		info.IPAddress = s.IPAddress.String()
	}
	return info
}

func principalOf(u identity.User) session.Principal {
	return session.Principal{
		UserID:   u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     string(u.Role),
		Status:   string(u.Status),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
