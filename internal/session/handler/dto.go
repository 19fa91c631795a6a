package handler

import (
	"encoding/json"
	"time"

	opdomain "opsgate/internal/operator/domain"
)

type loginRequest struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
}

// UnmarshalJSON also accepts "password" for clients written against earlier builds; "secret" wins.
func (r *loginRequest) UnmarshalJSON(b []byte) error {
	var raw struct {
		Email    string `json:"email"`
		Secret   string `json:"secret"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = loginRequest{Email: raw.Email, Secret: firstNonEmpty(raw.Secret, raw.Password)}
	return nil
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	CurrentSecret string `json:"currentSecret"`
	NewSecret     string `json:"newSecret"`
	ConfirmSecret string `json:"confirmSecret"`
}

// UnmarshalJSON also accepts the currentPassword, newPassword and confirmPassword aliases.
func (r *changePasswordRequest) UnmarshalJSON(b []byte) error {
	var raw struct {
		CurrentSecret   string `json:"currentSecret"`
		NewSecret       string `json:"newSecret"`
		ConfirmSecret   string `json:"confirmSecret"`
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = changePasswordRequest{
		CurrentSecret: firstNonEmpty(raw.CurrentSecret, raw.CurrentPassword),
		NewSecret:     firstNonEmpty(raw.NewSecret, raw.NewPassword),
		ConfirmSecret: firstNonEmpty(raw.ConfirmSecret, raw.ConfirmPassword),
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

type operatorSummary struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type tokenResponse struct {
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken"`
	Operator     *operatorSummary `json:"operator,omitempty"`
}

type profileResponse struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	Role           string     `json:"role"`
	Active         bool       `json:"active"`
	LastLoginAt    *time.Time `json:"lastLoginAt"`
	ActiveSessions int64      `json:"activeSessions"`
}

type revokeAllResponse struct {
	RevokedCount int64 `json:"revokedCount"`
}

func summaryOf(op *opdomain.Operator) *operatorSummary {
	return &operatorSummary{ID: op.ID, Email: op.Email, Name: op.DisplayName, Role: string(op.Role)}
}
