package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestUserJSONOmitsCredentialFields(t *testing.T) {
	user := User{
		ID:           "user-1",
		Username:     "ann",
		Email:        "ann@example.com",
		FullName:     "Ann L",
		PasswordHash: "pbkdf2$sha256$120000$salt$key",
		AvatarURL:    "https://cdn.example.com/ann.png",
		RefreshToken: "live-refresh-token",
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	raw, err := json.Marshal(user)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	encoded := string(raw)
	for _, secret := range []string{"passwordHash", "pbkdf2", "refreshToken", "live-refresh-token"} {
		if strings.Contains(encoded, secret) {
			t.Fatalf("marshaled user leaks %q: %s", secret, encoded)
		}
	}
	if !strings.Contains(encoded, `"username":"ann"`) {
		t.Fatalf("marshaled user missing public fields: %s", encoded)
	}
}
