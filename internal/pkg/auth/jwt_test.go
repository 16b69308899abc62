package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/azmoonhub/azmoon/internal/app/models"
)

func testService(accessExp time.Duration) *JWTService {
	return NewJWTService(JWTConfig{
		SecretKey:       "test-secret",
		AccessTokenExp:  accessExp,
		RefreshTokenExp: 24 * time.Hour,
		TokenIssuer:     "azmoon-test",
	})
}

func testUser() *models.User {
	return &models.User{
		ID:       42,
		Email:    "student@azmoon.dev",
		RoleType: models.RoleStudent,
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"bearer token", "Bearer abc.def.ghi", "abc.def.ghi", false},
		{"empty header", "", "", true},
		{"missing prefix", "abc.def.ghi", "", true},
		{"prefix only", "Bearer ", "", true},
		{"wrong scheme", "Basic abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractBearerToken(tt.header)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidFormat) {
					t.Errorf("ExtractBearerToken(%q) err = %v, want ErrInvalidFormat", tt.header, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractBearerToken(%q): %v", tt.header, err)
			}
			if got != tt.want {
				t.Errorf("ExtractBearerToken(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestGenerateAndValidateTokenPair(t *testing.T) {
	svc := testService(time.Hour)

	accessToken, refreshToken, expiresIn, refreshExpiresIn, err := svc.GenerateTokenPair(testUser())
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}
	if refreshToken == "" {
		t.Error("empty refresh token")
	}
	if expiresIn != 3600 || refreshExpiresIn != 86400 {
		t.Errorf("expiries = %d/%d, want 3600/86400", expiresIn, refreshExpiresIn)
	}

	claims, err := svc.ValidateAndExtractClaims(accessToken)
	if err != nil {
		t.Fatalf("ValidateAndExtractClaims: %v", err)
	}
	if claims.UserID != 42 || claims.Email != "student@azmoon.dev" || claims.RoleType != string(models.RoleStudent) {
		t.Errorf("claims = %+v, want user 42 student@azmoon.dev STUDENT", claims)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	accessToken, _, _, _, err := testService(time.Hour).GenerateTokenPair(testUser())
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}

	other := NewJWTService(JWTConfig{SecretKey: "another-secret", AccessTokenExp: time.Hour})
	if _, err := other.ValidateToken(accessToken); err == nil {
		t.Error("token signed with a different secret validated")
	}
}

func TestValidateExpiredToken(t *testing.T) {
	svc := testService(-time.Minute)
	accessToken, _, _, _, err := svc.GenerateTokenPair(testUser())
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}

	if _, err := svc.ValidateToken(accessToken); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expired token returned %v, want ErrExpiredToken", err)
	}
}

func TestValidateAndExtractClaimsEmptyToken(t *testing.T) {
	if _, err := testService(time.Hour).ValidateAndExtractClaims(""); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("empty token returned %v, want ErrInvalidToken", err)
	}
}
