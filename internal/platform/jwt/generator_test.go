package jwtmw

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestGenerator_GenerateToken は生成されたJWTトークンが有効で正しいクレームを含むことを検証します。
func TestGenerator_GenerateToken(t *testing.T) {
	t.Parallel()

	const secret = "test-secret"
	gen := NewGenerator(secret, time.Hour)

	tests := []struct {
		name      string
		subject   string
		scopes    []string
		wantScope string
	}{
		{"single scope", "scheduler", []string{ScopeRead}, ScopeRead},
		{"multiple scopes", "dashboard", []string{ScopeRead, "etl:admin"}, "etl:read etl:admin"},
		{"no scope", "probe", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokenStr, err := gen.GenerateToken(tt.subject, tt.scopes...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var claims Claims
			token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				t.Fatalf("token is invalid: %v", err)
			}
			if claims.Subject != tt.subject {
				t.Errorf("expected subject %q, got %q", tt.subject, claims.Subject)
			}
			if claims.Scope != tt.wantScope {
				t.Errorf("expected scope %q, got %q", tt.wantScope, claims.Scope)
			}
		})
	}
}

// TestGenerator_GenerateToken_Expiration はトークンのexp・iatクレームが正しい時刻範囲内であることを検証します。
func TestGenerator_GenerateToken_Expiration(t *testing.T) {
	t.Parallel()

	gen := NewGenerator("test-secret", 30*time.Minute)
	before := time.Now().Add(-time.Second)

	tokenStr, err := gen.GenerateToken("scheduler", ScopeRead)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var claims Claims
	if _, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	}); err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if claims.IssuedAt.Time.Before(before) {
		t.Errorf("iat %v is before %v", claims.IssuedAt.Time, before)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != 30*time.Minute {
		t.Errorf("expected lifetime 30m, got %v", got)
	}
}

// TestGenerator_GenerateToken_EmptySubject は subject が空の場合にエラーになることを検証します。
func TestGenerator_GenerateToken_EmptySubject(t *testing.T) {
	t.Parallel()

	if _, err := NewGenerator("s", time.Hour).GenerateToken(""); err == nil {
		t.Error("expected error for empty subject")
	}
}

// TestClaims_HasScope はスコープの判定を検証します。
func TestClaims_HasScope(t *testing.T) {
	t.Parallel()

	c := Claims{Scope: "etl:read etl:admin"}
	if !c.HasScope(ScopeRead) || !c.HasScope("etl:admin") {
		t.Error("expected scopes to be granted")
	}
	if c.HasScope("etl") {
		t.Error("partial scope must not match")
	}
}
