package services

import (
	"context"
	"errors"
	"testing"
)

type fakeBlockChecker struct {
	matches map[string]bool
	err     error
	calls   int
}

func (f *fakeBlockChecker) HasActiveMatch(ctx context.Context, userID, email, sessionID string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.matches[userID] || f.matches[email] || f.matches[sessionID], nil
}

func TestIsBlocked_MatchesAnyIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		matches  map[string]bool
		identity Identity
		want     bool
	}{
		{"no match", map[string]bool{}, AuthenticatedIdentity("user-1", "u@example.com", "sess-1", ""), false},
		{"by user id", map[string]bool{"user-1": true}, AuthenticatedIdentity("user-1", "", "", ""), true},
		{"by email", map[string]bool{"u@example.com": true}, AuthenticatedIdentity("user-1", "u@example.com", "", ""), true},
		{"by session", map[string]bool{"sess-1": true}, AuthenticatedIdentity("user-1", "", "sess-1", ""), true},
		{"anonymous never matches", map[string]bool{"user-1": true}, AnonymousIdentity("203.0.113.1"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := CreateBlocklistService(&fakeBlockChecker{matches: tt.matches})
			if got := svc.IsBlocked(context.Background(), tt.identity); got != tt.want {
				t.Errorf("IsBlocked() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsBlocked_FailsOpenOnStorageError(t *testing.T) {
	svc := CreateBlocklistService(&fakeBlockChecker{err: errors.New("connection refused")})

	if svc.IsBlocked(context.Background(), AuthenticatedIdentity("user-1", "", "", "")) {
		t.Error("IsBlocked() with failing storage = true, want false")
	}
}
