package session_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"campustap/internal/session"
)

type fakeStore struct {
	sessions []session.Session
}

func (f *fakeStore) ActiveByCode(_ context.Context, code string) (*session.Session, error) {
	for i := len(f.sessions) - 1; i >= 0; i-- {
		if f.sessions[i].SessionCode == code && f.sessions[i].IsActive {
			s := f.sessions[i]
			return &s, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) LatestActive(_ context.Context) (*session.Session, error) {
	for i := len(f.sessions) - 1; i >= 0; i-- {
		if f.sessions[i].IsActive {
			s := f.sessions[i]
			return &s, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) Latest(_ context.Context) (*session.Session, error) {
	if len(f.sessions) == 0 {
		return nil, nil
	}
	s := f.sessions[len(f.sessions)-1]
	return &s, nil
}

func TestParseStrategy(t *testing.T) {
	for _, valid := range []string{"explicit", "active_fallback", "most_recent"} {
		if _, err := session.ParseStrategy(valid); err != nil {
			t.Errorf("ParseStrategy(%q) = %v", valid, err)
		}
	}
	if _, err := session.ParseStrategy("newest"); err == nil {
		t.Error("ParseStrategy should reject unknown names")
	}
}

func TestResolve(t *testing.T) {
	active1 := session.Session{ID: "s1", SessionCode: "CSC301-AAAA", IsActive: true}
	active2 := session.Session{ID: "s2", SessionCode: "CSC301-BBBB", IsActive: true}
	ended := session.Session{ID: "s3", SessionCode: "CSC301-CCCC", IsActive: false}

	tests := []struct {
		name     string
		strategy session.Strategy
		sessions []session.Session
		hint     string
		wantID   string
		wantNil  bool
		wantErr  bool
	}{
		{"explicit matching hint", session.StrategyExplicit, []session.Session{active1, active2}, "CSC301-AAAA", "s1", false, false},
		{"explicit ignores ended session", session.StrategyExplicit, []session.Session{ended}, "CSC301-CCCC", "", false, true},
		{"explicit empty hint", session.StrategyExplicit, []session.Session{active1}, "", "", false, true},
		{"explicit unknown hint", session.StrategyExplicit, []session.Session{active1}, "NOPE", "", false, true},
		{"fallback uses hint when it matches", session.StrategyActiveFallback, []session.Session{active1, active2}, "CSC301-AAAA", "s1", false, false},
		{"fallback to newest active on bad hint", session.StrategyActiveFallback, []session.Session{active1, active2}, "NOPE", "s2", false, false},
		{"fallback without hint", session.StrategyActiveFallback, []session.Session{active1, active2}, "", "s2", false, false},
		{"fallback with nothing active", session.StrategyActiveFallback, []session.Session{ended}, "", "", false, true},
		{"most recent prefers active", session.StrategyMostRecent, []session.Session{active1, ended}, "", "s1", false, false},
		{"most recent takes ended when nothing active", session.StrategyMostRecent, []session.Session{ended}, "", "s3", false, false},
		{"most recent with no sessions at all", session.StrategyMostRecent, nil, "", "", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := session.NewResolver(&fakeStore{sessions: tt.sessions}, tt.strategy)
			got, err := r.Resolve(context.Background(), tt.hint)
			if tt.wantErr {
				if !errors.Is(err, session.ErrNotFound) {
					t.Fatalf("err = %v, want ErrNotFound", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if tt.wantNil {
				if got != nil {
					t.Fatalf("got %+v, want nil session", got)
				}
				return
			}
			if got == nil || got.ID != tt.wantID {
				t.Fatalf("got %+v, want %s", got, tt.wantID)
			}
		})
	}
}

func TestGenerateCode(t *testing.T) {
	re := regexp.MustCompile(`^CSC301-[0-9A-F]{4}$`)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code := session.GenerateCode("csc301")
		if !re.MatchString(code) {
			t.Fatalf("code %q does not match expected shape", code)
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Fatal("generated codes should vary")
	}
}
