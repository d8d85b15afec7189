package models

import (
	"log/slog"
	"testing"

	"github.com/maruel/localdb/internal/jsondb"
)

func openStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(t.Context(), dir, jsondb.WithLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEntityTypes(t *testing.T) {
	for _, typ := range []*jsondb.EntityType{UserType, PostType, ProfileType} {
		if err := typ.Validate(); err != nil {
			t.Errorf("%s.Validate() failed: %v", typ.Name, err)
		}
	}
	reg := jsondb.NewRegistry(UserType, PostType, ProfileType)
	Configure(reg)
	if err := reg.Freeze(); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	for _, r := range reg.All() {
		if r.Incomplete() {
			t.Errorf("%s is incomplete", r)
		}
	}
}

func TestNewUser(t *testing.T) {
	t.Run("password", func(t *testing.T) {
		u, err := NewUser("alice", "hunter2")
		if err != nil {
			t.Fatalf("NewUser failed: %v", err)
		}
		if u.PasswordHash == "" || u.PasswordHash == "hunter2" {
			t.Errorf("PasswordHash = %q, want a hash", u.PasswordHash)
		}
		if err := u.CheckPassword("hunter2"); err != nil {
			t.Errorf("CheckPassword() = %v, want nil", err)
		}
		if err := u.CheckPassword("wrong"); err == nil {
			t.Error("CheckPassword(wrong) succeeded")
		}
	})
	t.Run("no password", func(t *testing.T) {
		u, err := NewUser("bob", "")
		if err != nil {
			t.Fatalf("NewUser failed: %v", err)
		}
		if err := u.CheckPassword(""); err == nil {
			t.Error("CheckPassword() succeeded without a hash")
		}
	})
	t.Run("no name", func(t *testing.T) {
		if _, err := NewUser("", "x"); err == nil {
			t.Error("NewUser() succeeded without a name")
		}
	})
}

func TestNewPost(t *testing.T) {
	u := &User{ID: 1}
	tests := []struct {
		name    string
		creator *User
		title   string
		wantErr bool
	}{
		{"valid", u, "Hello", false},
		{"no creator", nil, "Hello", true},
		{"no title", u, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPost(tt.creator, tt.title, "body")
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewPost() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && p.Creator != u {
				t.Errorf("Creator = %v, want %v", p.Creator, u)
			}
		})
	}
}

func TestStore(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)
	u, err := NewUser("alice", "")
	if err != nil {
		t.Fatalf("NewUser failed: %v", err)
	}
	if err := s.DB.Add(u, true); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	for _, title := range []string{"one", "two"} {
		p, err := NewPost(u, title, "")
		if err != nil {
			t.Fatalf("NewPost failed: %v", err)
		}
		if err := s.DB.Add(p, true); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	prof, err := NewProfile(u, "hello")
	if err != nil {
		t.Fatalf("NewProfile failed: %v", err)
	}
	prof.Avatar = []byte{0x89, 'P', 'N', 'G'}
	if err := s.DB.Add(prof, true); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if len(u.Posts) != 2 {
		t.Errorf("Posts = %d, want 2", len(u.Posts))
	}
	if u.Profile != prof {
		t.Errorf("Profile = %v, want %v", u.Profile, prof)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s = openStore(t, dir)
	loaded, ok := s.Users.Get(u.ID)
	if !ok {
		t.Fatalf("Get(%d) not found", u.ID)
	}
	if loaded.Name != "alice" || !loaded.Created.Equal(u.Created) {
		t.Errorf("loaded = %+v, want %+v", loaded, u)
	}
	if len(loaded.Posts) != 2 || loaded.Posts[0].Title != "one" || loaded.Posts[1].Title != "two" {
		t.Errorf("Posts = %v, want [one two]", loaded.Posts)
	}
	if loaded.Profile == nil || loaded.Profile.ID != prof.ID || string(loaded.Profile.Avatar) != string(prof.Avatar) {
		t.Errorf("Profile = %+v, want %+v", loaded.Profile, prof)
	}
}
