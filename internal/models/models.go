// Package models defines the entity types stored by localdb.
package models

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/maruel/localdb/internal/jsondb"
	"golang.org/x/crypto/bcrypt"
)

var (
	errNameRequired  = errors.New("name is required")
	errTitleRequired = errors.New("title is required")
	errNoCreator     = errors.New("creator is required")
	errInvalidCreds  = errors.New("invalid credentials")
)

// User is an account. Posts and Profile are navigation fields kept in sync
// when posts and profiles are added.
type User struct {
	ID           int64
	Name         string
	PasswordHash string
	Created      time.Time

	Posts   []*Post
	Profile *Profile
}

// Post is authored by a User.
type Post struct {
	ID      int64
	Title   string
	Body    string
	Created time.Time

	Creator *User
}

// Profile holds optional details of a User. A user has at most one current
// profile: the last one added.
type Profile struct {
	ID     uuid.UUID
	Bio    string
	Avatar []byte

	User *User
}

var (
	// UserType describes User.
	UserType *jsondb.EntityType
	// PostType describes Post.
	PostType *jsondb.EntityType
	// ProfileType describes Profile.
	ProfileType *jsondb.EntityType
)

func init() {
	UserType = jsondb.NewEntityType("User", func() jsondb.Entity { return &User{} },
		jsondb.Int("Id", func(u *User) int64 { return u.ID }, func(u *User, v int64) { u.ID = v }).PrimaryKey(),
		jsondb.String("Name", func(u *User) string { return u.Name }, func(u *User, v string) { u.Name = v }),
		jsondb.String("Password", func(u *User) string { return u.PasswordHash }, func(u *User, v string) { u.PasswordHash = v }),
		jsondb.Time("Created", func(u *User) time.Time { return u.Created }, func(u *User, v time.Time) { u.Created = v }),
		jsondb.Collection("Posts", "Post", func(u *User) []*Post { return u.Posts }, func(u *User, v []*Post) { u.Posts = v }),
		jsondb.Ref("Profile", "Profile", func(u *User) *Profile { return u.Profile }, func(u *User, v *Profile) { u.Profile = v }),
	)
	PostType = jsondb.NewEntityType("Post", func() jsondb.Entity { return &Post{} },
		jsondb.Int("Id", func(p *Post) int64 { return p.ID }, func(p *Post, v int64) { p.ID = v }).PrimaryKey(),
		jsondb.String("Title", func(p *Post) string { return p.Title }, func(p *Post, v string) { p.Title = v }),
		jsondb.String("Body", func(p *Post) string { return p.Body }, func(p *Post, v string) { p.Body = v }),
		jsondb.Time("Created", func(p *Post) time.Time { return p.Created }, func(p *Post, v time.Time) { p.Created = v }),
		jsondb.Ref("Creator", "User", func(p *Post) *User { return p.Creator }, func(p *Post, v *User) { p.Creator = v }),
	)
	ProfileType = jsondb.NewEntityType("Profile", func() jsondb.Entity { return &Profile{} },
		jsondb.UUID("Id", func(p *Profile) uuid.UUID { return p.ID }, func(p *Profile, v uuid.UUID) { p.ID = v }).PrimaryKey(),
		jsondb.String("Bio", func(p *Profile) string { return p.Bio }, func(p *Profile, v string) { p.Bio = v }),
		jsondb.Bytes("Avatar", func(p *Profile) []byte { return p.Avatar }, func(p *Profile, v []byte) { p.Avatar = v }),
		jsondb.Ref("User", "User", func(p *Profile) *User { return p.User }, func(p *Profile, v *User) { p.User = v }),
	)
}

// EntityType implements jsondb.Entity.
func (*User) EntityType() *jsondb.EntityType { return UserType }

// EntityType implements jsondb.Entity.
func (*Post) EntityType() *jsondb.EntityType { return PostType }

// EntityType implements jsondb.Entity.
func (*Profile) EntityType() *jsondb.EntityType { return ProfileType }

// NewUser returns a user with a bcrypt hash of password. An empty password
// leaves the hash empty; such a user can't authenticate.
func NewUser(name, password string) (*User, error) {
	if name == "" {
		return nil, errNameRequired
	}
	u := &User{Name: name, Created: time.Now().UTC()}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		u.PasswordHash = string(hash)
	}
	return u, nil
}

// CheckPassword verifies password against the stored hash.
func (u *User) CheckPassword(password string) error {
	if u.PasswordHash == "" {
		return errInvalidCreds
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return errInvalidCreds
	}
	return nil
}

// NewPost returns a post authored by creator.
func NewPost(creator *User, title, body string) (*Post, error) {
	if creator == nil {
		return nil, errNoCreator
	}
	if title == "" {
		return nil, errTitleRequired
	}
	return &Post{Title: title, Body: body, Created: time.Now().UTC(), Creator: creator}, nil
}

// NewProfile returns a profile of u.
func NewProfile(u *User, bio string) (*Profile, error) {
	if u == nil {
		return nil, errNoCreator
	}
	return &Profile{Bio: bio, User: u}, nil
}

// Configure declares the relationships between the entity types.
func Configure(reg *jsondb.Registry) {
	reg.Model(PostType).HasOne("Creator").WithMany("Posts")
	reg.Model(ProfileType).HasOne("User").WithOne("Profile")
}

// Store is an initialized database holding every entity type.
type Store struct {
	DB       *jsondb.DB
	Users    *jsondb.Table[*User]
	Posts    *jsondb.Table[*Post]
	Profiles *jsondb.Table[*Profile]
}

// Open declares the tables in dir and loads them.
func Open(ctx context.Context, dir string, opts ...jsondb.Option) (*Store, error) {
	db := jsondb.New(dir, Configure, opts...)
	s := &Store{
		DB:       db,
		Users:    jsondb.Declare[*User](db),
		Posts:    jsondb.Declare[*Post](db),
		Profiles: jsondb.Declare[*Profile](db),
	}
	if err := db.Initialize(ctx); err != nil {
		return nil, err
	}
	// Navigation collections aren't persisted; rebuild them from the loaded
	// references.
	for _, p := range slices.Collect(s.Posts.All()) {
		db.Synchronize(ctx, p)
	}
	for _, p := range slices.Collect(s.Profiles.All()) {
		db.Synchronize(ctx, p)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
