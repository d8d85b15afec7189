package jsondb

import (
	"time"

	"github.com/google/uuid"
)

// Entity types shared by the tests.

type user struct {
	ID       int64
	Name     string
	Password string
	Posts    []*post
	Profile  *profile
}

type post struct {
	ID      int64
	Title   string
	Score   float64
	Draft   bool
	Data    []byte
	At      time.Time
	Creator *user
}

type profile struct {
	ID    uuid.UUID
	Bio   string
	Owner *user
}

// stringKeyed has a primary key of an unsupported kind.
type stringKeyed struct {
	Code string
}

// keyless has no primary key.
type keyless struct {
	Name string
}

var (
	userType        *EntityType
	postType        *EntityType
	profileType     *EntityType
	stringKeyedType *EntityType
	keylessType     *EntityType
)

func init() {
	userType = NewEntityType("User", func() Entity { return &user{} },
		Int("Id", func(u *user) int64 { return u.ID }, func(u *user, v int64) { u.ID = v }).PrimaryKey(),
		String("Name", func(u *user) string { return u.Name }, func(u *user, v string) { u.Name = v }),
		String("Password", func(u *user) string { return u.Password }, func(u *user, v string) { u.Password = v }),
		Collection("Posts", "Post", func(u *user) []*post { return u.Posts }, func(u *user, v []*post) { u.Posts = v }),
		Ref("Profile", "Profile", func(u *user) *profile { return u.Profile }, func(u *user, v *profile) { u.Profile = v }),
	)
	postType = NewEntityType("Post", func() Entity { return &post{} },
		Int("Id", func(p *post) int64 { return p.ID }, func(p *post, v int64) { p.ID = v }).PrimaryKey(),
		String("Title", func(p *post) string { return p.Title }, func(p *post, v string) { p.Title = v }),
		Float("Score", func(p *post) float64 { return p.Score }, func(p *post, v float64) { p.Score = v }),
		Bool("Draft", func(p *post) bool { return p.Draft }, func(p *post, v bool) { p.Draft = v }),
		Bytes("Data", func(p *post) []byte { return p.Data }, func(p *post, v []byte) { p.Data = v }),
		Time("At", func(p *post) time.Time { return p.At }, func(p *post, v time.Time) { p.At = v }),
		Ref("Creator", "User", func(p *post) *user { return p.Creator }, func(p *post, v *user) { p.Creator = v }),
	)
	profileType = NewEntityType("Profile", func() Entity { return &profile{} },
		UUID("Id", func(p *profile) uuid.UUID { return p.ID }, func(p *profile, v uuid.UUID) { p.ID = v }).PrimaryKey(),
		String("Bio", func(p *profile) string { return p.Bio }, func(p *profile, v string) { p.Bio = v }),
		Ref("Owner", "User", func(p *profile) *user { return p.Owner }, func(p *profile, v *user) { p.Owner = v }),
	)
	stringKeyedType = NewEntityType("StringKeyed", func() Entity { return &stringKeyed{} },
		String("Code", func(s *stringKeyed) string { return s.Code }, func(s *stringKeyed, v string) { s.Code = v }).PrimaryKey(),
	)
	keylessType = NewEntityType("Keyless", func() Entity { return &keyless{} },
		String("Name", func(k *keyless) string { return k.Name }, func(k *keyless, v string) { k.Name = v }),
	)
}

func (*user) EntityType() *EntityType        { return userType }
func (*post) EntityType() *EntityType        { return postType }
func (*profile) EntityType() *EntityType     { return profileType }
func (*stringKeyed) EntityType() *EntityType { return stringKeyedType }
func (*keyless) EntityType() *EntityType     { return keylessType }

// configureAll declares Post.Creator <-> User.Posts and
// Profile.Owner <-> User.Profile.
func configureAll(reg *Registry) {
	reg.Model(postType).HasOne("Creator").WithMany("Posts")
	reg.Model(profileType).HasOne("Owner").WithOne("Profile")
}
