package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/maruel/localdb/internal/config"
	"github.com/maruel/localdb/internal/history"
	"github.com/maruel/localdb/internal/jsondb"
	"github.com/maruel/localdb/internal/models"
)

var errUsage = errors.New("invalid arguments")

// app runs one command against an open store.
type app struct {
	store *models.Store
	repo  *history.Repo // nil when history is disabled
	out   io.Writer
	log   *slog.Logger
	watch config.WatchConfig
}

type command struct {
	name    string
	args    string
	help    string
	minArgs int
	maxArgs int
	run     func(a *app, ctx context.Context, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"add-user", "NAME [PASSWORD]", "Add a user and print its key", 1, 2, (*app).addUser},
		{"add-post", "USER_ID TITLE [BODY]", "Add a post by a user", 2, 3, (*app).addPost},
		{"set-profile", "USER_ID BIO", "Add a profile and make it the user's current one", 2, 2, (*app).setProfile},
		{"check-password", "USER_ID PASSWORD", "Verify a user's password", 2, 2, (*app).checkPassword},
		{"list", "TYPE", "Print every entity of a type", 1, 1, (*app).list},
		{"has", "TYPE KEY", "Report whether an entity exists", 2, 2, (*app).has},
		{"schema", "TYPE", "Print the JSON Schema of a table file", 1, 1, (*app).schema},
		{"history", "[TYPE]", "Print the commits touching a table", 0, 1, (*app).history},
		{"watch", "", "Validate table files as they change", 0, 0, (*app).watchDir},
	}
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}
	for i := range commands {
		c := &commands[i]
		if c.name != args[0] {
			continue
		}
		rest := args[1:]
		if len(rest) < c.minArgs || len(rest) > c.maxArgs {
			return fmt.Errorf("%w: usage: %s %s", errUsage, c.name, c.args)
		}
		return c.run(a, ctx, rest)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
}

func (a *app) addUser(ctx context.Context, args []string) error {
	password := ""
	if len(args) > 1 {
		password = args[1]
	}
	u, err := models.NewUser(args[0], password)
	if err != nil {
		return err
	}
	if err := a.store.DB.Add(u, true); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d\n", u.ID)
	return a.commit(ctx, fmt.Sprintf("Add User %d", u.ID), a.store.Users.Path())
}

func (a *app) addPost(ctx context.Context, args []string) error {
	u, err := a.user(args[0])
	if err != nil {
		return err
	}
	body := ""
	if len(args) > 2 {
		body = args[2]
	}
	p, err := models.NewPost(u, args[1], body)
	if err != nil {
		return err
	}
	if err := a.store.DB.Add(p, true); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d\n", p.ID)
	a.log.InfoContext(ctx, "Added post", "post", p.ID, "user", u.ID, "posts", len(u.Posts))
	return a.commit(ctx, fmt.Sprintf("Add Post %d", p.ID), a.store.Posts.Path())
}

func (a *app) setProfile(ctx context.Context, args []string) error {
	u, err := a.user(args[0])
	if err != nil {
		return err
	}
	p, err := models.NewProfile(u, args[1])
	if err != nil {
		return err
	}
	if err := a.store.DB.Add(p, true); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s\n", p.ID)
	return a.commit(ctx, fmt.Sprintf("Add Profile %s", p.ID), a.store.Profiles.Path())
}

func (a *app) checkPassword(_ context.Context, args []string) error {
	u, err := a.user(args[0])
	if err != nil {
		return err
	}
	if err := u.CheckPassword(args[1]); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "ok")
	return nil
}

func (a *app) list(_ context.Context, args []string) error {
	t, err := a.store.DB.Table(args[0])
	if err != nil {
		return err
	}
	for e := range t.Entities() {
		b, err := jsondb.Encode(e)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s\n", b)
	}
	return nil
}

func (a *app) has(_ context.Context, args []string) error {
	t, err := a.store.DB.Table(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, t.ContainsKey(args[1]))
	return nil
}

func (a *app) schema(_ context.Context, args []string) error {
	t, err := a.store.DB.Table(args[0])
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(t.Type().TableSchema(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}
	fmt.Fprintf(a.out, "%s\n", b)
	return nil
}

func (a *app) history(ctx context.Context, args []string) error {
	if a.repo == nil {
		return errors.New("history is disabled; use -git or set git.enabled")
	}
	path := ""
	if len(args) > 0 {
		t, err := a.store.DB.Table(args[0])
		if err != nil {
			return err
		}
		path = t.Path()
	}
	log, err := a.repo.Log(ctx, path, 0)
	if err != nil {
		return err
	}
	for _, c := range log {
		fmt.Fprintf(a.out, "%.12s %s %s\n", c.Hash, c.When.Format("2006-01-02 15:04:05"), c.Message)
	}
	return nil
}

func (a *app) user(id string) (*models.User, error) {
	key, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user id %q", errUsage, id)
	}
	u, ok := a.store.Users.Get(key)
	if !ok {
		return nil, fmt.Errorf("user %d not found", key)
	}
	return u, nil
}

// commit records files in the history when enabled.
func (a *app) commit(ctx context.Context, msg string, files ...string) error {
	if a.repo == nil {
		return nil
	}
	ok, err := a.repo.Commit(ctx, msg, files...)
	if err != nil {
		return err
	}
	if ok {
		a.log.DebugContext(ctx, "Committed", "msg", msg)
	}
	return nil
}
