package jsondb

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestEncode(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	tests := []struct {
		name string
		e    Entity
		want string
	}{
		{
			"user",
			&user{ID: 1, Name: "alice", Password: "secret", Posts: []*post{{ID: 9}}},
			`{"Id": 1, "Name": "alice", "Password": "secret", "Profile": null}`,
		},
		{
			"post",
			&post{ID: 3, Title: "Hi \"there\"", Score: 1.5, Draft: true, Data: []byte("hi"), At: at, Creator: &user{ID: 7}},
			`{"Id": 3, "Title": "Hi \"there\"", "Score": 1.5, "Draft": true, "Data": "aGk=", "At": "2024-01-02T03:04:05Z", "Creator": 7}`,
		},
		{
			"non-finite float",
			&post{ID: 4, Score: math.Inf(1), At: at},
			`{"Id": 4, "Title": "", "Score": "Not implemented", "Draft": false, "Data": "", "At": "2024-01-02T03:04:05Z", "Creator": null}`,
		},
		{
			"uuid key",
			&profile{ID: id, Bio: "bio", Owner: &user{ID: 2}},
			`{"Id": "6ba7b810-9dad-11d1-80b4-00c04fd430c8", "Bio": "bio", "Owner": 2}`,
		},
		{
			"reference to uuid key",
			&user{ID: 5, Name: "bob", Profile: &profile{ID: id}},
			`{"Id": 5, "Name": "bob", "Password": "", "Profile": "6ba7b810-9dad-11d1-80b4-00c04fd430c8"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.e)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Encode() =\n%s\nwant\n%s", got, tt.want)
			}
			if !json.Valid(got) {
				t.Errorf("Encode() is not valid JSON: %s", got)
			}
		})
	}

	t.Run("placeholder", func(t *testing.T) {
		typ := NewEntityType("Odd", func() Entity { return &odd{} },
			Field{
				Name: "Id",
				Kind: KindInt,
				Role: RolePrimaryKey,
				Get:  func(Entity) any { return int64(1) },
				Set:  func(Entity, any) error { return nil },
			},
			Field{
				Name: "Blob",
				Get:  func(Entity) any { return struct{}{} },
				Set:  func(Entity, any) error { return nil },
			},
		)
		e := &odd{typ: typ}
		got, err := Encode(e)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		if want := `{"Id": 1, "Blob": "Not implemented"}`; string(got) != want {
			t.Errorf("Encode() = %s, want %s", got, want)
		}
	})

	t.Run("nil", func(t *testing.T) {
		var u *user
		if _, err := Encode(u); err == nil {
			t.Error("Encode(nil) succeeded")
		}
	})

	t.Run("no entity type", func(t *testing.T) {
		if _, err := Encode(&odd{}); !errors.Is(err, ErrMissingPrimaryKeyField) {
			t.Errorf("Encode() = %v, want %v", err, ErrMissingPrimaryKeyField)
		}
	})
}

// odd is an entity whose descriptor is chosen at runtime.
type odd struct {
	typ *EntityType
}

func (o *odd) EntityType() *EntityType { return o.typ }

func TestAppendRecord(t *testing.T) {
	users := []*user{
		{ID: 1, Name: "a"},
		{ID: 2, Name: "b"},
		{ID: 3, Name: "c"},
	}
	path := filepath.Join(t.TempDir(), "User.json")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()
	for i, u := range users {
		enc, err := Encode(u)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		size, err := appendRecord(f, enc)
		if err != nil {
			t.Fatalf("appendRecord failed: %v", err)
		}
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile failed: %v", err)
		}
		if int64(len(got)) != size {
			t.Errorf("appendRecord() size = %d, want %d", size, len(got))
		}
		want, err := EncodeArray(users[:i+1])
		if err != nil {
			t.Fatalf("EncodeArray failed: %v", err)
		}
		if string(got) != string(want) {
			t.Errorf("after %d appends file =\n%s\nwant\n%s", i+1, got, want)
		}
		records, err := Decode(got)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if len(records) != i+1 {
			t.Errorf("Decode() = %d records, want %d", len(records), i+1)
		}
	}
}

func TestAppendableSize(t *testing.T) {
	tests := []struct {
		data    string
		records int
		want    int64
	}{
		{"", 0, 0},
		{"\n", 0, 0},
		{"[]", 0, 0},
		{`[{"Id": 1}]`, 1, 11},
		{"[{\"Id\": 1}] \r\n", 1, 11},
		{" [{\"Id\": 1}]", 1, 12},
	}
	for _, tt := range tests {
		if got := appendableSize([]byte(tt.data), tt.records); got != tt.want {
			t.Errorf("appendableSize(%q, %d) = %d, want %d", tt.data, tt.records, got, tt.want)
		}
	}
}

func TestEncodeArray(t *testing.T) {
	got, err := EncodeArray([]*user{})
	if err != nil {
		t.Fatalf("EncodeArray failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("EncodeArray(empty) = %q, want empty", got)
	}
	got, err = EncodeArray([]*user{{ID: 1}, {ID: 2}})
	if err != nil {
		t.Fatalf("EncodeArray failed: %v", err)
	}
	want := `[{"Id": 1, "Name": "", "Password": "", "Profile": null},{"Id": 2, "Name": "", "Password": "", "Profile": null}]`
	if string(got) != want {
		t.Errorf("EncodeArray() = %s, want %s", got, want)
	}
}

func TestDecode(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		tests := []struct {
			name string
			data string
			want int
		}{
			{"empty", "", 0},
			{"whitespace", " \n\t", 0},
			{"empty array", "[]", 0},
			{"one", `[{"Id": 1}]`, 1},
			{"two", `[{"Id": 1}, {"Id": 2}]`, 2},
			{"trailing newline", "[{\"Id\": 1}]\n", 1},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := Decode([]byte(tt.data))
				if err != nil {
					t.Fatalf("Decode failed: %v", err)
				}
				if len(got) != tt.want {
					t.Errorf("Decode() = %d records, want %d", len(got), tt.want)
				}
			})
		}
	})

	t.Run("values", func(t *testing.T) {
		got, err := Decode([]byte(`[{"Id": 12, "Name": "a\nb", "Ok": true, "None": null, "Nested": {"x": [1]}, "List": [1, 2]}]`))
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		rec := got[0]
		if v, ok := rec["Id"].(json.Number); !ok || v.String() != "12" {
			t.Errorf("Id = %#v, want json.Number(12)", rec["Id"])
		}
		if v := rec["Name"]; v != "a\nb" {
			t.Errorf("Name = %#v, want unescaped string", v)
		}
		if v := rec["Ok"]; v != true {
			t.Errorf("Ok = %#v, want true", v)
		}
		if v, ok := rec["None"]; !ok || v != nil {
			t.Errorf("None = %#v, %t; want nil, true", v, ok)
		}
		if v, ok := rec["Nested"].(json.RawMessage); !ok || string(v) != `{"x": [1]}` {
			t.Errorf("Nested = %#v, want raw object", rec["Nested"])
		}
		if v, ok := rec["List"].(json.RawMessage); !ok || string(v) != `[1, 2]` {
			t.Errorf("List = %#v, want raw array", rec["List"])
		}
	})

	t.Run("invalid", func(t *testing.T) {
		tests := []struct {
			name string
			data string
		}{
			{"object", `{"Id": 1}`},
			{"truncated", `[{"Id": 1}`},
			{"garbage", `not json`},
			{"scalar element", `[1, 2]`},
			{"mixed elements", `[{"Id": 1}, "x"]`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := Decode([]byte(tt.data))
				if !errors.Is(err, ErrDecode) {
					t.Errorf("Decode() = %v, want %v", err, ErrDecode)
				}
				var de *DecodeError
				if !errors.As(err, &de) {
					t.Errorf("Decode() = %T, want *DecodeError", err)
				}
			})
		}
	})
}

func TestDecodeFile(t *testing.T) {
	dir := t.TempDir()
	t.Run("missing", func(t *testing.T) {
		got, err := DecodeFile(filepath.Join(dir, "Missing.json"))
		if err != nil || got != nil {
			t.Errorf("DecodeFile() = %v, %v; want nil, nil", got, err)
		}
	})
	t.Run("corrupt", func(t *testing.T) {
		path := filepath.Join(dir, "Corrupt.json")
		if err := os.WriteFile(path, []byte("[{"), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := DecodeFile(path)
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("DecodeFile() = %v, want *DecodeError", err)
		}
		if de.Path != path {
			t.Errorf("Path = %q, want %q", de.Path, path)
		}
	})
}
