package uri

import (
	"encoding/json"
	"testing"
)

func TestReviveDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   Components
		want Components
	}{
		{
			name: "missing scheme",
			in:   Components{Path: "/a/b"},
			want: Components{Scheme: "file", Path: "/a/b"},
		},
		{
			name: "authority makes path absolute",
			in:   Components{Scheme: "vscode-remote", Authority: "host", Path: "x"},
			want: Components{Scheme: "vscode-remote", Authority: "host", Path: "/x"},
		},
		{
			name: "file with empty path",
			in:   Components{Scheme: "file"},
			want: Components{Scheme: "file", Path: "/"},
		},
		{
			name: "query kept",
			in:   Components{Scheme: "walkthrough", Path: "/x", Query: `{"moduleId":"a"}`},
			want: Components{Scheme: "walkthrough", Path: "/x", Query: `{"moduleId":"a"}`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Revive(tt.in).Components()
			if got != tt.want {
				t.Errorf("Revive(%+v) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestReviveOptionalNil(t *testing.T) {
	if ReviveOptional(nil) != nil {
		t.Error("expected nil for nil components")
	}
}

func TestParseAndString(t *testing.T) {
	u, err := Parse("file:///home/user/project/main.go")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if u.Scheme() != "file" || u.Path() != "/home/user/project/main.go" {
		t.Errorf("unexpected uri %+v", u.Components())
	}
	if got := u.String(); got != "file:///home/user/project/main.go" {
		t.Errorf("String() = %q", got)
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
	if _, err := Parse("no-scheme/path"); err == nil {
		t.Error("expected error for missing scheme")
	}
}

func TestComponentsJSONRoundTrip(t *testing.T) {
	u := MustParse("git:/repo/file.txt?ref=HEAD")
	data, err := json.Marshal(u.Components())
	if err != nil {
		t.Fatal(err)
	}
	var c Components
	if err := json.Unmarshal(data, &c); err != nil {
		t.Fatal(err)
	}
	if Revive(c) != u {
		t.Errorf("revived %+v, want %+v", Revive(c).Components(), u.Components())
	}
}

func TestRelativePath(t *testing.T) {
	root := MustParse("file:///repo")
	tests := []struct {
		target string
		want   string
		ok     bool
	}{
		{"file:///repo/a/b.go", "a/b.go", true},
		{"file:///repo", "", true},
		{"file:///repository/a.go", "", false},
		{"git:/repo/a.go", "", false},
	}
	for _, tt := range tests {
		got, ok := RelativePath(root, MustParse(tt.target))
		if got != tt.want || ok != tt.ok {
			t.Errorf("RelativePath(%s) = %q, %v; want %q, %v", tt.target, got, ok, tt.want, tt.ok)
		}
	}
}

func TestJoin(t *testing.T) {
	u := MustParse("file:///repo").Join("a", "b.go")
	if u.Path() != "/repo/a/b.go" {
		t.Errorf("Join path = %q", u.Path())
	}
}
