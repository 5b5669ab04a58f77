package commands

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/extbridge/internal/contextkey"
)

func menuCommands(items []MenuItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Command
	}
	return out
}

func TestMenuItemsOrderAndFilter(t *testing.T) {
	r := NewMenuRegistry()
	add := func(item MenuItem) {
		t.Helper()
		if _, err := r.AppendMenuItem(MenuSCMTitle, item); err != nil {
			t.Fatalf("AppendMenuItem(%s): %v", item.Command, err)
		}
	}
	add(MenuItem{Command: "git.fetch", Title: "Fetch", Group: "2_sync", Order: 2})
	add(MenuItem{Command: "git.pull", Title: "Pull", Group: "2_sync", Order: 1})
	add(MenuItem{Command: "git.refresh", Title: "Refresh", Group: "navigation"})
	add(MenuItem{Command: "git.commit", Title: "Commit", Group: "1_commit", When: "scmProvider == git"})
	add(MenuItem{Command: "git.stash", Title: "Stash"})
	add(MenuItem{Command: "git.push", Title: "Push", Group: "2_sync", Order: 2})

	tests := []struct {
		name string
		ctx  contextkey.Context
		want []string
	}{
		{
			name: "git provider",
			ctx:  contextkey.Map{"scmProvider": "git"},
			want: []string{"git.refresh", "git.commit", "git.pull", "git.fetch", "git.push", "git.stash"},
		},
		{
			name: "other provider",
			ctx:  contextkey.Map{"scmProvider": "hg"},
			want: []string{"git.refresh", "git.pull", "git.fetch", "git.push", "git.stash"},
		},
		{
			name: "no context",
			ctx:  nil,
			want: []string{"git.refresh", "git.commit", "git.pull", "git.fetch", "git.push", "git.stash"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := menuCommands(r.MenuItems(MenuSCMTitle, tt.ctx))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("MenuItems mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAppendMenuItemRejectsBadWhen(t *testing.T) {
	r := NewMenuRegistry()
	_, err := r.AppendMenuItem(MenuEditorTitle, MenuItem{Command: "x", When: "a &&"})
	if !errors.Is(err, ErrInvalidMenuItem) || !errors.Is(err, contextkey.ErrSyntax) {
		t.Fatalf("error = %v, want ErrInvalidMenuItem wrapping ErrSyntax", err)
	}
	if _, err := r.AppendMenuItem(MenuEditorTitle, MenuItem{}); !errors.Is(err, ErrInvalidMenuItem) {
		t.Errorf("empty command error = %v", err)
	}
	if got := r.MenuItems(MenuEditorTitle, nil); len(got) != 0 {
		t.Errorf("rejected items visible: %v", got)
	}
}

func TestMenuItemDispose(t *testing.T) {
	r := NewMenuRegistry()
	var changes []MenuID
	r.OnDidChangeMenu(func(m MenuID) { changes = append(changes, m) })

	d, err := r.AppendMenuItem(MenuCommandPalette, MenuItem{Command: "a"})
	if err != nil {
		t.Fatal(err)
	}
	d.Dispose()
	if got := r.MenuItems(MenuCommandPalette, nil); len(got) != 0 {
		t.Errorf("items after dispose = %v", got)
	}
	if diff := cmp.Diff([]MenuID{MenuCommandPalette, MenuCommandPalette}, changes); diff != "" {
		t.Errorf("change events mismatch (-want +got):\n%s", diff)
	}
}
