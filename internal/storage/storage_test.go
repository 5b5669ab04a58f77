package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "extbridge.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetPutDelete(t *testing.T) {
	s := openTemp(t)

	if _, err := s.Get(BucketApplication, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing error = %v, want ErrNotFound", err)
	}
	if err := s.Put(BucketApplication, "k", []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(BucketApplication, "k")
	if err != nil || string(got) != "v" {
		t.Errorf("Get = %q, %v", got, err)
	}
	if _, err := s.Get(BucketWorkspace, "k"); !errors.Is(err, ErrNotFound) {
		t.Error("buckets are not isolated")
	}
	if err := s.Delete(BucketApplication, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(BucketApplication, "k"); err != nil {
		t.Errorf("Delete absent: %v", err)
	}
	if err := s.Put("nope", "k", nil); !errors.Is(err, ErrUnknownBucket) {
		t.Errorf("unknown bucket error = %v", err)
	}
}

func TestJSONAndPrefixes(t *testing.T) {
	s := openTemp(t)

	type progress struct {
		Done []string `json:"done"`
	}
	in := progress{Done: []string{"a", "b"}}
	if err := s.PutJSON(BucketApplication, "walkthrough/go/setup", in); err != nil {
		t.Fatal(err)
	}
	s.Put(BucketApplication, "walkthrough/go/run", []byte("{}"))
	s.Put(BucketApplication, "walkthrough/rust/setup", []byte("{}"))
	s.Put(BucketApplication, "other", []byte("{}"))

	var out progress
	if err := s.GetJSON(BucketApplication, "walkthrough/go/setup", &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("GetJSON mismatch (-want +got):\n%s", diff)
	}

	keys, err := s.Keys(BucketApplication, "walkthrough/go/")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"walkthrough/go/run", "walkthrough/go/setup"}, keys); diff != "" {
		t.Errorf("Keys mismatch (-want +got):\n%s", diff)
	}

	n, err := s.DeletePrefix(BucketApplication, "walkthrough/")
	if err != nil || n != 3 {
		t.Errorf("DeletePrefix = %d, %v; want 3", n, err)
	}
	keys, _ = s.Keys(BucketApplication, "")
	if diff := cmp.Diff([]string{"other"}, keys); diff != "" {
		t.Errorf("remaining keys mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendIterateTruncate(t *testing.T) {
	s := openTemp(t)
	for _, v := range []string{"a", "b", "c", "d"} {
		if _, err := s.Append(BucketTelemetry, []byte(v)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	collect := func(from uint64) []string {
		var out []string
		err := s.Iterate(BucketTelemetry, from, func(_ uint64, v []byte) error {
			out = append(out, string(v))
			return nil
		})
		if err != nil {
			t.Fatalf("Iterate: %v", err)
		}
		return out
	}

	if diff := cmp.Diff([]string{"a", "b", "c", "d"}, collect(0)); diff != "" {
		t.Errorf("Iterate(0) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"c", "d"}, collect(3)); diff != "" {
		t.Errorf("Iterate(3) mismatch (-want +got):\n%s", diff)
	}

	if err := s.Truncate(BucketTelemetry, 3); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"c", "d"}, collect(0)); diff != "" {
		t.Errorf("after Truncate mismatch (-want +got):\n%s", diff)
	}

	stop := errors.New("stop")
	var seen int
	err := s.Iterate(BucketTelemetry, 0, func(uint64, []byte) error {
		seen++
		return stop
	})
	if !errors.Is(err, stop) || seen != 1 {
		t.Errorf("Iterate stop = %v after %d, want stop after 1", err, seen)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Put(BucketWorkspace, "k", []byte("v"))
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if got, err := s.Get(BucketWorkspace, "k"); err != nil || string(got) != "v" {
		t.Errorf("after reopen Get = %q, %v", got, err)
	}
}
