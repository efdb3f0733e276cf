package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "snapshots/12345/page.html", "text/html", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://snapshots/12345/page.html" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'C'
	stored, ok := store.Get("snapshots/12345/page.html")
	if !ok || string(stored) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
	stored[0] = 'X'
	again, _ := store.Get("snapshots/12345/page.html")
	if string(again) != "content" {
		t.Fatalf("expected Get to return a copy, got %q", again)
	}
}

func TestBlobStoreKeysSorted(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for _, key := range []string{"b", "a", "c"} {
		if _, err := store.PutObject(context.Background(), key, "", bytes.NewReader(nil)); err != nil {
			t.Fatalf("PutObject(%s) error = %v", key, err)
		}
	}
	keys := store.Keys()
	if len(keys) != 3 || keys[0] != "a" || keys[2] != "c" {
		t.Fatalf("unexpected keys %v", keys)
	}
	if _, ok := store.Get("missing"); ok {
		t.Fatal("expected missing key to report false")
	}
}
