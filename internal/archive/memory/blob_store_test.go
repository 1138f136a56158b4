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
	uri, err := store.PutObject(context.Background(), "patron/rec.json", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://patron/rec.json" {
		t.Fatalf("unexpected uri %s", uri)
	}
	stored, ok := store.Object("patron/rec.json")
	if !ok {
		t.Fatal("expected blob to be stored")
	}
	stored[0] = 'C'
	again, _ := store.Object("patron/rec.json")
	if string(again) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", again)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one blob, got %d", store.Len())
	}
}
