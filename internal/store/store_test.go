package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rubiojr/lunarvox/internal/blob"
	"github.com/rubiojr/lunarvox/internal/chat"
)

func stores(t *testing.T) map[string]chat.Store {
	t.Helper()
	db, err := NewSQLite(filepath.Join(t.TempDir(), "lunarvox.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return map[string]chat.Store{
		"memory": NewMemory(),
		"sqlite": db,
	}
}

func message(id, thread string, at time.Time) *chat.Message {
	return &chat.Message{
		ID:              id,
		Thread:          thread,
		Ref:             blob.Ref("blob:" + id),
		DurationSeconds: 3,
		MIMEType:        "audio/wav",
		Size:            4,
		Audio:           []byte("RIFF"),
		SentAt:          at,
	}
}

func TestSaveAndGet(t *testing.T) {
	ctx := context.Background()
	at := time.UnixMilli(1_700_000_000_000)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			m := message("a", "general", at)
			m.Transcript = "hello"
			if err := s.Save(ctx, m); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			got, err := s.Get(ctx, "a")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got.Thread != "general" || got.DurationSeconds != 3 || got.Transcript != "hello" {
				t.Errorf("Unexpected message %+v", got)
			}
			if string(got.Audio) != "RIFF" {
				t.Errorf("Expected audio preserved, got %q", got.Audio)
			}
			if !got.SentAt.Equal(at) {
				t.Errorf("Expected sent at %v, got %v", at, got.SentAt)
			}
			if got.PostID != "" {
				t.Errorf("Expected empty post id, got %q", got.PostID)
			}

			if _, err := s.Get(ctx, "missing"); !errors.Is(err, chat.ErrNotFound) {
				t.Errorf("Expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestListNewestOldestFirst(t *testing.T) {
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for i, id := range []string{"m1", "m2", "m3", "m4"} {
				if err := s.Save(ctx, message(id, "general", base.Add(time.Duration(i)*time.Second))); err != nil {
					t.Fatalf("Save failed: %v", err)
				}
			}
			if err := s.Save(ctx, message("other", "random", base)); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			all, err := s.List(ctx, "general", 0)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(all) != 4 || all[0].ID != "m1" || all[3].ID != "m4" {
				t.Errorf("Unexpected full listing %v", ids(all))
			}

			last, err := s.List(ctx, "general", 2)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(last) != 2 || last[0].ID != "m3" || last[1].ID != "m4" {
				t.Errorf("Expected [m3 m4], got %v", ids(last))
			}
		})
	}
}

func TestSaveUpdatesAnnotations(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			m := message("a", "general", time.UnixMilli(1))
			if err := s.Save(ctx, m); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			m.PostID = "post-1"
			m.Translation = "hola"
			if err := s.Save(ctx, m); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			got, err := s.Get(ctx, "a")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got.PostID != "post-1" || got.Translation != "hola" {
				t.Errorf("Expected annotations updated, got %+v", got)
			}
		})
	}
}

func ids(msgs []*chat.Message) []string {
	var out []string
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}
