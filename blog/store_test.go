package blog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/donghwi-dev/portfolio-agent/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := db.DefaultConfig(":memory:")
	cfg.SQLite.WAL = false
	gdb, err := db.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := NewStore(gdb)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	s.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "  첫 글  ", "본문입니다", []string{"go", " ", "web"}, "secret")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Title != "첫 글" {
		t.Fatalf("title not trimmed: %q", created.Title)
	}
	if len(created.Tags) != 2 || created.Tags[0] != "go" || created.Tags[1] != "web" {
		t.Fatalf("unexpected tags: %v", created.Tags)
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != "본문입니다" {
		t.Fatalf("unexpected content %q", got.Content)
	}
}

func TestCreate_RequiresPassword(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create(context.Background(), "title", "body", nil, "   "); !errors.Is(err, ErrPasswordRequired) {
		t.Fatalf("expected ErrPasswordRequired, got %v", err)
	}
}

func TestList_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, title := range []string{"old", "middle", "new"} {
		if _, err := s.Create(ctx, title, "", nil, "pw"); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
	}
	posts, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(posts) != 3 || posts[0].Title != "new" || posts[2].Title != "old" {
		t.Fatalf("unexpected order: %+v", posts)
	}
}

func TestUpdate_PasswordVerification(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	post, err := s.Create(ctx, "title", "v1", []string{"a"}, "secret")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := s.Update(ctx, post.ID, "title", "v2", nil, "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
	if _, err := s.Update(ctx, post.ID, "title", "v2", nil, ""); !errors.Is(err, ErrPasswordRequired) {
		t.Fatalf("expected ErrPasswordRequired, got %v", err)
	}

	updated, err := s.Update(ctx, post.ID, "새 제목", "v2", []string{"b"}, "secret")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "새 제목" || updated.Content != "v2" {
		t.Fatalf("unexpected post after update: %+v", updated)
	}
	if len(updated.Tags) != 1 || updated.Tags[0] != "b" {
		t.Fatalf("tags not replaced: %v", updated.Tags)
	}
	if !updated.UpdatedAt.After(post.UpdatedAt) {
		t.Fatal("UpdatedAt should advance")
	}
}

func TestUpdate_NilTagsKept(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	post, err := s.Create(ctx, "title", "v1", []string{"keep"}, "pw")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	updated, err := s.Update(ctx, post.ID, "", "v2", nil, "pw")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "title" {
		t.Fatalf("blank title should keep existing, got %q", updated.Title)
	}
	if len(updated.Tags) != 1 || updated.Tags[0] != "keep" {
		t.Fatalf("nil tags should keep existing, got %v", updated.Tags)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	post, err := s.Create(ctx, "title", "body", nil, "secret")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.Delete(ctx, post.ID, "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
	if err := s.Delete(ctx, post.ID, "secret"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, post.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestGet_Unknown(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
