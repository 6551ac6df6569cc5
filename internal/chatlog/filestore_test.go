package chatlog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestFileStoreRoundTrip(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	entries := []Entry{
		{At: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC), Actor: ActorUser, Kind: KindText, Body: "hello\tworld\nsecond line"},
		{At: time.Date(2026, 3, 1, 12, 31, 0, 0, time.UTC), Actor: ActorOperator, Kind: KindText, Body: "reply"},
		{At: time.Date(2026, 3, 1, 12, 32, 0, 0, time.UTC), Actor: ActorUser, Kind: KindPhoto, Body: "42_a1b2c3.jpg"},
	}
	for _, e := range entries {
		if err := fs.Append(ctx, 42, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := fs.ReadAll(ctx, 42)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("ReadAll returned %d entries, want %d", len(got), len(entries))
	}
	for i, e := range entries {
		if !got[i].At.Equal(e.At) || got[i].Actor != e.Actor || got[i].Kind != e.Kind || got[i].Body != e.Body {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], e)
		}
	}

	users, err := fs.Users(ctx)
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	if len(users) != 1 || users[0] != 42 {
		t.Fatalf("Users = %v, want [42]", users)
	}

	if err := fs.Erase(ctx, 42); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	got, err = fs.ReadAll(ctx, 42)
	if err != nil {
		t.Fatalf("ReadAll after erase: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("ReadAll after erase returned %d entries", len(got))
	}
	if err := fs.Erase(ctx, 42); err != nil {
		t.Fatalf("Erase of missing log: %v", err)
	}
}

func TestFileStorePhotoNaming(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	ref, err := fs.Save(7, strings.NewReader("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(ref, "7_") || !strings.HasSuffix(ref, ".jpg") {
		t.Fatalf("ref = %q, want 7_<hex>.jpg", ref)
	}

	rc, err := fs.Open(ref)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	buf := make([]byte, 32)
	n, _ := rc.Read(buf)
	if string(buf[:n]) != "jpeg-bytes" {
		t.Fatalf("Open read %q", buf[:n])
	}

	if _, err := fs.Open("../escape.jpg"); err == nil {
		t.Fatal("Open accepted a path-traversal ref")
	}
}

type failStore struct {
	FileStore
	appendErr error
}

func (f *failStore) Append(ctx context.Context, userID int64, e Entry) error {
	return f.appendErr
}

func TestServiceKeepsCacheWhenStoreFails(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	svc := NewService(&failStore{FileStore: *fs, appendErr: errors.New("disk full")}, fs)
	ctx := context.Background()

	svc.Append(ctx, 9, ActorUser, "first")
	svc.Append(ctx, 9, ActorOperator, "second")

	hist := svc.History(9)
	if len(hist) != 2 {
		t.Fatalf("History returned %d entries, want 2", len(hist))
	}
	if hist[0].Body != "first" || hist[1].Body != "second" {
		t.Fatalf("History = %+v", hist)
	}
}

func TestServiceWarm(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	if err := fs.Append(ctx, 3, Entry{At: time.Now().UTC(), Actor: ActorUser, Kind: KindText, Body: "kept"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	svc := NewService(fs, fs)
	if err := svc.Warm(ctx); err != nil {
		t.Fatalf("Warm: %v", err)
	}
	hist := svc.History(3)
	if len(hist) != 1 || hist[0].Body != "kept" {
		t.Fatalf("History after warm = %+v", hist)
	}
}

func TestEntryRender(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	text := Entry{At: at, Actor: ActorUser, Kind: KindText, Body: "need two"}
	if got := text.Render(); got != "01.03.2026 12:30 | user: need two" {
		t.Fatalf("Render text = %q", got)
	}
	photo := Entry{At: at, Actor: ActorOperator, Kind: KindPhoto, Body: "9_ffffff.jpg"}
	if got := photo.Render(); got != "01.03.2026 12:30 | operator: [photo 9_ffffff.jpg]" {
		t.Fatalf("Render photo = %q", got)
	}
}
