package templates

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

const thankYou = `{"name":"Thank You","category":"Thanks","pages":[{"header":"Front","image":"front.png","text":"","footer":""}]}`

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "thanks.json"), thankYou)
	writeFile(t, filepath.Join(dir, "broken.json"), `{"name":`)
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	r := NewRegistry(NewMemoryStore())
	n, err := r.LoadDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if n != 1 {
		t.Errorf("loaded: got %d, want 1", n)
	}
	got, err := r.Get(context.Background(), "thanks")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "Thank You" || got.Category != "Thanks" {
		t.Errorf("template: got %+v", got)
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thanks.json")
	writeFile(t, path, thankYou)

	ctx := context.Background()
	r := NewRegistry(NewMemoryStore())
	w, err := r.Watch(ctx, dir, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer w.Close()

	if _, err := r.Get(ctx, "thanks"); err != nil {
		t.Fatalf("initial load missing: %v", err)
	}

	// Modify.
	writeFile(t, path, `{"name":"Many Thanks","category":"Thanks","pages":[{"image":"a.png"}]}`)
	eventually(t, "modified template", func() bool {
		got, err := r.Get(ctx, "thanks")
		return err == nil && got.Name == "Many Thanks"
	})

	// Create.
	writeFile(t, filepath.Join(dir, "xmas.json"), `{"id":"xmas-2026","name":"Snow","pages":[{"image":"s.png"}]}`)
	eventually(t, "new template", func() bool {
		_, err := r.Get(ctx, "xmas-2026")
		return err == nil
	})

	// Remove.
	if err := os.Remove(filepath.Join(dir, "xmas.json")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	eventually(t, "removed template", func() bool {
		_, err := r.Get(ctx, "xmas-2026")
		return errors.Is(err, ErrNotFound)
	})
}

func TestWatch_MissingDir(t *testing.T) {
	r := NewRegistry(NewMemoryStore())
	if _, err := r.Watch(context.Background(), filepath.Join(t.TempDir(), "nope"), 0); err == nil {
		t.Error("expected error for a missing directory")
	}
}
