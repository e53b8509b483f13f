package assets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingLoader struct {
	inner Loader
	calls atomic.Int32
}

func (l *countingLoader) Load(ctx context.Context, id string) (*Model, error) {
	l.calls.Add(1)
	return l.inner.Load(ctx, id)
}

func TestManifestLoaderBuildsModel(t *testing.T) {
	l := NewManifestLoader(DefaultManifest())

	m, err := l.Load(context.Background(), "woman.glb")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Root == nil || m.Root.Count() < 2 {
		t.Fatalf("expected a root with bones, got %+v", m.Root)
	}
	if len(m.Clips) != 2 || m.Clips[1].Name != "Sitting" {
		t.Errorf("unexpected clips: %+v", m.Clips)
	}

	if _, err := l.Load(context.Background(), "missing.glb"); !errors.Is(err, ErrUnknownAsset) {
		t.Errorf("expected ErrUnknownAsset, got %v", err)
	}
}

func TestModelCloneIsIndependent(t *testing.T) {
	m, _ := NewManifestLoader(DefaultManifest()).Load(context.Background(), "Stanley.glb")
	c := m.Clone()

	c.Root.Children[0].Position[0] = 42
	c.Clips[0].Name = "changed"

	if m.Root.Children[0].Position[0] == 42 {
		t.Error("clone shares node state with the original")
	}
	if m.Clips[0].Name == "changed" {
		t.Error("clone shares the clip slice with the original")
	}
}

func TestCacheReturnsCopiesAndLoadsOnce(t *testing.T) {
	loader := &countingLoader{inner: NewManifestLoader(DefaultManifest())}
	cache := NewCache(loader, 4)

	var wg sync.WaitGroup
	models := make([]*Model, 8)
	for i := range models {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := cache.Load(context.Background(), "Belly.glb")
			if err != nil {
				t.Errorf("load %d: %v", i, err)
				return
			}
			models[i] = m
		}(i)
	}
	wg.Wait()

	if n := loader.calls.Load(); n < 1 || n > 8 {
		t.Fatalf("unexpected loader call count %d", n)
	}
	before := loader.calls.Load()
	if _, err := cache.Load(context.Background(), "Belly.glb"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loader.calls.Load() != before {
		t.Error("cached model should not hit the loader again")
	}

	for i := 1; i < len(models); i++ {
		if models[i] == nil || models[0] == nil {
			continue
		}
		if models[i].Root == models[0].Root {
			t.Fatal("cache handed out a shared node graph")
		}
	}
}

func TestCacheEvictsOldest(t *testing.T) {
	cache := NewCache(NewManifestLoader(DefaultManifest()), 2)
	ctx := context.Background()

	for _, id := range []string{"woman.glb", "manTest.glb", "Lucas.glb"} {
		if _, err := cache.Load(ctx, id); err != nil {
			t.Fatalf("load %s: %v", id, err)
		}
	}
	if cache.Size() != 2 {
		t.Errorf("expected 2 cached models, got %d", cache.Size())
	}
	if cache.get("woman.glb") != nil {
		t.Error("oldest model should have been evicted")
	}
}

func TestCacheStats(t *testing.T) {
	cache := NewCache(NewManifestLoader(DefaultManifest()), 4)
	ctx := context.Background()

	for _, id := range []string{"woman.glb", "woman.glb", "clea.glb", "woman.glb"} {
		if _, err := cache.Load(ctx, id); err != nil {
			t.Fatalf("load %s: %v", id, err)
		}
	}
	got := cache.Stats()
	if got.Hits != 2 || got.Misses != 2 || got.Size != 2 {
		t.Errorf("unexpected stats %+v", got)
	}
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	loader := &countingLoader{inner: NewManifestLoader(DefaultManifest())}
	cache := NewCache(loader, 4)
	now := time.Unix(0, 0)
	cache.now = func() time.Time { return now }

	cache.Load(context.Background(), "clea.glb")
	now = now.Add(ModelTTL + time.Second)
	cache.Load(context.Background(), "clea.glb")

	if loader.calls.Load() != 2 {
		t.Errorf("expected a reload after TTL, loader called %d times", loader.calls.Load())
	}
}

func TestCachePropagatesErrors(t *testing.T) {
	cache := NewCache(NewManifestLoader(DefaultManifest()), 4)
	if _, err := cache.Load(context.Background(), "nope.glb"); !errors.Is(err, ErrUnknownAsset) {
		t.Errorf("expected ErrUnknownAsset, got %v", err)
	}
	if cache.Size() != 0 {
		t.Error("failed loads must not be cached")
	}
}

func TestManifestRoundTripFromFile(t *testing.T) {
	data, err := DefaultManifest().Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m, err := LoadManifest(context.Background(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(m.Models) != len(DefaultManifest().Models) {
		t.Errorf("expected %d models, got %d", len(DefaultManifest().Models), len(m.Models))
	}
}

func TestParseManifestRejectsDuplicates(t *testing.T) {
	data := []byte("models:\n  - id: a.glb\n  - id: a.glb\n")
	if _, err := ParseManifest(data); err == nil {
		t.Fatal("expected duplicate id error")
	}
}
