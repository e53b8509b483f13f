package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FetchTimeout bounds manifest downloads.
const FetchTimeout = 5 * time.Second

// Manifest lists the models an auditorium can load.
type Manifest struct {
	Version string          `yaml:"version"`
	Models  []ModelManifest `yaml:"models"`
}

// ModelManifest describes one model: its URL, skeleton bones and clips.
type ModelManifest struct {
	ID    string   `yaml:"id"`
	URL   string   `yaml:"url"`
	Bones []string `yaml:"bones"`
	Clips []Clip   `yaml:"clips"`
}

// ParseManifest decodes a YAML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	seen := make(map[string]bool, len(m.Models))
	for _, mm := range m.Models {
		if mm.ID == "" {
			return nil, fmt.Errorf("parse manifest: model without id")
		}
		if seen[mm.ID] {
			return nil, fmt.Errorf("parse manifest: duplicate model %q", mm.ID)
		}
		seen[mm.ID] = true
	}
	return &m, nil
}

// LoadManifest reads a manifest from a local path or an http(s) URL.
func LoadManifest(ctx context.Context, src string) (*Manifest, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return fetchManifest(ctx, src)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

func fetchManifest(ctx context.Context, url string) (*Manifest, error) {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch manifest: %s returned %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	return ParseManifest(data)
}

// Marshal encodes the manifest as YAML.
func (m *Manifest) Marshal() ([]byte, error) {
	return yaml.Marshal(m)
}

// ManifestLoader builds models from manifest entries.
type ManifestLoader struct {
	models map[string]ModelManifest
}

// NewManifestLoader indexes the manifest by model id.
func NewManifestLoader(m *Manifest) *ManifestLoader {
	l := &ManifestLoader{models: make(map[string]ModelManifest, len(m.Models))}
	for _, mm := range m.Models {
		l.models[mm.ID] = mm
	}
	return l
}

// Load returns a freshly built model for id.
func (l *ManifestLoader) Load(ctx context.Context, id string) (*Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mm, ok := l.models[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, id)
	}

	root := &Node{Name: id, Scale: [3]float64{1, 1, 1}}
	for _, bone := range mm.Bones {
		root.Children = append(root.Children, &Node{Name: bone, Scale: [3]float64{1, 1, 1}})
	}
	clips := make([]Clip, len(mm.Clips))
	copy(clips, mm.Clips)

	return &Model{ID: id, URL: mm.URL, Root: root, Clips: clips}, nil
}

// DefaultManifest describes the bundled avatars.
func DefaultManifest() *Manifest {
	bones := []string{"Hips", "Spine", "Neck", "Head", "LeftArm", "RightArm", "LeftLeg", "RightLeg"}
	model := func(id string, clips ...Clip) ModelManifest {
		return ModelManifest{ID: id, URL: "/" + id, Bones: bones, Clips: clips}
	}
	return &Manifest{
		Version: "1",
		Models: []ModelManifest{
			model("woman.glb", Clip{"Debout", 3.2}, Clip{"Sitting", 4.0}),
			model("manTest.glb", Clip{"Debout", 3.0}, Clip{"Sit_Idle", 4.5}),
			model("Stanley.glb", Clip{"Idle", 2.0}, Clip{"SittingIdle", 5.0}),
			model("Belly.glb", Clip{"Sitting", 3.6}),
			model("Louise.glb", Clip{"Wave", 1.5}, Clip{"SitClap", 2.2}),
			model("clea.glb", Clip{"Walk", 1.1}, Clip{"Idle", 2.0}),
			model("Lucas.glb"),
		},
	}
}
