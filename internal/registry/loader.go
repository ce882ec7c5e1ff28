package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"runnerd/internal/common/fsutil"
	"runnerd/pkg/types"
)

// DefaultExtensions are the weight formats the scanner recognizes.
var DefaultExtensions = []string{".pte", ".gguf"}

// Tokenizer file names, in lookup order, and the kind each implies.
var tokenizerFiles = []struct {
	name string
	kind types.TokenizerType
}{
	{"tokenizer.json", types.TokenizerHuggingFace},
	{"tokenizer.model", types.TokenizerSentencePiece},
}

// Scanner discovers packaged models in a directory.
type Scanner struct {
	exts []string
}

// NewScanner returns a scanner matching exts (case-insensitive, with dot).
// With no exts it uses DefaultExtensions.
func NewScanner(exts ...string) *Scanner {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	lower := make([]string, len(exts))
	for i, e := range exts {
		lower[i] = strings.ToLower(e)
	}
	return &Scanner{exts: lower}
}

// Scan lists weight files directly under dir. ID is the file name; the
// tokenizer is looked up first in a sibling directory named after the
// weights stem, then next to the weights. Results are sorted by ID.
func (s *Scanner) Scan(dir string) ([]types.Model, error) {
	abs, err := fsutil.ResolveDir(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !s.matches(ext) {
			continue
		}
		m := types.Model{ID: name, Path: filepath.Join(abs, name), Format: strings.TrimPrefix(ext, ".")}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		m.TokenizerPath, m.TokenizerType = findTokenizer(filepath.Join(abs, stem), abs)
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

func (s *Scanner) matches(ext string) bool {
	for _, e := range s.exts {
		if e == ext {
			return true
		}
	}
	return false
}

func findTokenizer(dirs ...string) (string, types.TokenizerType) {
	var candidates []string
	for _, d := range dirs {
		for _, tf := range tokenizerFiles {
			candidates = append(candidates, filepath.Join(d, tf.name))
		}
	}
	p, ok := fsutil.FirstFile(candidates...)
	if !ok {
		return "", ""
	}
	for _, tf := range tokenizerFiles {
		if filepath.Base(p) == tf.name {
			return p, tf.kind
		}
	}
	return p, types.TokenizerHuggingFace
}

// LoadDir scans dir with the default extensions.
func LoadDir(dir string) ([]types.Model, error) {
	return NewScanner().Scan(dir)
}

// Find returns the model with the given ID.
func Find(models []types.Model, id string) (types.Model, bool) {
	for _, m := range models {
		if m.ID == id {
			return m, true
		}
	}
	return types.Model{}, false
}

// ModelConfig converts a discovered model into a load request. It fails when
// no tokenizer was paired with the weights.
func ModelConfig(m types.Model) (types.ModelConfig, error) {
	if m.TokenizerPath == "" {
		return types.ModelConfig{}, fmt.Errorf("model %s: no tokenizer found", m.ID)
	}
	return types.ModelConfig{ModelPath: m.Path, TokenizerPath: m.TokenizerPath, TokenizerType: m.TokenizerType}, nil
}
