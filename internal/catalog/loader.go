package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

// Loaded is a validated descriptor and the directory its relative curve
// and matrix files are resolved against.
type Loaded struct {
	Descriptor *types.AcceleratorDescriptor
	Path       string
	Dir        string
}

type Loader struct {
	cache       sync.Map
	validator   *Validator
	searchPaths []string
}

func NewLoader(searchPaths []string) (*Loader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &Loader{
		validator:   validator,
		searchPaths: searchPaths,
	}, nil
}

var extensions = []string{"", ".yaml", ".yml", ".json"}

// Load finds name in the search paths (an absolute path is used as is),
// validates and decodes it. Results are cached by name.
func (l *Loader) Load(name string) (*Loaded, error) {
	if cached, ok := l.cache.Load(name); ok {
		return cached.(*Loaded), nil
	}

	dirs := l.searchPaths
	if filepath.IsAbs(name) || len(dirs) == 0 {
		dirs = []string{""}
	}

	var data []byte
	var foundPath string
search:
	for _, dir := range dirs {
		for _, ext := range extensions {
			fullPath := filepath.Join(dir, name+ext)
			b, err := os.ReadFile(fullPath)
			if err == nil {
				data, foundPath = b, fullPath
				break search
			}
		}
	}

	if data == nil {
		return nil, fmt.Errorf("descriptor not found: %s (searched in: %v)", name, l.searchPaths)
	}

	loaded, err := l.decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", foundPath, err)
	}
	loaded.Path = foundPath
	loaded.Dir = filepath.Dir(foundPath)

	l.cache.Store(name, loaded)

	return loaded, nil
}

func (l *Loader) decode(data []byte) (*Loaded, error) {
	canonical, err := l.validator.Validate(data)
	if err != nil {
		return nil, err
	}

	var desc types.AcceleratorDescriptor
	if err := json.Unmarshal(canonical, &desc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal descriptor: %w", err)
	}

	return &Loaded{Descriptor: &desc}, nil
}

func (l *Loader) ClearCache() {
	l.cache.Range(func(key, value interface{}) bool {
		l.cache.Delete(key)
		return true
	})
}
