package storage

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/carryo/job-intake/internal/core/domain"
)

//go:embed centers.yaml
var defaultCenters []byte

// YAMLCatalog is a fixed recycling centre list read from YAML.
type YAMLCatalog struct {
	centers []domain.RecyclingCenter
	byID    map[string]domain.RecyclingCenter
}

// LoadYAMLCatalog reads the catalogue at path, or the built-in list when
// path is empty.
func LoadYAMLCatalog(path string) (*YAMLCatalog, error) {
	data := defaultCenters
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalogue: %w", err)
		}
		data = b
	}
	return ParseYAMLCatalog(data)
}

func ParseYAMLCatalog(data []byte) (*YAMLCatalog, error) {
	var centers []domain.RecyclingCenter
	if err := yaml.Unmarshal(data, &centers); err != nil {
		return nil, fmt.Errorf("parse catalogue: %w", err)
	}

	byID := make(map[string]domain.RecyclingCenter, len(centers))
	for i, c := range centers {
		if c.ID == "" || c.Name == "" {
			return nil, fmt.Errorf("catalogue entry %d: id and name are required", i)
		}
		if _, dup := byID[c.ID]; dup {
			return nil, fmt.Errorf("catalogue entry %d: duplicate id %q", i, c.ID)
		}
		byID[c.ID] = c
	}
	sort.Slice(centers, func(i, j int) bool { return centers[i].Name < centers[j].Name })

	return &YAMLCatalog{centers: centers, byID: byID}, nil
}

func (c *YAMLCatalog) ListRecyclingCenters(ctx context.Context) ([]domain.RecyclingCenter, error) {
	return append([]domain.RecyclingCenter(nil), c.centers...), nil
}

func (c *YAMLCatalog) GetRecyclingCenter(ctx context.Context, id string) (*domain.RecyclingCenter, error) {
	center, ok := c.byID[id]
	if !ok {
		return nil, nil
	}
	return &center, nil
}
