package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/crypticpy/Grantscope-2-sub004/domain"
)

type seedFile struct {
	Items []seedItem `yaml:"items"`
}

type seedItem struct {
	ID        string `yaml:"id"`
	Title     string `yaml:"title"`
	Notes     string `yaml:"notes"`
	Kind      string `yaml:"kind"`
	Container string `yaml:"container"`
	Position  int    `yaml:"position"`
}

// loadSeed reads the items of a seed file. Items without a container land in
// the inbox.
func loadSeed(path string) ([]domain.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	items := make([]domain.Item, 0, len(f.Items))
	seen := make(map[string]bool, len(f.Items))
	for i, it := range f.Items {
		if it.ID == "" {
			return nil, fmt.Errorf("seed %s: item %d has no id", path, i)
		}
		if seen[it.ID] {
			return nil, fmt.Errorf("seed %s: duplicate item id %s", path, it.ID)
		}
		seen[it.ID] = true
		container := it.Container
		if container == "" {
			container = domain.ContainerInbox
		}
		items = append(items, domain.Item{
			ID:          it.ID,
			Title:       it.Title,
			Notes:       it.Notes,
			Kind:        it.Kind,
			ContainerID: container,
			Position:    it.Position,
		})
	}
	return items, nil
}
