// Package demo serves the preconfigured shop directory used in demo mode,
// so a demo client can build sessions without hunting for real shops.
package demo

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"garagecall_backend/internal/sessions/domain"
	"garagecall_backend/platform/phone"
)

type shopEntry struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Phone   string `yaml:"phone"`
	Address string `yaml:"address"`
}

type directoryFile struct {
	Shops []shopEntry `yaml:"shops"`
}

// Directory is an immutable, file-backed list of demo shops.
type Directory struct {
	shops []domain.Shop
}

// LoadDirectory reads the demo shop YAML file. Phone numbers are normalized
// to E.164 at load time; entries without a name or a valid phone are
// rejected so a bad file fails at startup instead of at dispatch.
func LoadDirectory(path string) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read demo shops file: %w", err)
	}

	var file directoryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse demo shops file: %w", err)
	}
	if len(file.Shops) == 0 {
		return nil, fmt.Errorf("demo shops file %s contains no shops", path)
	}

	shops := make([]domain.Shop, 0, len(file.Shops))
	seen := make(map[string]bool, len(file.Shops))
	for i, entry := range file.Shops {
		if entry.Name == "" {
			return nil, fmt.Errorf("demo shop %d has no name", i+1)
		}
		if !phone.IsValid(entry.Phone) {
			return nil, fmt.Errorf("demo shop %q has invalid phone %q", entry.Name, entry.Phone)
		}
		id := entry.ID
		if id == "" {
			id = fmt.Sprintf("demo-shop-%d", i+1)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate demo shop id %q", id)
		}
		seen[id] = true
		shops = append(shops, domain.Shop{
			ID:      id,
			Name:    entry.Name,
			Phone:   phone.NormalizeE164(entry.Phone),
			Address: entry.Address,
		})
	}

	return &Directory{shops: shops}, nil
}

// Shops returns a copy of the directory entries.
func (d *Directory) Shops() []domain.Shop {
	out := make([]domain.Shop, len(d.shops))
	copy(out, d.shops)
	return out
}
