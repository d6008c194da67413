// Package catalog loads the plan catalog from a YAML file and seeds it into storage.
package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"frontdesk/internal/domain/plan"
	"frontdesk/internal/domain/quota"

	"gopkg.in/yaml.v3"
)

// entry is one plan as written in the catalog file.
type entry struct {
	Name        string `yaml:"name"`
	Quota       string `yaml:"quota"`
	Duration    string `yaml:"duration"`
	Price       int    `yaml:"price"`
	Description string `yaml:"description"`
}

type file struct {
	Plans []entry `yaml:"plans"`
}

// LoadPlans reads and validates the catalog at path.
func LoadPlans(path string) ([]plan.Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a catalog document.
// POST: Every returned plan passes Validate and names are unique
func Parse(r io.Reader) ([]plan.Plan, error) {
	var doc file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	plans := make([]plan.Plan, 0, len(doc.Plans))
	seen := make(map[string]bool, len(doc.Plans))
	for i, e := range doc.Plans {
		q, err := quota.Parse(e.Quota)
		if err != nil {
			return nil, fmt.Errorf("plan %d (%q): %w", i, e.Name, err)
		}
		p := plan.Plan{
			Name:        strings.TrimSpace(e.Name),
			Quota:       q,
			Duration:    strings.ToLower(strings.TrimSpace(e.Duration)),
			Price:       e.Price,
			Description: strings.TrimSpace(e.Description),
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("plan %d (%q): %w", i, e.Name, err)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("plan %q defined twice", p.Name)
		}
		seen[p.Name] = true
		plans = append(plans, p)
	}
	return plans, nil
}

// Upserter is the storage the catalog is seeded into.
type Upserter interface {
	Upsert(ctx context.Context, p plan.Plan) error
}

// Seed writes every plan to store. Existing plans with the same name are replaced.
func Seed(ctx context.Context, store Upserter, plans []plan.Plan) error {
	for _, p := range plans {
		if err := store.Upsert(ctx, p); err != nil {
			return fmt.Errorf("seeding plan %q: %w", p.Name, err)
		}
	}
	slog.Info("catalog_event", "event", "plans_seeded", "count", len(plans))
	return nil
}
