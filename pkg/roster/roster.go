// Package roster supplies the companies belonging to each tenant (origin).
package roster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/Sternrassler/eld-analysis/pkg/analysis"
	"gopkg.in/yaml.v3"
)

// ErrTenantNotFound is returned for a tenant the roster does not know.
// Retrying cannot fix it.
var ErrTenantNotFound = errors.New("tenant not found in roster")

// Roster looks up the companies of a tenant.
type Roster interface {
	Entities(ctx context.Context, tenant string) ([]analysis.Entity, error)
	Tenants(ctx context.Context) ([]string, error)
}

// Static is an in-memory roster.
type Static map[string][]analysis.Entity

// Entities returns a copy of tenant's companies in roster order.
func (s Static) Entities(_ context.Context, tenant string) ([]analysis.Entity, error) {
	entities, ok := s[tenant]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, tenant)
	}
	return append([]analysis.Entity(nil), entities...), nil
}

// Tenants returns the tenant names sorted alphabetically.
func (s Static) Tenants(context.Context) ([]string, error) {
	tenants := make([]string, 0, len(s))
	for t := range s {
		tenants = append(tenants, t)
	}
	sort.Strings(tenants)
	return tenants, nil
}

// file is the on-disk roster layout:
//
//	origins:
//	  east:
//	    - id: "1001"
//	      name: Acme Freight
type file struct {
	Origins map[string][]analysis.Entity `yaml:"origins"`
}

// LoadFile reads a YAML roster.
func LoadFile(path string) (Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML roster. Companies without an id are rejected.
func Parse(data []byte) (Static, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	if len(f.Origins) == 0 {
		return nil, fmt.Errorf("parse roster: no origins defined")
	}
	for tenant, entities := range f.Origins {
		for i, e := range entities {
			if e.ID == "" {
				return nil, fmt.Errorf("parse roster: %s entry %d has no id", tenant, i)
			}
		}
	}
	return Static(f.Origins), nil
}
