// Package catalog loads the offers, artifacts, and resources a provider
// publishes from a YAML seed file.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/contract"
	"github.com/Sentinel-Gate/Contractgate/internal/domain/usage"
	"github.com/Sentinel-Gate/Contractgate/internal/port/outbound"
)

// ArtifactSeed is an artifact with an optional inline payload.
type ArtifactSeed struct {
	contract.Artifact `yaml:",inline"`
	Data              string `yaml:"data,omitempty"`
}

// Seed is the content of a seed file.
type Seed struct {
	Contracts []contract.Contract `yaml:"contracts"`
	Artifacts []ArtifactSeed      `yaml:"artifacts"`
	Resources []contract.Resource `yaml:"resources"`
}

// Stores are the destinations of a seed.
type Stores struct {
	Contracts contract.ContractStore
	Artifacts contract.ArtifactStore
	Resources contract.ResourceStore
	Data      outbound.ArtifactDataSource
}

// Load reads and validates a seed file.
func Load(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates seed YAML. Rules without a kind are
// permissions and their duties are duties.
func Parse(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}

	contracts := make(map[string]bool, len(s.Contracts))
	for i := range s.Contracts {
		c := &s.Contracts[i]
		if c.ID == "" {
			return nil, fmt.Errorf("contract %d has no id", i)
		}
		contracts[c.ID] = true
		for j := range c.Rules {
			if c.Rules[j].Target == "" {
				return nil, fmt.Errorf("contract %s rule %d: %w", c.ID, j, contract.ErrMissingTarget)
			}
			defaultKinds(&c.Rules[j], usage.KindPermission)
		}
	}
	artifacts := make(map[string]bool, len(s.Artifacts))
	for i, a := range s.Artifacts {
		if a.ID == "" {
			return nil, fmt.Errorf("artifact %d has no id", i)
		}
		artifacts[a.ID] = true
	}
	for _, r := range s.Resources {
		for _, id := range r.ContractIDs {
			if !contracts[id] {
				return nil, fmt.Errorf("resource %s references unknown contract %s", r.ID, id)
			}
		}
		for _, id := range r.ArtifactIDs {
			if !artifacts[id] {
				return nil, fmt.Errorf("resource %s references unknown artifact %s", r.ID, id)
			}
		}
	}
	return &s, nil
}

func defaultKinds(r *usage.Rule, kind usage.RuleKind) {
	if r.Kind == "" {
		r.Kind = kind
	}
	for i := range r.PreDuties {
		defaultKinds(&r.PreDuties[i], usage.KindDuty)
	}
	for i := range r.PostDuties {
		defaultKinds(&r.PostDuties[i], usage.KindDuty)
	}
}

// Apply writes the seed into the stores. Entries whose id already exists
// are left untouched, so applying a seed twice is harmless.
func Apply(ctx context.Context, s *Seed, st Stores, logger *slog.Logger) error {
	created := 0
	for i := range s.Contracts {
		c := s.Contracts[i].Clone()
		ok, err := createIfMissing(func() error { _, err := st.Contracts.Get(ctx, c.ID); return err },
			func() error { return st.Contracts.Create(ctx, &c) })
		if err != nil {
			return fmt.Errorf("seed contract %s: %w", c.ID, err)
		}
		if ok {
			created++
		}
	}
	for _, seed := range s.Artifacts {
		a := seed.Artifact
		ok, err := createIfMissing(func() error { _, err := st.Artifacts.Get(ctx, a.ID); return err },
			func() error { return st.Artifacts.Create(ctx, &a) })
		if err != nil {
			return fmt.Errorf("seed artifact %s: %w", a.ID, err)
		}
		if ok {
			created++
			if seed.Data != "" && st.Data != nil {
				if err := st.Data.SetData(ctx, a.ID, []byte(seed.Data)); err != nil {
					return fmt.Errorf("seed artifact %s data: %w", a.ID, err)
				}
			}
		}
	}
	for _, r := range s.Resources {
		r := r.Clone()
		ok, err := createIfMissing(func() error { _, err := st.Resources.Get(ctx, r.ID); return err },
			func() error { return st.Resources.Create(ctx, &r) })
		if err != nil {
			return fmt.Errorf("seed resource %s: %w", r.ID, err)
		}
		if ok {
			created++
		}
	}
	logger.Info("catalog seeded",
		"contracts", len(s.Contracts),
		"artifacts", len(s.Artifacts),
		"resources", len(s.Resources),
		"created", created,
	)
	return nil
}

func createIfMissing(get, create func() error) (bool, error) {
	err := get()
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, contract.ErrResourceNotFound) {
		return false, err
	}
	return true, create()
}
