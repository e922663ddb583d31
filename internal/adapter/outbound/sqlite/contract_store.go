package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/contract"
)

// ContractStore implements contract.ContractStore.
type ContractStore struct {
	db *sql.DB
}

// Get returns an offer by ID.
func (s *ContractStore) Get(ctx context.Context, id string) (*contract.Contract, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, title, consumer, start_date, end_date, rules FROM contracts WHERE id = ?`, id)
	c, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("contract", id)
	}
	if err != nil {
		return nil, persistErr("get contract", err)
	}
	return c, nil
}

// Create stores a new offer.
func (s *ContractStore) Create(ctx context.Context, c *contract.Contract) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	rules, err := marshalJSON(c.Rules)
	if err != nil {
		return persistErr("encode contract", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO contracts (id, title, consumer, start_date, end_date, rules) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Title, c.Consumer, formatTime(c.Start), formatTime(c.End), rules)
	if err != nil {
		return persistErr("create contract "+c.ID, err)
	}
	return nil
}

// Update replaces an offer.
func (s *ContractStore) Update(ctx context.Context, c *contract.Contract) error {
	rules, err := marshalJSON(c.Rules)
	if err != nil {
		return persistErr("encode contract", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE contracts SET title = ?, consumer = ?, start_date = ?, end_date = ?, rules = ? WHERE id = ?`,
		c.Title, c.Consumer, formatTime(c.Start), formatTime(c.End), rules, c.ID)
	if err != nil {
		return persistErr("update contract "+c.ID, err)
	}
	return requireRow(res, "contract", c.ID)
}

// Delete removes an offer.
func (s *ContractStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM contracts WHERE id = ?`, id); err != nil {
		return persistErr("delete contract", err)
	}
	return nil
}

// List returns all offers ordered by ID.
func (s *ContractStore) List(ctx context.Context) ([]contract.Contract, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, consumer, start_date, end_date, rules FROM contracts ORDER BY id`)
	if err != nil {
		return nil, persistErr("list contracts", err)
	}
	defer func() { _ = rows.Close() }()

	var out []contract.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, persistErr("scan contract", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list contracts", err)
	}
	return out, nil
}

// OffersForTarget returns the offers with a rule on target.
func (s *ContractStore) OffersForTarget(ctx context.Context, target string) ([]contract.Contract, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []contract.Contract
	for _, c := range all {
		if c.Targets(target) {
			out = append(out, c)
		}
	}
	return out, nil
}

func scanContract(row scanner) (*contract.Contract, error) {
	var c contract.Contract
	var start, end, rules string
	if err := row.Scan(&c.ID, &c.Title, &c.Consumer, &start, &end, &rules); err != nil {
		return nil, err
	}
	var err error
	if c.Start, err = parseTime(start); err != nil {
		return nil, fmt.Errorf("start_date: %w", err)
	}
	if c.End, err = parseTime(end); err != nil {
		return nil, fmt.Errorf("end_date: %w", err)
	}
	if err := json.Unmarshal([]byte(rules), &c.Rules); err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	return &c, nil
}

// ResourceStore implements contract.ResourceStore.
type ResourceStore struct {
	db *sql.DB
}

// Get returns a resource by ID.
func (s *ResourceStore) Get(ctx context.Context, id string) (*contract.Resource, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, title, contract_ids, artifact_ids FROM resources WHERE id = ?`, id)
	r, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("resource", id)
	}
	if err != nil {
		return nil, persistErr("get resource", err)
	}
	return r, nil
}

// Create stores a new resource.
func (s *ResourceStore) Create(ctx context.Context, r *contract.Resource) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	contracts, err := marshalJSON(r.ContractIDs)
	if err != nil {
		return persistErr("encode resource", err)
	}
	artifacts, err := marshalJSON(r.ArtifactIDs)
	if err != nil {
		return persistErr("encode resource", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO resources (id, title, contract_ids, artifact_ids) VALUES (?, ?, ?, ?)`,
		r.ID, r.Title, contracts, artifacts)
	if err != nil {
		return persistErr("create resource "+r.ID, err)
	}
	return nil
}

// Delete removes a resource.
func (s *ResourceStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id); err != nil {
		return persistErr("delete resource", err)
	}
	return nil
}

// List returns all resources ordered by ID.
func (s *ResourceStore) List(ctx context.Context) ([]contract.Resource, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, contract_ids, artifact_ids FROM resources ORDER BY id`)
	if err != nil {
		return nil, persistErr("list resources", err)
	}
	defer func() { _ = rows.Close() }()

	var out []contract.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, persistErr("scan resource", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list resources", err)
	}
	return out, nil
}

func scanResource(row scanner) (*contract.Resource, error) {
	var r contract.Resource
	var contracts, artifacts string
	if err := row.Scan(&r.ID, &r.Title, &contracts, &artifacts); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(contracts), &r.ContractIDs); err != nil {
		return nil, fmt.Errorf("contract_ids: %w", err)
	}
	if err := json.Unmarshal([]byte(artifacts), &r.ArtifactIDs); err != nil {
		return nil, fmt.Errorf("artifact_ids: %w", err)
	}
	return &r, nil
}

var (
	_ contract.ContractStore = (*ContractStore)(nil)
	_ contract.ResourceStore = (*ResourceStore)(nil)
)
