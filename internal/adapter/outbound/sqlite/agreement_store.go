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

const agreementColumns = `id, remote_id, consumer, provider, contract_date, start_date, end_date, rules, confirmed, serialized_value, value_digest`

// AgreementStore implements contract.AgreementStore.
type AgreementStore struct {
	db *sql.DB
}

// Get returns an agreement by ID.
func (s *AgreementStore) Get(ctx context.Context, id string) (*contract.ContractAgreement, error) {
	return getAgreement(ctx, s.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getAgreement(ctx context.Context, q queryRower, id string) (*contract.ContractAgreement, error) {
	row := q.QueryRowContext(ctx, `SELECT `+agreementColumns+` FROM agreements WHERE id = ?`, id)
	a, err := scanAgreement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("agreement", id)
	}
	if err != nil {
		return nil, persistErr("get agreement", err)
	}
	return a, nil
}

// Create stores a new agreement, assigning an ID when it has none.
func (s *AgreementStore) Create(ctx context.Context, a *contract.ContractAgreement) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	args, err := agreementArgs(a)
	if err != nil {
		return persistErr("encode agreement", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO agreements (`+agreementColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
		return persistErr("create agreement "+a.ID, err)
	}
	return nil
}

// Update replaces an agreement. A confirmed agreement keeps its rules and
// serialized value.
func (s *AgreementStore) Update(ctx context.Context, a *contract.ContractAgreement) error {
	return inTx(ctx, s.db, func(tx *sql.Tx) error {
		stored, err := getAgreement(ctx, tx, a.ID)
		if err != nil {
			return err
		}
		if err := contract.CheckUpdate(stored, a); err != nil {
			return err
		}
		args, err := agreementArgs(a)
		if err != nil {
			return persistErr("encode agreement", err)
		}
		_, err = tx.ExecContext(ctx, `UPDATE agreements SET
			remote_id = ?, consumer = ?, provider = ?, contract_date = ?, start_date = ?, end_date = ?,
			rules = ?, confirmed = ?, serialized_value = ?, value_digest = ?
			WHERE id = ?`, append(args[1:], a.ID)...)
		if err != nil {
			return persistErr("update agreement "+a.ID, err)
		}
		return nil
	})
}

// Delete removes an agreement and its artifact links.
func (s *AgreementStore) Delete(ctx context.Context, id string) error {
	return inTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM agreement_artifacts WHERE agreement_id = ?`, id); err != nil {
			return persistErr("delete agreement links", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM agreements WHERE id = ?`, id); err != nil {
			return persistErr("delete agreement", err)
		}
		return nil
	})
}

// List returns all agreements ordered by contract date, then ID.
func (s *AgreementStore) List(ctx context.Context) ([]contract.ContractAgreement, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+agreementColumns+` FROM agreements ORDER BY contract_date, id`)
	if err != nil {
		return nil, persistErr("list agreements", err)
	}
	defer func() { _ = rows.Close() }()

	var out []contract.ContractAgreement
	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, persistErr("scan agreement", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list agreements", err)
	}
	return out, nil
}

func agreementArgs(a *contract.ContractAgreement) ([]any, error) {
	rules, err := marshalJSON(a.RuleSet)
	if err != nil {
		return nil, err
	}
	return []any{
		a.ID, a.RemoteID, a.Consumer, a.Provider,
		formatTime(a.ContractDate), formatTime(a.Start), formatTime(a.End),
		rules, a.Confirmed, a.SerializedValue, int64(a.ValueDigest),
	}, nil
}

func scanAgreement(row scanner) (*contract.ContractAgreement, error) {
	var a contract.ContractAgreement
	var contractDate, start, end, rules string
	var digest int64
	if err := row.Scan(&a.ID, &a.RemoteID, &a.Consumer, &a.Provider, &contractDate, &start, &end,
		&rules, &a.Confirmed, &a.SerializedValue, &digest); err != nil {
		return nil, err
	}
	var err error
	if a.ContractDate, err = parseTime(contractDate); err != nil {
		return nil, fmt.Errorf("contract_date: %w", err)
	}
	if a.Start, err = parseTime(start); err != nil {
		return nil, fmt.Errorf("start_date: %w", err)
	}
	if a.End, err = parseTime(end); err != nil {
		return nil, fmt.Errorf("end_date: %w", err)
	}
	if err := json.Unmarshal([]byte(rules), &a.RuleSet); err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	a.ValueDigest = uint64(digest)
	return &a, nil
}

var _ contract.AgreementStore = (*AgreementStore)(nil)
