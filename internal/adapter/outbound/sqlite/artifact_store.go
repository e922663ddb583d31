package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/contract"
	"github.com/Sentinel-Gate/Contractgate/internal/port/outbound"
)

const artifactColumns = `id, remote_id, title, creation_date, access_count, data_ref`

// ArtifactStore implements contract.ArtifactStore and outbound.ArtifactDataSource.
type ArtifactStore struct {
	db *sql.DB
}

// Get returns an artifact record by ID.
func (s *ArtifactStore) Get(ctx context.Context, id string) (*contract.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE id = ?`, id)
	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("artifact", id)
	}
	if err != nil {
		return nil, persistErr("get artifact", err)
	}
	return a, nil
}

// Create stores a new artifact, assigning an ID and creation date when missing.
func (s *ArtifactStore) Create(ctx context.Context, a *contract.Artifact) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreationDate.IsZero() {
		a.CreationDate = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO artifacts (`+artifactColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.RemoteID, a.Title, formatTime(a.CreationDate), a.AccessCount, a.DataRef)
	if err != nil {
		return persistErr("create artifact "+a.ID, err)
	}
	return nil
}

// Update replaces an artifact record. The stored access count never decreases.
func (s *ArtifactStore) Update(ctx context.Context, a *contract.Artifact) error {
	res, err := s.db.ExecContext(ctx, `UPDATE artifacts SET
		remote_id = ?, title = ?, creation_date = ?, access_count = MAX(access_count, ?), data_ref = ?
		WHERE id = ?`,
		a.RemoteID, a.Title, formatTime(a.CreationDate), a.AccessCount, a.DataRef, a.ID)
	if err != nil {
		return persistErr("update artifact "+a.ID, err)
	}
	return requireRow(res, "artifact", a.ID)
}

// Delete removes an artifact, its payload, and its links.
func (s *ArtifactStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = ?`, id); err != nil {
		return persistErr("delete artifact", err)
	}
	return nil
}

// List returns all artifacts ordered by ID.
func (s *ArtifactStore) List(ctx context.Context) ([]contract.Artifact, error) {
	return s.query(ctx, `SELECT `+artifactColumns+` FROM artifacts ORDER BY id`)
}

// ArtifactsByAgreement returns the artifacts linked to an agreement.
func (s *ArtifactStore) ArtifactsByAgreement(ctx context.Context, agreementID string) ([]contract.Artifact, error) {
	return s.query(ctx, `SELECT a.id, a.remote_id, a.title, a.creation_date, a.access_count, a.data_ref
		FROM artifacts a JOIN agreement_artifacts l ON l.artifact_id = a.id
		WHERE l.agreement_id = ? ORDER BY a.id`, agreementID)
}

// AgreementsByArtifact returns the IDs of the agreements linked to an artifact.
func (s *ArtifactStore) AgreementsByArtifact(ctx context.Context, artifactID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT agreement_id FROM agreement_artifacts WHERE artifact_id = ? ORDER BY agreement_id`, artifactID)
	if err != nil {
		return nil, persistErr("list agreement links", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, persistErr("scan agreement link", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list agreement links", err)
	}
	return ids, nil
}

// Link associates artifacts with an agreement. Unknown artifacts fail the
// whole call without creating any link.
func (s *ArtifactStore) Link(ctx context.Context, agreementID string, artifactIDs ...string) error {
	return inTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, id := range artifactIDs {
			var one int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM artifacts WHERE id = ?`, id).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("link artifact %s: %w", id, contract.ErrResourceNotFound)
			}
			if err != nil {
				return persistErr("link artifact", err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO agreement_artifacts (agreement_id, artifact_id) VALUES (?, ?)`, agreementID, id); err != nil {
				return persistErr("link artifact", err)
			}
		}
		return nil
	})
}

// Unlink removes every link of an agreement.
func (s *ArtifactStore) Unlink(ctx context.Context, agreementID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM agreement_artifacts WHERE agreement_id = ?`, agreementID); err != nil {
		return persistErr("unlink agreement", err)
	}
	return nil
}

// IncrementAccessIfBelow increments the access count when it is below limit,
// in a single conditional statement.
func (s *ArtifactStore) IncrementAccessIfBelow(ctx context.Context, id string, limit int64) (int64, bool, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE artifacts SET access_count = access_count + 1 WHERE id = ? AND access_count < ? RETURNING access_count`,
		id, limit).Scan(&count)
	if err == nil {
		return count, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, persistErr("increment access", err)
	}

	err = s.db.QueryRowContext(ctx, `SELECT access_count FROM artifacts WHERE id = ?`, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, notFound("artifact", id)
	}
	if err != nil {
		return 0, false, persistErr("read access count", err)
	}
	return count, false, nil
}

// IncrementAccess increments the access count.
func (s *ArtifactStore) IncrementAccess(ctx context.Context, id string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE artifacts SET access_count = access_count + 1 WHERE id = ? RETURNING access_count`, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, notFound("artifact", id)
	}
	if err != nil {
		return 0, persistErr("increment access", err)
	}
	return count, nil
}

// DecrementAccess decrements the access count, stopping at zero.
func (s *ArtifactStore) DecrementAccess(ctx context.Context, id string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE artifacts SET access_count = MAX(access_count - 1, 0) WHERE id = ? RETURNING access_count`, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, notFound("artifact", id)
	}
	if err != nil {
		return 0, persistErr("decrement access", err)
	}
	return count, nil
}

// GetData returns the payload of an artifact.
func (s *ArtifactStore) GetData(ctx context.Context, artifactID string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM artifacts WHERE id = ?`, artifactID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("artifact", artifactID)
	}
	if err != nil {
		return nil, persistErr("get artifact data", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

// SetData replaces the payload of an artifact.
func (s *ArtifactStore) SetData(ctx context.Context, artifactID string, data []byte) error {
	res, err := s.db.ExecContext(ctx, `UPDATE artifacts SET data = ? WHERE id = ?`, data, artifactID)
	if err != nil {
		return persistErr("set artifact data", err)
	}
	return requireRow(res, "artifact", artifactID)
}

// ClearData removes the payload and reports whether there was one. Only a
// non-empty payload is updated, so a repeated clear affects no row.
func (s *ArtifactStore) ClearData(ctx context.Context, artifactID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE artifacts SET data = NULL WHERE id = ? AND length(data) > 0`, artifactID)
	if err != nil {
		return false, persistErr("clear artifact data", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, persistErr("rows affected", err)
	}
	if n > 0 {
		return true, nil
	}
	if _, err := s.Get(ctx, artifactID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *ArtifactStore) query(ctx context.Context, query string, args ...any) ([]contract.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr("list artifacts", err)
	}
	defer func() { _ = rows.Close() }()

	var out []contract.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, persistErr("scan artifact", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list artifacts", err)
	}
	return out, nil
}

func scanArtifact(row scanner) (*contract.Artifact, error) {
	var a contract.Artifact
	var created string
	if err := row.Scan(&a.ID, &a.RemoteID, &a.Title, &created, &a.AccessCount, &a.DataRef); err != nil {
		return nil, err
	}
	var err error
	if a.CreationDate, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("creation_date: %w", err)
	}
	return &a, nil
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return persistErr("rows affected", err)
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}

var (
	_ contract.ArtifactStore      = (*ArtifactStore)(nil)
	_ outbound.ArtifactDataSource = (*ArtifactStore)(nil)
)
