package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenBeamCore/internal/element"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SnapshotStore persists snapshots.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
	ListSnapshots(ctx context.Context, accelerator, target string) ([]SnapshotInfo, error)
	LoadSnapshot(ctx context.Context, id uuid.UUID) (*Snapshot, error)
	DeleteSnapshot(ctx context.Context, id uuid.UUID) error
}

// SaveSnapshot stores the header and its values in one transaction.
func (p *PostgresClient) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO snapshots (id, name, accelerator, peer, target, quantity, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, snap.ID, snap.Name, snap.Accelerator, snap.Peer, snap.Target, snap.Quantity, snap.CreatedBy, snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	rows := make([][]any, len(snap.Values))
	for i, v := range snap.Values {
		rows[i] = []any{snap.ID, i, v.Element, v.Value, v.Unit}
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"snapshot_values"},
		[]string{"snapshot_id", "position", "element", "value", "unit"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to insert snapshot values: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListSnapshots returns the newest snapshots first. An empty target lists
// every array.
func (p *PostgresClient) ListSnapshots(ctx context.Context, accelerator, target string) ([]SnapshotInfo, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, name, accelerator, peer, target, quantity, created_by, created_at
		FROM snapshots
		WHERE accelerator = $1 AND ($2::text = '' OR target = $2)
		ORDER BY created_at DESC
	`, accelerator, target)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	infos := make([]SnapshotInfo, 0)
	for rows.Next() {
		var s SnapshotInfo
		if err := rows.Scan(&s.ID, &s.Name, &s.Accelerator, &s.Peer, &s.Target, &s.Quantity, &s.CreatedBy, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		infos = append(infos, s)
	}
	return infos, rows.Err()
}

func (p *PostgresClient) LoadSnapshot(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	snap := &Snapshot{}
	err := p.pool.QueryRow(ctx, `
		SELECT id, name, accelerator, peer, target, quantity, created_by, created_at
		FROM snapshots WHERE id = $1
	`, id).Scan(&snap.ID, &snap.Name, &snap.Accelerator, &snap.Peer, &snap.Target, &snap.Quantity, &snap.CreatedBy, &snap.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.Errorf(types.KindLookup, "snapshot %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	rows, err := p.pool.Query(ctx, `
		SELECT element, value, unit FROM snapshot_values
		WHERE snapshot_id = $1 ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot values: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v SnapshotValue
		if err := rows.Scan(&v.Element, &v.Value, &v.Unit); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot value: %w", err)
		}
		snap.Values = append(snap.Values, v)
	}
	return snap, rows.Err()
}

func (p *PostgresClient) DeleteSnapshot(ctx context.Context, id uuid.UUID) error {
	result, err := p.pool.Exec(ctx, `DELETE FROM snapshots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	if result.RowsAffected() == 0 {
		return types.Errorf(types.KindLookup, "snapshot %s not found", id)
	}
	return nil
}

// Capture reads rw and pairs each value with the member name at the same
// position.
func Capture(ctx context.Context, info SnapshotInfo, members []string, rw element.RW) (*Snapshot, error) {
	if len(members) != rw.Len() {
		return nil, types.Errorf(types.KindValue, "%s: %d members for %d values", info.Target, len(members), rw.Len())
	}
	values, err := rw.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s %s: %w", info.Target, info.Quantity, err)
	}
	units := rw.Units()

	snap := &Snapshot{SnapshotInfo: info, Values: make([]SnapshotValue, len(values))}
	for i, v := range values {
		snap.Values[i] = SnapshotValue{Element: members[i], Value: v, Unit: units[i]}
	}
	return snap, nil
}

// Restore writes snap back through rw. Values are matched by member name,
// so the array may have been reordered since the capture; every member
// must have a stored value.
func Restore(ctx context.Context, snap *Snapshot, members []string, rw element.RW) error {
	byName := make(map[string]float64, len(snap.Values))
	for _, v := range snap.Values {
		byName[v.Element] = v.Value
	}

	values := make([]float64, len(members))
	for i, name := range members {
		v, ok := byName[name]
		if !ok {
			return types.Errorf(types.KindValue, "snapshot %s has no value for %s", snap.ID, name)
		}
		values[i] = v
	}
	return rw.Set(ctx, values)
}
