package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"reporting-service/internal/models"
	"reporting-service/internal/reporting"
)

const reportColumns = `
	id, external_id, kind, emitter_user_id, affected_corridor_id, affected_route_id,
	initial_stop_id, final_stop_id, delay_minutes, description, message,
	is_critical, requires_intervention, created_at`

func scanReport(row pgx.Row) (models.Report, error) {
	var r models.Report
	var kind string
	err := row.Scan(
		&r.ID,
		&r.ExternalID,
		&kind,
		&r.EmitterUserID,
		&r.AffectedCorridorID,
		&r.AffectedRouteID,
		&r.InitialStopID,
		&r.FinalStopID,
		&r.DelayMinutes,
		&r.Description,
		&r.Message,
		&r.IsCritical,
		&r.RequiresIntervention,
		&r.CreatedAt,
	)
	r.Kind = models.ReportKind(kind)
	return r, err
}

// FindByExternalID returns nil when no report carries externalID.
func (d *DB) FindByExternalID(ctx context.Context, externalID string) (*models.Report, error) {
	query := `SELECT` + reportColumns + ` FROM reports WHERE external_id = $1`
	r, err := scanReport(d.Pool.QueryRow(ctx, query, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find report by external id %s: %w", externalID, err)
	}
	return &r, nil
}

// Insert stores a report. The id and created_at columns are always assigned
// by the database; report.ID is never bound.
func (d *DB) Insert(ctx context.Context, report models.Report) (models.Report, error) {
	query := `
	INSERT INTO reports (
		external_id, kind, emitter_user_id, affected_corridor_id, affected_route_id,
		initial_stop_id, final_stop_id, delay_minutes, description, message,
		is_critical, requires_intervention
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	RETURNING` + reportColumns

	saved, err := scanReport(d.Pool.QueryRow(ctx, query,
		report.ExternalID,
		string(report.Kind),
		report.EmitterUserID,
		report.AffectedCorridorID,
		report.AffectedRouteID,
		report.InitialStopID,
		report.FinalStopID,
		report.DelayMinutes,
		report.Description,
		report.Message,
		report.IsCritical,
		report.RequiresIntervention,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "reports_external_id_key" {
			return models.Report{}, fmt.Errorf("failed to create report: %w", reporting.ErrDuplicateExternalID)
		}
		return models.Report{}, fmt.Errorf("failed to create report: %w", err)
	}
	return saved, nil
}

func (d *DB) GetByID(ctx context.Context, id int64) (models.Report, error) {
	query := `SELECT` + reportColumns + ` FROM reports WHERE id = $1`
	r, err := scanReport(d.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Report{}, fmt.Errorf("report %d: %w", id, reporting.ErrReportNotFound)
	}
	if err != nil {
		return models.Report{}, fmt.Errorf("failed to get report %d: %w", id, err)
	}
	return r, nil
}

// LatestByCorridorAndKind returns nil when the corridor has no report of kind.
func (d *DB) LatestByCorridorAndKind(ctx context.Context, corridorID int64, kind models.ReportKind) (*models.Report, error) {
	query := `SELECT` + reportColumns + `
	FROM reports
	WHERE affected_corridor_id = $1 AND kind = $2
	ORDER BY created_at DESC, id DESC
	LIMIT 1`
	r, err := scanReport(d.Pool.QueryRow(ctx, query, corridorID, string(kind)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest %s report for corridor %d: %w", kind, corridorID, err)
	}
	return &r, nil
}

func (d *DB) ListByKind(ctx context.Context, kind models.ReportKind, limit int) ([]models.Report, error) {
	query := `SELECT` + reportColumns + `
	FROM reports
	WHERE kind = $1
	ORDER BY created_at DESC, id DESC
	LIMIT $2`

	rows, err := d.Pool.Query(ctx, query, string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s reports: %w", kind, err)
	}
	defer rows.Close()

	var list []models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reports: %w", err)
	}
	return list, nil
}
