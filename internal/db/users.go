package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"reporting-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// GetAssignedCorridor reports false when the user is unknown or unassigned.
func (d *DB) GetAssignedCorridor(ctx context.Context, userID int64) (int64, bool, error) {
	var corridor *int64
	err := d.Pool.QueryRow(ctx, `SELECT assigned_corridor_id FROM users WHERE id = $1`, userID).Scan(&corridor)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get corridor of user %d: %w", userID, err)
	}
	if corridor == nil {
		return 0, false, nil
	}
	return *corridor, true, nil
}

func (d *DB) GetUser(ctx context.Context, id int64) (models.User, error) {
	query := `
	SELECT id, name, email, role, assigned_corridor_id, unit_plate, device_token, lat, lng
	FROM users
	WHERE id = $1`

	var u models.User
	var role string
	var lat, lng *float64
	err := d.Pool.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.Name, &u.Email, &role, &u.AssignedCorridorID, &u.UnitPlate, &u.DeviceToken, &lat, &lng,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %d: %w", id, ErrUserNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	u.Role = models.Role(role)
	if lat != nil && lng != nil {
		u.Location = &models.Point{Lat: *lat, Lng: *lng}
	}
	return u, nil
}

// ListClientsWithToken returns every client with a device token except excludeUserID.
func (d *DB) ListClientsWithToken(ctx context.Context, excludeUserID int64) ([]models.Recipient, error) {
	query := `
	SELECT id, device_token, lat, lng
	FROM users
	WHERE role = 'client' AND device_token IS NOT NULL AND device_token <> '' AND id <> $1`
	return d.listRecipients(ctx, query, excludeUserID)
}

func (d *DB) ListRegulatorsWithToken(ctx context.Context) ([]models.Recipient, error) {
	query := `
	SELECT id, device_token, lat, lng
	FROM users
	WHERE role = 'regulator' AND device_token IS NOT NULL AND device_token <> ''`
	return d.listRecipients(ctx, query)
}

// ListUnitFollowers always returns no recipients: clients cannot follow a
// vehicle yet.
// TODO: back this with a unit_followers table once the mobile app can follow a plate.
func (d *DB) ListUnitFollowers(ctx context.Context, report models.Report) ([]models.Recipient, error) {
	return nil, nil
}

func (d *DB) listRecipients(ctx context.Context, query string, args ...interface{}) ([]models.Recipient, error) {
	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	defer rows.Close()

	var list []models.Recipient
	for rows.Next() {
		var r models.Recipient
		var lat, lng *float64
		if err := rows.Scan(&r.UserID, &r.Token, &lat, &lng); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		if lat != nil && lng != nil {
			r.Location = &models.Point{Lat: *lat, Lng: *lng}
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recipients: %w", err)
	}
	return list, nil
}

func (d *DB) UpdateDeviceToken(ctx context.Context, userID int64, token string) error {
	var value *string
	if token != "" {
		value = &token
	}
	result, err := d.Pool.Exec(ctx, `UPDATE users SET device_token = $1 WHERE id = $2`, value, userID)
	if err != nil {
		return fmt.Errorf("failed to update device token of user %d: %w", userID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", userID, ErrUserNotFound)
	}
	return nil
}

func (d *DB) UpdateLocation(ctx context.Context, userID int64, p models.Point) error {
	result, err := d.Pool.Exec(ctx,
		`UPDATE users SET lat = $1, lng = $2, location_updated_at = NOW() WHERE id = $3`,
		p.Lat, p.Lng, userID)
	if err != nil {
		return fmt.Errorf("failed to update location of user %d: %w", userID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", userID, ErrUserNotFound)
	}
	return nil
}
