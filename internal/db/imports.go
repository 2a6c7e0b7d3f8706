package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ResolveLatestPlanID returns the id of the most recently updated plan whose
// name matches (case-insensitive substring).
func ResolveLatestPlanID(ctx context.Context, db *sql.DB, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("plan name is required")
	}
	q := `
SELECT id
FROM plans
WHERE name ILIKE '%' || $1 || '%'
ORDER BY updated_at DESC
LIMIT 1`
	var id sql.NullString
	if err := db.QueryRowContext(ctx, q, name).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: no plan named like %q", ErrPlanNotFound, name)
		}
		return "", err
	}
	if !id.Valid || id.String == "" {
		return "", fmt.Errorf("%w: empty id for plan named like %q", ErrPlanNotFound, name)
	}
	return id.String, nil
}
