package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"plan-simulator/internal/plan"
	"plan-simulator/internal/simulate"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var ErrPlanNotFound = errors.New("plan not found")

// Schema creates the tables this service reads and writes.
const Schema = `
CREATE TABLE IF NOT EXISTS plans (
  id         text PRIMARY KEY,
  name       text NOT NULL,
  site       text NOT NULL DEFAULT '',
  time_zone  text NOT NULL DEFAULT '',
  updated_at timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS path_elements (
  id       text PRIMARY KEY,
  plan_id  text NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
  seq      integer NOT NULL,
  type     text NOT NULL,
  name     text NOT NULL DEFAULT '',
  lon      double precision,
  lat      double precision,
  heading  double precision
);
CREATE TABLE IF NOT EXISTS commands (
  id               text PRIMARY KEY,
  element_id       text NOT NULL REFERENCES path_elements(id) ON DELETE CASCADE,
  seq              integer NOT NULL,
  type             text NOT NULL,
  duration_seconds double precision NOT NULL DEFAULT 0,
  params           jsonb
);
CREATE TABLE IF NOT EXISTS sim_info (
  entity_id       text PRIMARY KEY,
  plan_id         text NOT NULL,
  elapsed_seconds double precision NOT NULL,
  distance_meters double precision NOT NULL,
  delta_seconds   double precision NOT NULL,
  delta_meters    double precision NOT NULL,
  updated_at      timestamptz NOT NULL DEFAULT now()
);
`

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// PlanVersion returns the plan's updated_at, used to detect edits.
func PlanVersion(ctx context.Context, db *sql.DB, planID string) (time.Time, error) {
	var v time.Time
	err := db.QueryRowContext(ctx, `SELECT updated_at FROM plans WHERE id = $1`, planID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	return v, err
}

// FetchPlan loads a plan with its ordered sequence and commands.
func FetchPlan(ctx context.Context, db *sql.DB, planID string) (*plan.Plan, error) {
	p := &plan.Plan{ID: planID}
	err := db.QueryRowContext(ctx,
		`SELECT name, site, time_zone FROM plans WHERE id = $1`, planID,
	).Scan(&p.Name, &p.Site, &p.TimeZone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	if err != nil {
		return nil, fmt.Errorf("query plan: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
SELECT id, type, name, lon, lat, heading
FROM path_elements WHERE plan_id = $1 ORDER BY seq`, planID)
	if err != nil {
		return nil, fmt.Errorf("query path_elements: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*plan.PathElement)
	for rows.Next() {
		var (
			el                plan.PathElement
			typ               string
			lon, lat, heading sql.NullFloat64
		)
		if err := rows.Scan(&el.ID, &typ, &el.Name, &lon, &lat, &heading); err != nil {
			return nil, err
		}
		el.Type = plan.ElementType(typ)
		if lon.Valid && lat.Valid {
			el.Coordinates = &plan.LonLat{Lon: lon.Float64, Lat: lat.Float64}
		}
		if heading.Valid {
			h := heading.Float64
			el.Heading = &h
		}
		p.Sequence = append(p.Sequence, &el)
		byID[el.ID] = &el
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	crows, err := db.QueryContext(ctx, `
SELECT c.element_id, c.id, c.type, c.duration_seconds, c.params
FROM commands c
JOIN path_elements e ON e.id = c.element_id
WHERE e.plan_id = $1
ORDER BY e.seq, c.seq`, planID)
	if err != nil {
		return nil, fmt.Errorf("query commands: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var (
			elementID string
			c         plan.Command
			raw       []byte
		)
		if err := crows.Scan(&elementID, &c.ID, &c.Type, &c.Duration, &raw); err != nil {
			return nil, err
		}
		c.Params, err = decodeParams(raw)
		if err != nil {
			return nil, fmt.Errorf("command %s params: %w", c.ID, err)
		}
		if el := byID[elementID]; el != nil {
			el.Commands = append(el.Commands, &c)
		}
	}
	return p, crows.Err()
}

func decodeParams(raw []byte) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// StoreSimInfo replaces the stored snapshots of a plan with those in res.
func StoreSimInfo(ctx context.Context, db *sql.DB, res *simulate.Result) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO sim_info (entity_id, plan_id, elapsed_seconds, distance_meters, delta_seconds, delta_meters, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (entity_id) DO UPDATE SET
  plan_id = EXCLUDED.plan_id,
  elapsed_seconds = EXCLUDED.elapsed_seconds,
  distance_meters = EXCLUDED.distance_meters,
  delta_seconds = EXCLUDED.delta_seconds,
  delta_meters = EXCLUDED.delta_meters,
  updated_at = now()`)
	if err != nil {
		return fmt.Errorf("prepare sim_info upsert: %w", err)
	}
	defer stmt.Close()

	ids := make([]string, 0, 1+len(res.Elements)+len(res.Commands))
	put := func(id string, s simulate.SimInfo) error {
		ids = append(ids, id)
		_, err := stmt.ExecContext(ctx, id, res.PlanID, s.ElapsedTimeSeconds, s.DistanceTraveledMeters, s.DeltaTimeSeconds, s.DeltaDistanceMeters)
		return err
	}
	if err := put(res.PlanID, res.Plan); err != nil {
		return fmt.Errorf("upsert sim_info %s: %w", res.PlanID, err)
	}
	for id, s := range res.Elements {
		if err := put(id, s); err != nil {
			return fmt.Errorf("upsert sim_info %s: %w", id, err)
		}
	}
	for id, s := range res.Commands {
		if err := put(id, s); err != nil {
			return fmt.Errorf("upsert sim_info %s: %w", id, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM sim_info WHERE plan_id = $1 AND NOT (entity_id = ANY($2))`, res.PlanID, ids,
	); err != nil {
		return fmt.Errorf("prune sim_info: %w", err)
	}
	return tx.Commit()
}
