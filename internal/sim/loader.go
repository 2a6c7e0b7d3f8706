package sim

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"plan-simulator/internal/db"
	"plan-simulator/internal/plan"
	"plan-simulator/internal/simulate"
)

// Loader supplies the plan and an opaque version that changes whenever the
// plan is edited.
type Loader interface {
	Load(ctx context.Context) (*plan.Plan, error)
	Version(ctx context.Context) (string, error)
}

// Store persists the snapshots of a simulation pass.
type Store interface {
	SaveSimInfo(ctx context.Context, res *simulate.Result) error
}

type FileLoader struct {
	Path string
}

func (f FileLoader) Load(context.Context) (*plan.Plan, error) {
	return plan.LoadFile(f.Path)
}

func (f FileLoader) Version(context.Context) (string, error) {
	st, err := os.Stat(f.Path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d-%d", st.ModTime().UnixNano(), st.Size()), nil
}

// DBLoader reads one plan from the plans database and stores its snapshots
// back into sim_info.
type DBLoader struct {
	DB     *sql.DB
	PlanID string
}

func (l DBLoader) Load(ctx context.Context) (*plan.Plan, error) {
	p, err := db.FetchPlan(ctx, l.DB, l.PlanID)
	if err != nil {
		return nil, err
	}
	if err := plan.Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (l DBLoader) Version(ctx context.Context) (string, error) {
	v, err := db.PlanVersion(ctx, l.DB, l.PlanID)
	if err != nil {
		return "", err
	}
	return v.UTC().Format(time.RFC3339Nano), nil
}

func (l DBLoader) SaveSimInfo(ctx context.Context, res *simulate.Result) error {
	return db.StoreSimInfo(ctx, l.DB, res)
}
