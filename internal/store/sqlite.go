package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/plotgarden/plotgarden/internal/climate"
	"github.com/plotgarden/plotgarden/internal/models"
)

// ErrCellOccupied reports an insert into a cell that already holds a plant.
// The driver's constraint error is translated here, at the storage boundary,
// so callers branch on errors.Is instead of inspecting driver internals.
var ErrCellOccupied = errors.New("cell already has a plant")

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// ---- plans ----

func (s *Store) CreatePlan(p *models.Plan) error {
	_, err := s.db.Exec(`
		INSERT INTO plans (id, owner_id, name, latitude, longitude, orientation_deg, width, height, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
	`, p.ID, p.OwnerID, p.Name, p.Latitude, p.Longitude, p.OrientationDeg, p.Width, p.Height, p.CreatedAt, p.UpdatedAt)
	return err
}

// GetPlan loads a plan by id, scoped to its owner. Returns nil, nil when no
// such plan exists for that owner.
func (s *Store) GetPlan(ownerID, id string) (*models.Plan, error) {
	row := s.db.QueryRow(`
		SELECT id, owner_id, name, latitude, longitude, orientation_deg, width, height, created_at, updated_at
		FROM plans
		WHERE id = ? AND owner_id = ?
	`, id, ownerID)

	var p models.Plan
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Latitude, &p.Longitude, &p.OrientationDeg, &p.Width, &p.Height, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPlans(ownerID string) ([]models.Plan, error) {
	rows, err := s.db.Query(`
		SELECT id, owner_id, name, latitude, longitude, orientation_deg, width, height, created_at, updated_at
		FROM plans
		WHERE owner_id = ?
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []models.Plan
	for rows.Next() {
		var p models.Plan
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Latitude, &p.Longitude, &p.OrientationDeg, &p.Width, &p.Height, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// UpdatePlan rewrites the mutable plan fields and bumps the plan version.
// Returns false when the plan does not exist for that owner.
func (s *Store) UpdatePlan(p *models.Plan) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE plans
		SET name = ?, latitude = ?, longitude = ?, orientation_deg = ?, width = ?, height = ?,
		    updated_at = ?, version = version + 1
		WHERE id = ? AND owner_id = ?
	`, p.Name, p.Latitude, p.Longitude, p.OrientationDeg, p.Width, p.Height, p.UpdatedAt, p.ID, p.OwnerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) DeletePlan(ownerID, id string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM plans WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// PlanVersion returns the monotonically increasing mutation counter used to
// key the snapshot cache. Returns 0 when the plan does not exist.
func (s *Store) PlanVersion(ownerID, id string) (int64, error) {
	var v int64
	err := s.db.QueryRow(`SELECT version FROM plans WHERE id = ? AND owner_id = ?`, id, ownerID).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return v, err
}

func (s *Store) touchPlan(tx *sql.Tx, planID string, now time.Time) error {
	_, err := tx.Exec(`UPDATE plans SET updated_at = ?, version = version + 1 WHERE id = ?`, now, planID)
	return err
}

// ---- cells ----

// ReplaceCells rewrites the full cell assignment for a plan in one
// transaction, mirroring how the grid editor submits the whole selection.
func (s *Store) ReplaceCells(planID string, cells []models.Cell) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM plan_cells WHERE plan_id = ?`, planID); err != nil {
		return fmt.Errorf("clear cells: %w", err)
	}
	for _, c := range cells {
		if _, err := tx.Exec(`
			INSERT INTO plan_cells (plan_id, x, y, kind) VALUES (?, ?, ?, ?)
		`, planID, c.X, c.Y, c.Kind); err != nil {
			return fmt.Errorf("insert cell (%d,%d): %w", c.X, c.Y, err)
		}
	}
	if err := s.touchPlan(tx, planID, time.Now().UTC()); err != nil {
		return fmt.Errorf("touch plan: %w", err)
	}
	return tx.Commit()
}

func (s *Store) GetCells(planID string) ([]models.Cell, error) {
	rows, err := s.db.Query(`
		SELECT plan_id, x, y, kind FROM plan_cells WHERE plan_id = ? ORDER BY y, x
	`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cells []models.Cell
	for rows.Next() {
		var c models.Cell
		if err := rows.Scan(&c.PlanID, &c.X, &c.Y, &c.Kind); err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

// GetCell returns the cell at (x, y), or nil when no kind was assigned.
func (s *Store) GetCell(planID string, x, y int) (*models.Cell, error) {
	row := s.db.QueryRow(`
		SELECT plan_id, x, y, kind FROM plan_cells WHERE plan_id = ? AND x = ? AND y = ?
	`, planID, x, y)

	var c models.Cell
	err := row.Scan(&c.PlanID, &c.X, &c.Y, &c.Kind)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ---- plant placements ----

func (s *Store) InsertPlacement(p *models.PlantPlacement) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO plant_placements (id, plan_id, x, y, name, latin_name, sunlight_score, humidity_score, precip_score, overall_score, explanation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.PlanID, p.X, p.Y, p.Name, p.LatinName, p.SunlightScore, p.HumidityScore, p.PrecipScore, p.OverallScore, p.Explanation, p.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrCellOccupied
		}
		return err
	}
	if err := s.touchPlan(tx, p.PlanID, time.Now().UTC()); err != nil {
		return fmt.Errorf("touch plan: %w", err)
	}
	return tx.Commit()
}

func (s *Store) ListPlacements(planID string) ([]models.PlantPlacement, error) {
	rows, err := s.db.Query(`
		SELECT id, plan_id, x, y, name, latin_name, sunlight_score, humidity_score, precip_score, overall_score, explanation, created_at
		FROM plant_placements
		WHERE plan_id = ?
		ORDER BY created_at ASC
	`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var placements []models.PlantPlacement
	for rows.Next() {
		var p models.PlantPlacement
		if err := rows.Scan(&p.ID, &p.PlanID, &p.X, &p.Y, &p.Name, &p.LatinName, &p.SunlightScore, &p.HumidityScore, &p.PrecipScore, &p.OverallScore, &p.Explanation, &p.CreatedAt); err != nil {
			return nil, err
		}
		placements = append(placements, p)
	}
	return placements, rows.Err()
}

func (s *Store) DeletePlacement(planID, id string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM plant_placements WHERE plan_id = ? AND id = ?`, planID, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, tx.Commit()
	}
	if err := s.touchPlan(tx, planID, time.Now().UTC()); err != nil {
		return false, fmt.Errorf("touch plan: %w", err)
	}
	return true, tx.Commit()
}

// ---- monthly climate cache ----

// ReplaceMonthlyClimate swaps the plan's cached monthly rows for the newly
// computed set in one transaction, so readers see either the fully-old or
// fully-new series.
func (s *Store) ReplaceMonthlyClimate(planID string, rows []models.MonthlyClimate) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM monthly_climate WHERE plan_id = ?`, planID); err != nil {
		return fmt.Errorf("clear monthly climate: %w", err)
	}
	for _, r := range rows {
		if _, err := tx.Exec(`
			INSERT INTO monthly_climate (plan_id, year, month, sunlight, humidity, precipitation, temperature, last_refreshed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, planID, r.Year, r.Month, float64(r.Sunlight), float64(r.Humidity), float64(r.Precipitation), float64(r.Temperature), r.LastRefreshedAt); err != nil {
			return fmt.Errorf("insert month %d-%02d: %w", r.Year, r.Month, err)
		}
	}
	return tx.Commit()
}

// GetMonthlyClimate returns the cached monthly rows for a plan, newest
// first, capped at the rolling 12-month window.
func (s *Store) GetMonthlyClimate(planID string) ([]models.MonthlyClimate, error) {
	rows, err := s.db.Query(`
		SELECT plan_id, year, month, sunlight, humidity, precipitation, temperature, last_refreshed_at
		FROM monthly_climate
		WHERE plan_id = ?
		ORDER BY year DESC, month DESC
		LIMIT 12
	`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var months []models.MonthlyClimate
	for rows.Next() {
		var m models.MonthlyClimate
		var sunlight, humidity, precipitation, temperature float64
		if err := rows.Scan(&m.PlanID, &m.Year, &m.Month, &sunlight, &humidity, &precipitation, &temperature, &m.LastRefreshedAt); err != nil {
			return nil, err
		}
		m.Sunlight = climate.Percent(sunlight)
		m.Humidity = climate.Percent(humidity)
		m.Precipitation = climate.Percent(precipitation)
		m.Temperature = climate.Percent(temperature)
		months = append(months, m)
	}
	return months, rows.Err()
}
