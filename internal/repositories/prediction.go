package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/digits/internal/models"
	"github.com/desertthunder/digits/internal/shared"
)

// PredictionRepository implements [models.Repository] for [models.PredictionRecord] persistence.
type PredictionRepository struct {
	db *sql.DB
}

// NewPredictionRepository creates a new [PredictionRepository] with the given database connection
func NewPredictionRepository(db *sql.DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

const insertPrediction = `
	INSERT INTO predictions (id, request_id, model, digit, confidence, created_at) VALUES (?, ?, ?, ?, ?, ?)
`

// Create inserts a new prediction record with a generated ID
func (r *PredictionRepository) Create(rec *models.PredictionRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	id := shared.GenerateID()
	_, err := r.db.Exec(insertPrediction, id, rec.RequestID, rec.Model, rec.Digit, rec.Confidence, rec.CreatedAt().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}

	rec.SetID(id)
	return nil
}

// CreateAll inserts every record of one request in a single transaction.
func (r *PredictionRepository) CreateAll(recs []*models.PredictionRecord) error {
	for _, rec := range recs {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertPrediction)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = shared.GenerateID()
		if _, err := stmt.Exec(ids[i], rec.RequestID, rec.Model, rec.Digit, rec.Confidence, rec.CreatedAt().UTC()); err != nil {
			return fmt.Errorf("failed to insert prediction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit predictions: %w", err)
	}
	for i, rec := range recs {
		rec.SetID(ids[i])
	}
	return nil
}

// Get retrieves a prediction record by ID
func (r *PredictionRepository) Get(id string) (*models.PredictionRecord, error) {
	query := `SELECT id, request_id, model, digit, confidence, created_at FROM predictions WHERE id = ?`

	rec, err := scanPrediction(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("prediction not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query prediction: %w", err)
	}
	return rec, nil
}

// Update rewrites the digit and confidence of an existing record
func (r *PredictionRepository) Update(rec *models.PredictionRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	result, err := r.db.Exec(
		`UPDATE predictions SET model = ?, digit = ?, confidence = ? WHERE id = ?`,
		rec.Model, rec.Digit, rec.Confidence, rec.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update prediction: %w", err)
	}
	return requireRows(result, fmt.Errorf("prediction not found: %s", rec.ID()))
}

// Delete removes a prediction record by ID
func (r *PredictionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM predictions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete prediction: %w", err)
	}
	return requireRows(result, fmt.Errorf("prediction not found: %s", id))
}

// List retrieves prediction records, newest first.
//
// Supported criteria: "request_id" (string), "model" (string), "since" (time.Time) and "limit" (int).
func (r *PredictionRepository) List(criteria map[string]any) ([]*models.PredictionRecord, error) {
	query := `SELECT id, request_id, model, digit, confidence, created_at FROM predictions WHERE 1 = 1`
	args := []any{}

	if requestID, ok := criteria["request_id"].(string); ok && requestID != "" {
		query += " AND request_id = ?"
		args = append(args, requestID)
	}
	if model, ok := criteria["model"].(string); ok && model != "" {
		query += " AND model = ?"
		args = append(args, model)
	}
	if since, ok := criteria["since"].(time.Time); ok {
		query += " AND created_at >= ?"
		args = append(args, since.UTC())
	}

	query += " ORDER BY created_at DESC, rowid DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	var recs []*models.PredictionRecord
	for rows.Next() {
		rec, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return recs, nil
}

// ModelStats summarizes the records of one model.
type ModelStats struct {
	Model          string
	Count          int
	MeanConfidence float64
}

// Stats aggregates record counts and mean confidence per model, ordered by model name.
func (r *PredictionRepository) Stats() ([]ModelStats, error) {
	rows, err := r.db.Query(`
		SELECT model, COUNT(*), AVG(confidence)
		FROM predictions
		GROUP BY model
		ORDER BY model ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query prediction stats: %w", err)
	}
	defer rows.Close()

	var stats []ModelStats
	for rows.Next() {
		var s ModelStats
		if err := rows.Scan(&s.Model, &s.Count, &s.MeanConfidence); err != nil {
			return nil, fmt.Errorf("failed to scan prediction stats: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return stats, nil
}

func scanPrediction(row scanner) (*models.PredictionRecord, error) {
	var (
		rec       models.PredictionRecord
		id        string
		createdAt time.Time
	)

	if err := row.Scan(&id, &rec.RequestID, &rec.Model, &rec.Digit, &rec.Confidence, &createdAt); err != nil {
		return nil, err
	}
	rec.SetID(id)
	rec.SetCreatedAt(createdAt)
	return &rec, nil
}
