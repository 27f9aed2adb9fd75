package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dermascan/dermascan/internal/model"
)

// CreateHistoryRecord appends one analysis result. A record whose user_id
// does not reference an existing user returns ErrUserNotFound.
func (r *Repository) CreateHistoryRecord(ctx context.Context, rec *model.HistoryRecord) error {
	var resultJSON []byte
	if rec.Result != nil {
		var err error
		resultJSON, err = json.Marshal(rec.Result)
		if err != nil {
			return fmt.Errorf("failed to encode analysis result: %w", err)
		}
	} else {
		resultJSON = []byte("{}")
	}

	query := `
		INSERT INTO analysis_history (
			id, user_id, image_name, image_ref, predicted_label,
			confidence, treatment_text, result_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var userID sql.NullString
	if rec.UserID != nil {
		userID = sql.NullString{String: *rec.UserID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		userID,
		rec.ImageName,
		rec.ImageRef,
		rec.PredictedLabel,
		rec.Confidence,
		rec.TreatmentText,
		string(resultJSON),
		formatTime(rec.CreatedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to create history record: %w", err)
	}

	return nil
}

// ListHistoryByUser returns the user's records, newest first.
// A non-positive limit returns every record.
func (r *Repository) ListHistoryByUser(ctx context.Context, userID string, limit int) ([]*model.HistoryRecord, error) {
	query := `
		SELECT id, user_id, image_name, image_ref, predicted_label,
		       confidence, treatment_text, result_json, created_at
		FROM analysis_history
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	records := make([]*model.HistoryRecord, 0)
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}

	return records, nil
}

// CountHistoryByUser returns how many records a user owns.
func (r *Repository) CountHistoryByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM analysis_history WHERE user_id = ?`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return n, nil
}

func scanHistory(rows *sql.Rows) (*model.HistoryRecord, error) {
	var (
		rec        model.HistoryRecord
		userID     sql.NullString
		resultJSON string
		createdAt  string
	)

	err := rows.Scan(
		&rec.ID,
		&userID,
		&rec.ImageName,
		&rec.ImageRef,
		&rec.PredictedLabel,
		&rec.Confidence,
		&rec.TreatmentText,
		&resultJSON,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		id := userID.String
		rec.UserID = &id
	}

	if resultJSON != "" && resultJSON != "{}" {
		var d model.Diagnosis
		if err := json.Unmarshal([]byte(resultJSON), &d); err != nil {
			return nil, fmt.Errorf("invalid stored result: %w", err)
		}
		rec.Result = &d
	}

	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	return &rec, nil
}
