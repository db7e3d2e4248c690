package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"loreweave/internal/detector"
	"loreweave/internal/storage"
)

const itemColumns = "id, job_id, phase, detection_type, matched_text, entity_id, similarity, context_snippet, position_start, position_end, resolution, resolved_entity_id, resolved_at, suggested_content, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		job             Job
		status          string
		phases          string
		currentPhase    sql.NullString
		failureReason   sql.NullString
		cancelRequested int
		runID           sql.NullString
		createdRaw      string
		updatedRaw      string
	)
	if err := scanner.Scan(
		&job.ID,
		&job.CampaignID,
		&job.SourceTable,
		&job.SourceID,
		&job.SourceField,
		&status,
		&job.TotalItems,
		&job.ResolvedItems,
		&job.EnrichmentTotal,
		&job.EnrichmentResolved,
		&phases,
		&currentPhase,
		&failureReason,
		&cancelRequested,
		&runID,
		&job.SourceContent,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	job.Status = Status(status)
	job.Phases = decodePhases(phases)
	if currentPhase.Valid {
		if phase, err := ParsePhase(currentPhase.String); err == nil {
			job.CurrentPhase = &phase
		}
	}
	job.FailureReason = failureReason.String
	job.CancelRequested = cancelRequested != 0
	job.EnrichmentRunID = runID.String
	if created, err := storage.ParseTime(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := storage.ParseTime(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return &job, nil
}

func scanItem(scanner rowScanner) (*Item, error) {
	var (
		item             Item
		phase            string
		detectionType    string
		entityID         sql.NullInt64
		similarity       sql.NullFloat64
		positionStart    sql.NullInt64
		positionEnd      sql.NullInt64
		resolution       string
		resolvedEntityID sql.NullInt64
		resolvedAtRaw    sql.NullString
		suggested        sql.NullString
		createdRaw       string
	)
	if err := scanner.Scan(
		&item.ID,
		&item.JobID,
		&phase,
		&detectionType,
		&item.MatchedText,
		&entityID,
		&similarity,
		&item.ContextSnippet,
		&positionStart,
		&positionEnd,
		&resolution,
		&resolvedEntityID,
		&resolvedAtRaw,
		&suggested,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	item.Phase = Phase(phase)
	item.DetectionType = detector.Type(detectionType)
	item.Resolution = Resolution(resolution)
	item.EntityID = int64Ptr(entityID)
	item.ResolvedEntityID = int64Ptr(resolvedEntityID)
	if similarity.Valid {
		v := similarity.Float64
		item.Similarity = &v
	}
	if positionStart.Valid {
		v := int(positionStart.Int64)
		item.PositionStart = &v
	}
	if positionEnd.Valid {
		v := int(positionEnd.Int64)
		item.PositionEnd = &v
	}
	if resolvedAtRaw.Valid {
		if resolvedAt, err := storage.ParseTime(resolvedAtRaw.String); err == nil {
			item.ResolvedAt = &resolvedAt
		}
	}
	if suggested.Valid && suggested.String != "" {
		item.SuggestedContent = json.RawMessage(suggested.String)
	}
	if created, err := storage.ParseTime(createdRaw); err == nil {
		item.CreatedAt = created
	}
	return &item, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listItems(ctx context.Context, q queryer, jobID int64, filter ItemFilter) ([]*Item, error) {
	query := "SELECT " + itemColumns + " FROM analysis_items WHERE job_id = ?"
	args := []any{jobID}
	if filter.Resolution != "" {
		query += " AND resolution = ?"
		args = append(args, filter.Resolution)
	}
	if filter.Phase != "" {
		query += " AND phase = ?"
		args = append(args, filter.Phase)
	}
	if filter.DetectionType != "" {
		query += " AND detection_type = ?"
		args = append(args, filter.DetectionType)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortItems(out)
	return out, nil
}

func int64Ptr(value sql.NullInt64) *int64 {
	if !value.Valid {
		return nil
	}
	v := value.Int64
	return &v
}

func nullableInt64(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableJSON(value json.RawMessage) any {
	if len(value) == 0 {
		return nil
	}
	return string(value)
}
