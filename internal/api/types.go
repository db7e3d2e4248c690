package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes an analysis job in a transport-friendly format.
type Job struct {
	ID            int64       `json:"id"`
	CampaignID    int64       `json:"campaignId"`
	SourceTable   string      `json:"sourceTable"`
	SourceID      int64       `json:"sourceId"`
	SourceField   string      `json:"sourceField"`
	Status        string      `json:"status"`
	TotalItems    int         `json:"totalItems"`
	ResolvedItems int         `json:"resolvedItems"`
	Enrichment    JobProgress `json:"enrichment"`
	Phases        []string    `json:"phases"`
	CurrentPhase  string      `json:"currentPhase,omitempty"`
	FailureReason string      `json:"failureReason,omitempty"`
	CreatedAt     string      `json:"createdAt,omitempty"`
	UpdatedAt     string      `json:"updatedAt,omitempty"`
}

// JobProgress captures enrichment-phase review progress.
type JobProgress struct {
	Total    int    `json:"total"`
	Resolved int    `json:"resolved"`
	RunID    string `json:"runId,omitempty"`
}

// Item describes a review item.
type Item struct {
	ID               int64           `json:"id"`
	JobID            int64           `json:"jobId"`
	DetectionType    string          `json:"detectionType"`
	MatchedText      string          `json:"matchedText"`
	EntityID         *int64          `json:"entityId"`
	Similarity       *float64        `json:"similarity"`
	ContextSnippet   string          `json:"contextSnippet"`
	PositionStart    *int            `json:"positionStart"`
	PositionEnd      *int            `json:"positionEnd"`
	Resolution       string          `json:"resolution"`
	ResolvedEntityID *int64          `json:"resolvedEntityId"`
	ResolvedAt       string          `json:"resolvedAt,omitempty"`
	SuggestedContent json.RawMessage `json:"suggestedContent,omitempty"`
	Phase            string          `json:"phase"`
	CreatedAt        string          `json:"createdAt,omitempty"`
}

// Entity describes a known campaign entity.
type Entity struct {
	ID          int64    `json:"id"`
	CampaignID  int64    `json:"campaignId"`
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases"`
	Description string   `json:"description,omitempty"`
	CreatedAt   string   `json:"createdAt,omitempty"`
	UpdatedAt   string   `json:"updatedAt,omitempty"`
}

// TriggerAnalysisRequest starts or re-runs analysis of one content field.
type TriggerAnalysisRequest struct {
	CampaignID       int64   `json:"campaignId" validate:"required,gt=0"`
	SourceTable      string  `json:"sourceTable" validate:"required"`
	SourceID         int64   `json:"sourceId" validate:"required,gt=0"`
	SourceField      string  `json:"sourceField" validate:"required"`
	Content          string  `json:"content"`
	ExcludeEntityIDs []int64 `json:"excludeEntityIds,omitempty" validate:"dive,gt=0"`
}

// AnalysisResponse returns a job with its current identification items.
type AnalysisResponse struct {
	Job   Job    `json:"job"`
	Items []Item `json:"items"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// ItemListResponse wraps a collection of items.
type ItemListResponse struct {
	Items []Item `json:"items"`
}

// ItemResponse wraps a single item.
type ItemResponse struct {
	Item Item `json:"item"`
}

// ResolveItemRequest carries a reviewer decision.
type ResolveItemRequest struct {
	Resolution string          `json:"resolution" validate:"required,oneof=accepted new_entity dismissed"`
	EntityType string          `json:"entityType,omitempty" validate:"required_if=Resolution new_entity"`
	EntityName string          `json:"entityName,omitempty" validate:"required_if=Resolution new_entity"`
	Override   json.RawMessage `json:"override,omitempty"`
}

// BatchResolveRequest applies one resolution to all pending items of a type.
type BatchResolveRequest struct {
	DetectionType string `json:"detectionType" validate:"required"`
	Resolution    string `json:"resolution" validate:"required"`
}

// BatchResolveResponse reports how many items changed.
type BatchResolveResponse struct {
	ResolvedCount int `json:"resolvedCount"`
}

// EnrichmentResponse reports the outcome of triggering enrichment.
type EnrichmentResponse struct {
	Status      string `json:"status"`
	EntityCount *int   `json:"entityCount,omitempty"`
	Message     string `json:"message,omitempty"`
	RunID       string `json:"runId,omitempty"`
}

// CancelEnrichmentResponse reports the outcome of a cancel request.
type CancelEnrichmentResponse struct {
	Status string `json:"status"`
}

// PendingCountResponse carries the unresolved item count.
type PendingCountResponse struct {
	Count int `json:"count"`
}

// CreateEntityRequest seeds a known entity.
type CreateEntityRequest struct {
	Type        string   `json:"type" validate:"required"`
	Name        string   `json:"name" validate:"required"`
	Aliases     []string `json:"aliases,omitempty" validate:"dive,required"`
	Description string   `json:"description,omitempty"`
}

// EntityResponse wraps a single entity.
type EntityResponse struct {
	Entity Entity `json:"entity"`
}

// EntityListResponse wraps a collection of entities.
type EntityListResponse struct {
	Entities []Entity `json:"entities"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running           bool   `json:"running"`
	PID               int    `json:"pid"`
	DatabasePath      string `json:"databasePath"`
	LockFilePath      string `json:"lockFilePath"`
	SchemaVersion     int    `json:"schemaVersion"`
	EnrichmentEnabled bool   `json:"enrichmentEnabled"`
	LLMProvider       string `json:"llmProvider,omitempty"`
	LLMModel          string `json:"llmModel,omitempty"`
	ActiveEnrichments int    `json:"activeEnrichments"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	RequestID string `json:"requestId,omitempty"`
}
