package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"loreweave/internal/detector"
	"loreweave/internal/jobs"
	"loreweave/internal/services"
	"loreweave/internal/testsupport"
)

func mention(text string, start int, entityID int64) jobs.NewItem {
	end := start + len([]rune(text))
	similarity := 1.0
	id := entityID
	return jobs.NewItem{
		DetectionType:  detector.TypeUntaggedMention,
		MatchedText:    text,
		EntityID:       &id,
		Similarity:     &similarity,
		ContextSnippet: text,
		PositionStart:  &start,
		PositionEnd:    &end,
	}
}

func analyzedJob(t *testing.T, store *jobs.Store, items ...jobs.NewItem) (*jobs.Job, []*jobs.Item) {
	t.Helper()
	ctx := context.Background()
	job, err := store.CreateJob(ctx, jobs.NewJob{CampaignID: 1, SourceTable: "sessions", SourceID: 10, SourceField: "notes", Content: "text"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := store.BeginIdentification(ctx, job.ID, "text"); err != nil {
		t.Fatalf("BeginIdentification: %v", err)
	}
	stored, job, err := store.RecordDetections(ctx, job.ID, items)
	if err != nil {
		t.Fatalf("RecordDetections: %v", err)
	}
	return job, stored
}

func TestRecordDetectionsPersistsPendingItemsInOrder(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	job, items := analyzedJob(t, store,
		mention("Elowen", 40, 3),
		mention("Viktor", 0, 1),
		mention("Brannoc", 20, 2),
	)

	if job.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed job, got %s", job.Status)
	}
	if job.CurrentPhase != nil {
		t.Fatalf("expected no current phase after completion, got %v", *job.CurrentPhase)
	}
	if job.TotalItems != 3 || job.ResolvedItems != 0 {
		t.Fatalf("expected totals 3/0, got %d/%d", job.TotalItems, job.ResolvedItems)
	}
	if !job.HasPhase(jobs.PhaseIdentification) {
		t.Fatalf("expected identification phase recorded, got %v", job.Phases)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for i, item := range items {
		if item.Resolution != jobs.ResolutionPending || item.ResolvedAt != nil {
			t.Fatalf("item %d not pending: %+v", i, item)
		}
		if i > 0 && *items[i-1].PositionStart >= *item.PositionStart {
			t.Fatalf("items not ascending by position")
		}
	}
}

func TestRecordDetectionsReanalysisDoesNotDuplicate(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	job, items := analyzedJob(t, store, mention("Viktor", 0, 1), mention("Brannoc", 20, 2))

	if _, err := store.ResolveItem(ctx, items[0].ID, jobs.ResolutionDismissed, nil); err != nil {
		t.Fatalf("ResolveItem: %v", err)
	}

	if _, err := store.BeginIdentification(ctx, job.ID, "text v2"); err != nil {
		t.Fatalf("BeginIdentification: %v", err)
	}
	// Same Viktor span, Brannoc gone, Elowen new.
	current, job, err := store.RecordDetections(ctx, job.ID, []jobs.NewItem{mention("Viktor", 0, 1), mention("Elowen", 30, 3)})
	if err != nil {
		t.Fatalf("RecordDetections: %v", err)
	}
	if len(current) != 2 {
		t.Fatalf("expected 2 current items, got %d", len(current))
	}
	if current[0].ID != items[0].ID || current[0].Resolution != jobs.ResolutionDismissed {
		t.Fatalf("expected resolved Viktor item to be kept, got %+v", current[0])
	}
	all, err := store.ListItems(ctx, job.ID, jobs.ItemFilter{})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected stale pending Brannoc to be pruned, got %d items", len(all))
	}
	if job.TotalItems != 2 || job.ResolvedItems != 1 {
		t.Fatalf("expected totals 2/1, got %d/%d", job.TotalItems, job.ResolvedItems)
	}
}

func TestResolveRevertRoundTrip(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	job, items := analyzedJob(t, store, mention("Viktor", 0, 1))

	entityID := int64(1)
	resolved, err := store.ResolveItem(ctx, items[0].ID, jobs.ResolutionAccepted, &entityID)
	if err != nil {
		t.Fatalf("ResolveItem: %v", err)
	}
	if resolved.Resolution != jobs.ResolutionAccepted || resolved.ResolvedAt == nil || *resolved.ResolvedEntityID != 1 {
		t.Fatalf("unexpected resolved item %+v", resolved)
	}
	after, _ := store.GetJob(ctx, job.ID)
	if after.ResolvedItems != 1 {
		t.Fatalf("expected resolved count 1, got %d", after.ResolvedItems)
	}

	reverted, err := store.RevertItem(ctx, items[0].ID)
	if err != nil {
		t.Fatalf("RevertItem: %v", err)
	}
	if reverted.Resolution != jobs.ResolutionPending || reverted.ResolvedAt != nil || reverted.ResolvedEntityID != nil {
		t.Fatalf("expected pending item with cleared fields, got %+v", reverted)
	}
	after, _ = store.GetJob(ctx, job.ID)
	if after.ResolvedItems != 0 {
		t.Fatalf("expected resolved count 0, got %d", after.ResolvedItems)
	}
}

func TestResolveAndRevertBoundaries(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	_, items := analyzedJob(t, store, mention("Viktor", 0, 1))

	if _, err := store.RevertItem(ctx, items[0].ID); !errors.Is(err, services.ErrNotResolved) {
		t.Fatalf("expected not resolved error, got %v", err)
	}
	if _, err := store.ResolveItem(ctx, items[0].ID, jobs.ResolutionDismissed, nil); err != nil {
		t.Fatalf("ResolveItem: %v", err)
	}
	if _, err := store.ResolveItem(ctx, items[0].ID, jobs.ResolutionDismissed, nil); !errors.Is(err, services.ErrAlreadyResolved) {
		t.Fatalf("expected already resolved error, got %v", err)
	}
	if _, err := store.ResolveItem(ctx, 9999, jobs.ResolutionDismissed, nil); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
	if _, err := store.ResolveItem(ctx, items[0].ID, jobs.ResolutionPending, nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConcurrentResolvesOnDistinctItems(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	job, items := analyzedJob(t, store, mention("Viktor", 0, 1), mention("Brannoc", 20, 2))

	var wg sync.WaitGroup
	errs := make(chan error, len(items))
	for _, item := range items {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if _, err := store.ResolveItem(ctx, id, jobs.ResolutionDismissed, nil); err != nil {
				errs <- err
			}
		}(item.ID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent resolve failed: %v", err)
	}

	after, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if after.ResolvedItems != 2 {
		t.Fatalf("expected resolved count to increase by 2, got %d", after.ResolvedItems)
	}
}

func TestBatchResolveIsIdempotent(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	unresolvedStart, unresolvedEnd := 50, 60
	unresolved := jobs.NewItem{
		DetectionType: detector.TypeWikiLinkUnresolved,
		MatchedText:   "Thornwall",
		PositionStart: &unresolvedStart,
		PositionEnd:   &unresolvedEnd,
	}
	job, _ := analyzedJob(t, store, mention("Viktor", 0, 1), mention("Brannoc", 20, 2), unresolved)

	count, err := store.BatchResolve(ctx, job.ID, detector.TypeUntaggedMention, jobs.ResolutionAccepted, true)
	if err != nil {
		t.Fatalf("BatchResolve: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 resolved, got %d", count)
	}
	count, err = store.BatchResolve(ctx, job.ID, detector.TypeUntaggedMention, jobs.ResolutionAccepted, true)
	if err != nil {
		t.Fatalf("second BatchResolve: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected second batch to resolve nothing, got %d", count)
	}
	after, _ := store.GetJob(ctx, job.ID)
	if after.ResolvedItems != 2 {
		t.Fatalf("expected resolved count 2, got %d", after.ResolvedItems)
	}

	accepted, err := store.ListItems(ctx, job.ID, jobs.ItemFilter{Resolution: jobs.ResolutionAccepted})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	for _, item := range accepted {
		if item.ResolvedEntityID == nil || *item.ResolvedEntityID != *item.EntityID {
			t.Fatalf("expected accepted item linked to its entity, got %+v", item)
		}
	}
}

func TestCanTransition(t *testing.T) {
	enrichment := jobs.PhaseEnrichment
	identification := jobs.PhaseIdentification
	cases := []struct {
		from  jobs.Status
		to    jobs.Status
		phase *jobs.Phase
		want  bool
	}{
		{jobs.StatusCreated, jobs.StatusRunning, nil, true},
		{jobs.StatusCreated, jobs.StatusCompleted, nil, false},
		{jobs.StatusRunning, jobs.StatusCompleted, &identification, true},
		{jobs.StatusRunning, jobs.StatusFailed, &identification, true},
		{jobs.StatusRunning, jobs.StatusCancelled, &identification, false},
		{jobs.StatusRunning, jobs.StatusCancelled, &enrichment, true},
		{jobs.StatusCompleted, jobs.StatusRunning, nil, true},
		{jobs.StatusCancelled, jobs.StatusRunning, nil, true},
		{jobs.StatusFailed, jobs.StatusRunning, &identification, false},
		{jobs.StatusFailed, jobs.StatusRunning, &enrichment, true},
		{jobs.StatusCompleted, jobs.StatusCancelled, nil, false},
	}
	for _, tc := range cases {
		name := fmt.Sprintf("%s->%s", tc.from, tc.to)
		if got := jobs.CanTransition(tc.from, tc.to, tc.phase); got != tc.want {
			t.Fatalf("%s: CanTransition = %v, want %v", name, got, tc.want)
		}
	}
}

func TestFailJobRecordsReasonAndBlocksReanalysis(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	job, err := store.CreateJob(ctx, jobs.NewJob{CampaignID: 1, SourceTable: "sessions", SourceID: 1, SourceField: "notes"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := store.BeginIdentification(ctx, job.ID, "text"); err != nil {
		t.Fatalf("BeginIdentification: %v", err)
	}
	changed, err := store.FailJob(ctx, job.ID, "Analysis failed: could not save detections")
	if err != nil || !changed {
		t.Fatalf("FailJob = %v, %v", changed, err)
	}
	failed, _ := store.GetJob(ctx, job.ID)
	if failed.Status != jobs.StatusFailed || failed.FailureReason == "" {
		t.Fatalf("expected failed job with reason, got %+v", failed)
	}
	if failed.CurrentPhase == nil || *failed.CurrentPhase != jobs.PhaseIdentification {
		t.Fatalf("expected failing phase retained, got %v", failed.CurrentPhase)
	}
	if _, err := store.BeginIdentification(ctx, job.ID, "text"); !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("expected invalid state for terminal job, got %v", err)
	}
}

func suggestion(entityID int64, text string) jobs.NewItem {
	id := entityID
	payload, _ := json.Marshal(map[string]any{"entityId": entityID, "description": text})
	return jobs.NewItem{
		DetectionType:    detector.TypeDescriptionUpdate,
		MatchedText:      "Viktor",
		EntityID:         &id,
		SuggestedContent: payload,
	}
}

func TestEnrichmentLifecycle(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	job, _ := analyzedJob(t, store, mention("Viktor", 0, 1))

	running, err := store.BeginEnrichment(ctx, job.ID, "run-1")
	if err != nil {
		t.Fatalf("BeginEnrichment: %v", err)
	}
	if !running.EnrichmentRunning() || running.EnrichmentRunID != "run-1" {
		t.Fatalf("expected running enrichment, got %+v", running)
	}
	if _, err := store.BeginEnrichment(ctx, job.ID, "run-2"); !errors.Is(err, jobs.ErrEnrichmentRunning) {
		t.Fatalf("expected already running error, got %v", err)
	}
	if stop, err := store.IsCancelRequested(ctx, job.ID, "run-1"); err != nil || stop {
		t.Fatalf("IsCancelRequested = %v, %v", stop, err)
	}

	applied, err := store.CompleteEnrichment(ctx, job.ID, "run-1", []jobs.NewItem{suggestion(1, "A wary smuggler."), suggestion(1, "Owes the guild.")})
	if err != nil || !applied {
		t.Fatalf("CompleteEnrichment = %v, %v", applied, err)
	}
	done, _ := store.GetJob(ctx, job.ID)
	if done.Status != jobs.StatusCompleted || done.EnrichmentTotal != 2 || done.EnrichmentResolved != 0 {
		t.Fatalf("unexpected job after enrichment %+v", done)
	}
	if !done.HasPhase(jobs.PhaseEnrichment) {
		t.Fatalf("expected enrichment phase recorded, got %v", done.Phases)
	}

	suggestions, err := store.ListItems(ctx, job.ID, jobs.ItemFilter{Phase: jobs.PhaseEnrichment})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(suggestions) != 2 || suggestions[0].PositionStart != nil {
		t.Fatalf("unexpected suggestions %+v", suggestions)
	}
	if _, err := store.ResolveItem(ctx, suggestions[0].ID, jobs.ResolutionDismissed, nil); err != nil {
		t.Fatalf("ResolveItem: %v", err)
	}
	done, _ = store.GetJob(ctx, job.ID)
	if done.EnrichmentResolved != 1 || done.ResolvedItems != 0 {
		t.Fatalf("expected enrichment counter only, got %d/%d", done.EnrichmentResolved, done.ResolvedItems)
	}
}

func TestCancelWinsOverLateCompletion(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	job, _ := analyzedJob(t, store, mention("Viktor", 0, 1))

	if cancelled, err := store.RequestCancel(ctx, job.ID); err != nil || cancelled {
		t.Fatalf("expected no-op cancel without run, got %v, %v", cancelled, err)
	}
	unchanged, _ := store.GetJob(ctx, job.ID)
	if unchanged.Status != jobs.StatusCompleted || unchanged.CancelRequested {
		t.Fatalf("expected no state change, got %+v", unchanged)
	}

	if _, err := store.BeginEnrichment(ctx, job.ID, "run-1"); err != nil {
		t.Fatalf("BeginEnrichment: %v", err)
	}
	cancelled, err := store.RequestCancel(ctx, job.ID)
	if err != nil || !cancelled {
		t.Fatalf("RequestCancel = %v, %v", cancelled, err)
	}
	if stop, _ := store.IsCancelRequested(ctx, job.ID, "run-1"); !stop {
		t.Fatal("expected cancel to be observed")
	}
	applied, err := store.CompleteEnrichment(ctx, job.ID, "run-1", []jobs.NewItem{suggestion(1, "late")})
	if err != nil {
		t.Fatalf("CompleteEnrichment: %v", err)
	}
	if applied {
		t.Fatal("expected late completion to be discarded")
	}
	after, _ := store.GetJob(ctx, job.ID)
	if after.Status != jobs.StatusCancelled || after.EnrichmentTotal != 0 {
		t.Fatalf("expected cancelled job without suggestions, got %+v", after)
	}

	// A cancelled job may be enriched again.
	if _, err := store.BeginEnrichment(ctx, job.ID, "run-2"); err != nil {
		t.Fatalf("BeginEnrichment after cancel: %v", err)
	}
}

func TestReclaimInterruptedEnrichment(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	job, _ := analyzedJob(t, store, mention("Viktor", 0, 1))
	if _, err := store.BeginEnrichment(ctx, job.ID, "run-1"); err != nil {
		t.Fatalf("BeginEnrichment: %v", err)
	}

	n, err := store.ReclaimInterruptedEnrichment(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ReclaimInterruptedEnrichment = %d, %v", n, err)
	}
	failed, _ := store.GetJob(ctx, job.ID)
	if failed.Status != jobs.StatusFailed || failed.FailureReason != jobs.ReasonEnrichmentRestart {
		t.Fatalf("unexpected reclaimed job %+v", failed)
	}
	// Enrichment may be retried after an enrichment-phase failure.
	if _, err := store.BeginEnrichment(ctx, job.ID, "run-2"); err != nil {
		t.Fatalf("retry enrichment: %v", err)
	}
	if changed, err := store.FailEnrichment(ctx, job.ID, "run-1", "stale"); err != nil || changed {
		t.Fatalf("expected stale run failure to be ignored, got %v, %v", changed, err)
	}
}

func TestPendingCountScopesByCampaignAndSource(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	_, items := analyzedJob(t, store, mention("Viktor", 0, 1), mention("Brannoc", 20, 2))
	if _, err := store.ResolveItem(ctx, items[0].ID, jobs.ResolutionDismissed, nil); err != nil {
		t.Fatalf("ResolveItem: %v", err)
	}

	cases := []struct {
		filter jobs.PendingFilter
		want   int
	}{
		{jobs.PendingFilter{CampaignID: 1}, 1},
		{jobs.PendingFilter{CampaignID: 1, SourceTable: "sessions", SourceID: 10}, 1},
		{jobs.PendingFilter{CampaignID: 1, SourceTable: "chapters"}, 0},
		{jobs.PendingFilter{CampaignID: 2}, 0},
	}
	for _, tc := range cases {
		got, err := store.PendingCount(ctx, tc.filter)
		if err != nil {
			t.Fatalf("PendingCount: %v", err)
		}
		if got != tc.want {
			t.Fatalf("PendingCount(%+v) = %d, want %d", tc.filter, got, tc.want)
		}
	}
}

func TestListJobsFilters(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	first, _ := analyzedJob(t, store)
	second, err := store.CreateJob(ctx, jobs.NewJob{CampaignID: 2, SourceTable: "chapters", SourceID: 5, SourceField: "overview"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	all, err := store.ListJobs(ctx, jobs.JobFilter{})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(all) != 2 || all[0].ID != second.ID {
		t.Fatalf("expected newest first, got %+v", all)
	}
	completed, _ := store.ListJobs(ctx, jobs.JobFilter{Status: jobs.StatusCompleted})
	if len(completed) != 1 || completed[0].ID != first.ID {
		t.Fatalf("expected only the completed job, got %+v", completed)
	}
	latest, err := store.LatestJobForSource(ctx, 1, "sessions", 10, "notes")
	if err != nil || latest == nil || latest.ID != first.ID {
		t.Fatalf("LatestJobForSource = %+v, %v", latest, err)
	}
	none, err := store.LatestJobForSource(ctx, 9, "sessions", 10, "notes")
	if err != nil || none != nil {
		t.Fatalf("expected no job, got %+v, %v", none, err)
	}
}

func TestClaimJobForSourceConcurrentCallersGetOneJob(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	spec := jobs.NewJob{CampaignID: 1, SourceTable: "sessions", SourceID: 10, SourceField: "notes", Content: "text"}

	const callers = 8
	ids := make(chan int64, callers)
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := store.ClaimJobForSource(ctx, spec)
			if err != nil {
				errs <- err
				return
			}
			ids <- job.ID
		}()
	}
	wg.Wait()
	close(ids)
	close(errs)
	for err := range errs {
		t.Fatalf("ClaimJobForSource: %v", err)
	}
	seen := map[int64]bool{}
	for id := range ids {
		seen[id] = true
	}
	if len(seen) != 1 {
		t.Fatalf("expected every caller to claim the same job, got %v", seen)
	}

	list, err := store.ListJobs(ctx, jobs.JobFilter{CampaignID: 1})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one stored job, got %d", len(list))
	}
}

func TestCancelRunMatchesOnlyOwningRun(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	job, _ := analyzedJob(t, store, mention("Viktor", 0, 1))

	if ok, err := store.CancelRun(ctx, job.ID, "run-1"); err != nil || ok {
		t.Fatalf("expected no-op without a run, got %v, %v", ok, err)
	}
	if _, err := store.BeginEnrichment(ctx, job.ID, "run-1"); err != nil {
		t.Fatalf("BeginEnrichment: %v", err)
	}
	if ok, err := store.CancelRun(ctx, job.ID, "run-other"); err != nil || ok {
		t.Fatalf("expected stale run id to be ignored, got %v, %v", ok, err)
	}
	if ok, err := store.CancelRun(ctx, job.ID, "run-1"); err != nil || !ok {
		t.Fatalf("CancelRun = %v, %v", ok, err)
	}
	after, _ := store.GetJob(ctx, job.ID)
	if after.Status != jobs.StatusCancelled || after.EnrichmentRunning() {
		t.Fatalf("expected cancelled job, got %+v", after)
	}
}
