package review_test

import (
	"context"
	"encoding/json"
	"testing"

	"loreweave/internal/campaign"
	"loreweave/internal/detector"
	"loreweave/internal/jobs"
	"loreweave/internal/logging"
	"loreweave/internal/review"
	"loreweave/internal/services"
	"loreweave/internal/testsupport"
)

type harness struct {
	f       *testsupport.Fixture
	service *review.Service
	job     *jobs.Job
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	f := testsupport.NewFixture(t)
	return &harness{f: f, service: review.NewService(f.Jobs, f.Campaign, f.Campaign, logging.NewNop())}
}

func detection(detectionType detector.Type, text string, start int, entityID *int64) jobs.NewItem {
	end := start + len([]rune(text))
	similarity := 0.8
	return jobs.NewItem{
		DetectionType:  detectionType,
		MatchedText:    text,
		EntityID:       entityID,
		Similarity:     &similarity,
		ContextSnippet: text,
		PositionStart:  &start,
		PositionEnd:    &end,
	}
}

func (h *harness) analyze(t *testing.T, items ...jobs.NewItem) []*jobs.Item {
	t.Helper()
	ctx := context.Background()
	job, err := h.f.Jobs.CreateJob(ctx, jobs.NewJob{CampaignID: 1, SourceTable: "sessions", SourceID: 10, SourceField: "notes"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := h.f.Jobs.BeginIdentification(ctx, job.ID, "notes"); err != nil {
		t.Fatalf("BeginIdentification: %v", err)
	}
	stored, job, err := h.f.Jobs.RecordDetections(ctx, job.ID, items)
	if err != nil {
		t.Fatalf("RecordDetections: %v", err)
	}
	h.job = job
	return stored
}

func (h *harness) enrich(t *testing.T, items ...jobs.NewItem) []*jobs.Item {
	t.Helper()
	ctx := context.Background()
	if _, err := h.f.Jobs.BeginEnrichment(ctx, h.job.ID, "run"); err != nil {
		t.Fatalf("BeginEnrichment: %v", err)
	}
	if ok, err := h.f.Jobs.CompleteEnrichment(ctx, h.job.ID, "run", items); err != nil || !ok {
		t.Fatalf("CompleteEnrichment = %v, %v", ok, err)
	}
	stored, err := h.f.Jobs.ListItems(ctx, h.job.ID, jobs.ItemFilter{Phase: jobs.PhaseEnrichment})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	return stored
}

func suggestion(t *testing.T, detectionType detector.Type, entityID int64, payload any) jobs.NewItem {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	id := entityID
	return jobs.NewItem{DetectionType: detectionType, MatchedText: "suggestion", EntityID: &id, SuggestedContent: raw}
}

func mustEntity(t *testing.T, store campaign.EntityStore, id int64) *campaign.Entity {
	t.Helper()
	entity, err := store.GetEntity(context.Background(), id)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	return entity
}

func TestAcceptPotentialAliasRecordsAlias(t *testing.T) {
	h := newHarness(t)
	inn := testsupport.NewEntity(t, h.f.Campaign, 1, "location", "Silver Fox Inn")
	items := h.analyze(t, detection(detector.TypePotentialAlias, "Silver Fox", 20, &inn.ID))

	resolved, err := h.service.ResolveItem(context.Background(), items[0].ID, review.ResolveRequest{Resolution: jobs.ResolutionAccepted})
	if err != nil {
		t.Fatalf("ResolveItem: %v", err)
	}
	if resolved.Resolution != jobs.ResolutionAccepted || resolved.ResolvedEntityID == nil || *resolved.ResolvedEntityID != inn.ID {
		t.Fatalf("unexpected resolved item %+v", resolved)
	}
	updated := mustEntity(t, h.f.Campaign, inn.ID)
	if len(updated.Aliases) != 1 || updated.Aliases[0] != "Silver Fox" {
		t.Fatalf("expected alias recorded, got %v", updated.Aliases)
	}
}

func TestAcceptRequiresLinkedEntity(t *testing.T) {
	h := newHarness(t)
	items := h.analyze(t, detection(detector.TypeWikiLinkUnresolved, "Thornwall Keep", 0, nil))

	_, err := h.service.ResolveItem(context.Background(), items[0].ID, review.ResolveRequest{Resolution: jobs.ResolutionAccepted})
	if services.Kind(err) != "invalid_state" {
		t.Fatalf("expected invalid_state, got %v", err)
	}
	item, _ := h.f.Jobs.GetItem(context.Background(), items[0].ID)
	if !item.IsPending() {
		t.Fatalf("expected item to stay pending, got %s", item.Resolution)
	}
}

func TestResolveNewEntityCreatesEntity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	items := h.analyze(t, detection(detector.TypeWikiLinkUnresolved, "Thornwall Keep", 0, nil))

	if _, err := h.service.ResolveItem(ctx, items[0].ID, review.ResolveRequest{Resolution: jobs.ResolutionNewEntity, EntityType: "location"}); services.Kind(err) != "validation" {
		t.Fatalf("expected validation error without name, got %v", err)
	}

	resolved, err := h.service.ResolveItem(ctx, items[0].ID, review.ResolveRequest{
		Resolution: jobs.ResolutionNewEntity,
		EntityType: "Location",
		EntityName: "Thornwall Keep",
	})
	if err != nil {
		t.Fatalf("ResolveItem: %v", err)
	}
	if resolved.ResolvedEntityID == nil {
		t.Fatal("expected resolved entity id")
	}
	created := mustEntity(t, h.f.Campaign, *resolved.ResolvedEntityID)
	if created.Name != "Thornwall Keep" || created.Type != "location" || created.CampaignID != 1 {
		t.Fatalf("unexpected entity %+v", created)
	}

	if _, err := h.service.ResolveItem(ctx, items[0].ID, review.ResolveRequest{Resolution: jobs.ResolutionDismissed}); services.Kind(err) != "already_resolved" {
		t.Fatalf("expected already_resolved, got %v", err)
	}
}

func TestNewEntityUnsupportedForEnrichmentItems(t *testing.T) {
	h := newHarness(t)
	viktor := testsupport.NewEntity(t, h.f.Campaign, 1, "npc", "Viktor")
	h.analyze(t, detection(detector.TypeUntaggedMention, "Viktor", 0, &viktor.ID))
	items := h.enrich(t, suggestion(t, detector.TypeLogEntry, viktor.ID, jobs.LogEntrySuggestion{EntityID: viktor.ID, Entry: "Met the party."}))

	_, err := h.service.ResolveItem(context.Background(), items[0].ID, review.ResolveRequest{
		Resolution: jobs.ResolutionNewEntity, EntityType: "npc", EntityName: "Someone",
	})
	if services.Kind(err) != "unsupported_resolution" {
		t.Fatalf("expected unsupported_resolution, got %v", err)
	}
}

func TestAcceptDescriptionUpdateHonoursOverride(t *testing.T) {
	h := newHarness(t)
	viktor := testsupport.NewEntity(t, h.f.Campaign, 1, "npc", "Viktor")
	h.analyze(t, detection(detector.TypeUntaggedMention, "Viktor", 0, &viktor.ID))
	items := h.enrich(t, suggestion(t, detector.TypeDescriptionUpdate, viktor.ID,
		jobs.DescriptionSuggestion{EntityID: viktor.ID, Description: "A smuggler."}))

	_, err := h.service.ResolveItem(context.Background(), items[0].ID, review.ResolveRequest{
		Resolution: jobs.ResolutionAccepted,
		Override:   json.RawMessage(`{"description":"A reformed smuggler."}`),
	})
	if err != nil {
		t.Fatalf("ResolveItem: %v", err)
	}
	if got := mustEntity(t, h.f.Campaign, viktor.ID).Description; got != "A reformed smuggler." {
		t.Fatalf("unexpected description %q", got)
	}
	job, _ := h.f.Jobs.GetJob(context.Background(), h.job.ID)
	if job.EnrichmentResolved != 1 || job.ResolvedItems != 0 {
		t.Fatalf("expected enrichment counter only, got enrichment=%d identification=%d", job.EnrichmentResolved, job.ResolvedItems)
	}
}

func TestAcceptRelationshipSkipsExisting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	viktor := testsupport.NewEntity(t, h.f.Campaign, 1, "npc", "Viktor")
	elowen := testsupport.NewEntity(t, h.f.Campaign, 1, "npc", "Elowen")
	h.analyze(t, detection(detector.TypeUntaggedMention, "Viktor", 0, &viktor.ID))
	payload := jobs.RelationshipSuggestion{SourceEntityID: viktor.ID, TargetEntityID: elowen.ID, RelationshipType: "ally of"}
	reversed := jobs.RelationshipSuggestion{SourceEntityID: elowen.ID, TargetEntityID: viktor.ID, RelationshipType: "Ally Of"}
	items := h.enrich(t,
		suggestion(t, detector.TypeRelationshipSuggestion, viktor.ID, payload),
		suggestion(t, detector.TypeRelationshipSuggestion, elowen.ID, reversed),
	)

	for _, item := range items {
		if _, err := h.service.ResolveItem(ctx, item.ID, review.ResolveRequest{Resolution: jobs.ResolutionAccepted}); err != nil {
			t.Fatalf("ResolveItem %d: %v", item.ID, err)
		}
	}
	rels, err := h.f.Campaign.ListRelationships(ctx, []int64{viktor.ID})
	if err != nil {
		t.Fatalf("ListRelationships: %v", err)
	}
	if len(rels) != 1 || rels[0].Type != "ally_of" {
		t.Fatalf("expected a single ally_of relationship, got %+v", rels)
	}
}

func TestBatchResolveAcceptsWithSideEffectsAndIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	brannoc := testsupport.NewEntity(t, h.f.Campaign, 1, "npc", "Brannoc")
	h.analyze(t,
		detection(detector.TypeMisspelling, "Brannok", 0, &brannoc.ID),
		detection(detector.TypeMisspelling, "Branoc", 30, &brannoc.ID),
		detection(detector.TypeUntaggedMention, "Brannoc", 60, &brannoc.ID),
	)

	result, err := h.service.BatchResolve(ctx, h.job.ID, detector.TypeMisspelling, jobs.ResolutionAccepted)
	if err != nil {
		t.Fatalf("BatchResolve: %v", err)
	}
	if result.ResolvedCount != 2 {
		t.Fatalf("expected 2 resolved, got %d", result.ResolvedCount)
	}
	again, err := h.service.BatchResolve(ctx, h.job.ID, detector.TypeMisspelling, jobs.ResolutionAccepted)
	if err != nil || again.ResolvedCount != 0 {
		t.Fatalf("expected idempotent second call, got %+v, %v", again, err)
	}
	if aliases := mustEntity(t, h.f.Campaign, brannoc.ID).Aliases; len(aliases) != 2 {
		t.Fatalf("expected both spellings recorded, got %v", aliases)
	}
	job, _ := h.f.Jobs.GetJob(ctx, h.job.ID)
	if job.ResolvedItems != 2 || job.TotalItems != 3 {
		t.Fatalf("unexpected counters %d/%d", job.ResolvedItems, job.TotalItems)
	}

	dismissed, err := h.service.BatchResolve(ctx, h.job.ID, detector.TypeUntaggedMention, jobs.ResolutionDismissed)
	if err != nil || dismissed.ResolvedCount != 1 {
		t.Fatalf("expected 1 dismissed, got %+v, %v", dismissed, err)
	}
	if _, err := h.service.BatchResolve(ctx, h.job.ID, detector.TypeUntaggedMention, jobs.ResolutionNewEntity); services.Kind(err) != "unsupported_resolution" {
		t.Fatalf("expected unsupported_resolution, got %v", err)
	}
}

func TestRevertKeepsSideEffectsAndRestoresCounter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inn := testsupport.NewEntity(t, h.f.Campaign, 1, "location", "Silver Fox Inn")
	items := h.analyze(t, detection(detector.TypePotentialAlias, "Silver Fox", 20, &inn.ID))

	if _, err := h.service.RevertItem(ctx, items[0].ID); services.Kind(err) != "not_resolved" {
		t.Fatalf("expected not_resolved, got %v", err)
	}
	if _, err := h.service.ResolveItem(ctx, items[0].ID, review.ResolveRequest{Resolution: jobs.ResolutionAccepted}); err != nil {
		t.Fatalf("ResolveItem: %v", err)
	}
	reverted, err := h.service.RevertItem(ctx, items[0].ID)
	if err != nil {
		t.Fatalf("RevertItem: %v", err)
	}
	if !reverted.IsPending() || reverted.ResolvedEntityID != nil || reverted.ResolvedAt != nil {
		t.Fatalf("expected pending item, got %+v", reverted)
	}
	job, _ := h.f.Jobs.GetJob(ctx, h.job.ID)
	if job.ResolvedItems != 0 {
		t.Fatalf("expected counter restored, got %d", job.ResolvedItems)
	}
	if aliases := mustEntity(t, h.f.Campaign, inn.ID).Aliases; len(aliases) != 1 {
		t.Fatalf("expected alias kept after revert, got %v", aliases)
	}
}

func TestPendingCount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	viktor := testsupport.NewEntity(t, h.f.Campaign, 1, "npc", "Viktor")
	items := h.analyze(t,
		detection(detector.TypeUntaggedMention, "Viktor", 0, &viktor.ID),
		detection(detector.TypeUntaggedMention, "Viktor", 20, &viktor.ID),
	)
	if _, err := h.service.ResolveItem(ctx, items[0].ID, review.ResolveRequest{Resolution: jobs.ResolutionDismissed}); err != nil {
		t.Fatalf("ResolveItem: %v", err)
	}

	count, err := h.service.PendingCount(ctx, jobs.PendingFilter{CampaignID: 1, SourceTable: "sessions"})
	if err != nil || count != 1 {
		t.Fatalf("PendingCount = %d, %v", count, err)
	}
	other, err := h.service.PendingCount(ctx, jobs.PendingFilter{CampaignID: 2})
	if err != nil || other != 0 {
		t.Fatalf("expected no pending items for another campaign, got %d, %v", other, err)
	}
	if _, err := h.service.PendingCount(ctx, jobs.PendingFilter{}); services.Kind(err) != "validation" {
		t.Fatalf("expected validation error, got %v", err)
	}
}
