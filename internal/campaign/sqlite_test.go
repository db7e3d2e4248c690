package campaign_test

import (
	"context"
	"errors"
	"testing"

	"loreweave/internal/campaign"
	"loreweave/internal/services"
	"loreweave/internal/testsupport"
)

func TestCreateAndListEntities(t *testing.T) {
	fx := testsupport.NewFixture(t)
	ctx := context.Background()

	inn := testsupport.NewEntity(t, fx.Campaign, 1, "Location", "Silver Fox Inn", "the Fox", "silver fox inn")
	testsupport.NewEntity(t, fx.Campaign, 1, "npc", "Viktor")
	testsupport.NewEntity(t, fx.Campaign, 2, "npc", "Elowen")

	if inn.Type != "location" {
		t.Fatalf("expected lowercased type, got %q", inn.Type)
	}
	if len(inn.Aliases) != 1 || inn.Aliases[0] != "the Fox" {
		t.Fatalf("expected alias equal to name to be dropped, got %v", inn.Aliases)
	}

	list, err := fx.Campaign.ListEntities(ctx, 1)
	if err != nil {
		t.Fatalf("ListEntities: %v", err)
	}
	if len(list) != 2 || list[0].Name != "Silver Fox Inn" || list[1].Name != "Viktor" {
		t.Fatalf("unexpected entities %+v", list)
	}
}

func TestCreateEntityValidates(t *testing.T) {
	fx := testsupport.NewFixture(t)
	_, err := fx.Campaign.CreateEntity(context.Background(), campaign.NewEntity{CampaignID: 1, Name: "Nameless"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAddAliasSkipsDuplicates(t *testing.T) {
	fx := testsupport.NewFixture(t)
	ctx := context.Background()
	viktor := testsupport.NewEntity(t, fx.Campaign, 1, "npc", "Viktor")

	for _, alias := range []string{"Vik", "vik", "VIKTOR", "Viktr"} {
		if err := fx.Campaign.AddAlias(ctx, viktor.ID, alias); err != nil {
			t.Fatalf("AddAlias(%q): %v", alias, err)
		}
	}
	got, err := fx.Campaign.GetEntity(ctx, viktor.ID)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if len(got.Aliases) != 2 || got.Aliases[0] != "Vik" || got.Aliases[1] != "Viktr" {
		t.Fatalf("unexpected aliases %v", got.Aliases)
	}
	if err := fx.Campaign.AddAlias(ctx, 999, "ghost"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateDescription(t *testing.T) {
	fx := testsupport.NewFixture(t)
	ctx := context.Background()
	viktor := testsupport.NewEntity(t, fx.Campaign, 1, "npc", "Viktor")

	if err := fx.Campaign.UpdateDescription(ctx, viktor.ID, "  A smuggler with debts. "); err != nil {
		t.Fatalf("UpdateDescription: %v", err)
	}
	got, _ := fx.Campaign.GetEntity(ctx, viktor.ID)
	if got.Description != "A smuggler with debts." {
		t.Fatalf("unexpected description %q", got.Description)
	}
	if err := fx.Campaign.UpdateDescription(ctx, 999, "x"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRelationships(t *testing.T) {
	fx := testsupport.NewFixture(t)
	ctx := context.Background()
	viktor := testsupport.NewEntity(t, fx.Campaign, 1, "npc", "Viktor")
	inn := testsupport.NewEntity(t, fx.Campaign, 1, "location", "Silver Fox Inn")
	elowen := testsupport.NewEntity(t, fx.Campaign, 1, "npc", "Elowen")

	rel, err := fx.Campaign.CreateRelationship(ctx, campaign.NewRelationship{
		CampaignID: 1, SourceEntityID: viktor.ID, TargetEntityID: inn.ID, Type: "Works At", Description: "Bartender",
	})
	if err != nil {
		t.Fatalf("CreateRelationship: %v", err)
	}
	if rel.Type != "works_at" {
		t.Fatalf("expected normalized type, got %q", rel.Type)
	}
	again, err := fx.Campaign.CreateRelationship(ctx, campaign.NewRelationship{
		CampaignID: 1, SourceEntityID: viktor.ID, TargetEntityID: inn.ID, Type: "works_at",
	})
	if err != nil {
		t.Fatalf("duplicate CreateRelationship: %v", err)
	}
	if again.ID != rel.ID {
		t.Fatalf("expected existing relationship to be returned, got %d vs %d", again.ID, rel.ID)
	}

	exists, err := fx.Campaign.RelationshipExists(ctx, inn.ID, viktor.ID, "WORKS AT")
	if err != nil || !exists {
		t.Fatalf("expected reverse lookup to find relationship, got %v, %v", exists, err)
	}
	exists, _ = fx.Campaign.RelationshipExists(ctx, viktor.ID, elowen.ID, "works_at")
	if exists {
		t.Fatal("expected no relationship to Elowen")
	}

	list, err := fx.Campaign.ListRelationships(ctx, []int64{inn.ID})
	if err != nil || len(list) != 1 {
		t.Fatalf("ListRelationships = %+v, %v", list, err)
	}
	if _, err := fx.Campaign.CreateRelationship(ctx, campaign.NewRelationship{CampaignID: 1, SourceEntityID: viktor.ID, TargetEntityID: viktor.ID, Type: "self"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for self relationship, got %v", err)
	}
}
