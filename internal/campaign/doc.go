// Package campaign is the boundary to the campaign records the analysis
// subsystem reads and updates: entities (characters, locations, factions...)
// and the relationships between them.
//
// Analysis, review, and enrichment depend only on the EntityStore and
// RelationshipStore interfaces. SQLiteStore is the bundled implementation that
// keeps both in the service database so the daemon can run standalone.
package campaign
