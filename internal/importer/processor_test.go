package importer

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycrm/api/internal/store"
)

const actingUser = "0e8f9c5a-2f63-4d4e-9f8a-67e5f2a4b8d1"

func newTestProcessor() (*Processor, *store.Memory) {
	mem := store.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewProcessor(mem, logger), mem
}

func runImport(t *testing.T, p *Processor, recordType RecordType, text string) Result {
	t.Helper()
	result, err := p.ProcessCSV(context.Background(), text, Options{
		RecordType:   recordType,
		ActingUserID: actingUser,
	})
	require.NoError(t, err)
	return result
}

func TestImportLeadsExampleScenario(t *testing.T) {
	p, mem := newTestProcessor()

	result := runImport(t, p, TypeLead,
		"Lead Name,Company Name,Status\n"+
			"Jane Doe,Acme Inc,new\n"+
			",Acme Inc,Contacted\n")

	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 1, result.Errors)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, "Row 3: Lead Name is required", result.Messages[0])

	leads, err := mem.Select(context.Background(), "leads", store.Filter{})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "New", leads[0].String("status"), "status is case-normalized to canonical casing")
	assert.Equal(t, actingUser, leads[0].String("created_by"))
}

func TestPartialFailureIsolation(t *testing.T) {
	p, _ := newTestProcessor()

	text := "First Name,Last Name,Company\n"
	for i := 0; i < 9; i++ {
		text += "Person,Number" + string(rune('A'+i)) + ",Acme\n"
	}
	text += ",Missing,Acme\n"

	result := runImport(t, p, TypeContact, text)
	assert.Equal(t, 9, result.Success)
	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 0, result.Duplicates)
}

func TestCountsSumToRowsAttempted(t *testing.T) {
	p, _ := newTestProcessor()

	text := "First Name,Last Name,Company\n" +
		"Ada,Lovelace,Analytical\n" +
		"Ada,Lovelace,Analytical\n" +
		",Nobody,Acme\n" +
		"Grace,Hopper,Navy\n"

	result := runImport(t, p, TypeContact, text)
	total := result.Success + result.Updated + result.Duplicates + result.Errors
	assert.Equal(t, 4, total)
}

func TestContactDuplicatesSkippedWithinOneRun(t *testing.T) {
	p, mem := newTestProcessor()

	// The second row must observe the first row's insert: rows are
	// processed sequentially, never in parallel.
	result := runImport(t, p, TypeContact,
		"First Name,Last Name,Company\n"+
			"Jane,Doe,Acme\n"+
			"JANE,DOE,ACME\n")

	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, 0, result.Errors)
	assert.Equal(t, 1, mem.Count("contacts"))
}

func TestDealReimportIsIdempotent(t *testing.T) {
	p, mem := newTestProcessor()

	text := "Deal Name,Company,Stage,Amount\n" +
		"Acme Renewal,Acme,Negotiation,1200\n" +
		"Globex Pilot,Globex,Prospecting,300\n"

	first := runImport(t, p, TypeDeal, text)
	assert.Equal(t, 2, first.Success)
	assert.Equal(t, 0, first.Updated)

	second := runImport(t, p, TypeDeal, text)
	assert.Equal(t, 0, second.Success)
	assert.Equal(t, 2, second.Updated)
	assert.Equal(t, 2, mem.Count("deals"))
}

func TestDealInvalidDateRejectsWholeRow(t *testing.T) {
	p, mem := newTestProcessor()

	result := runImport(t, p, TypeDeal,
		"Deal Name,Stage,Start Date\n"+
			"Broken Deal,Proposal,not-a-date\n")

	assert.Equal(t, 0, result.Success)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 1, result.Errors)
	require.Len(t, result.Messages, 1)
	assert.Contains(t, result.Messages[0], "Row 2:")
	assert.Equal(t, 0, mem.Count("deals"), "no partial record is written")
}

func TestDealPriorityClampedNotRejected(t *testing.T) {
	p, mem := newTestProcessor()

	result := runImport(t, p, TypeDeal,
		"Deal Name,Stage,Priority\n"+
			"Hot Deal,Proposal,99\n")

	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 0, result.Errors)

	deals, err := mem.Select(context.Background(), "deals", store.Filter{})
	require.NoError(t, err)
	require.Len(t, deals, 1)
	assert.Equal(t, 5, deals[0]["priority"])
}

func TestLeadExplicitIDStrategy(t *testing.T) {
	p, mem := newTestProcessor()
	ctx := context.Background()

	seeded, err := mem.Insert(ctx, "leads", store.Record{
		"lead_name": "Old Name",
		"company":   "Acme",
		"status":    "New",
	})
	require.NoError(t, err)
	existingID := seeded.ID()

	suppliedID := "3e7e1c3a-92f1-4a52-8f5f-0b8ad1c20a11"
	result := runImport(t, p, TypeLead,
		"ID,Lead Name,Status\n"+
			existingID+",Renamed Lead,Contacted\n"+
			suppliedID+",Brand New,Qualified\n"+
			",No Id Given,New\n")

	assert.Equal(t, 2, result.Success)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 0, result.Errors)

	updated, err := mem.Select(ctx, "leads", store.Filter{Eq: map[string]any{"id": existingID}})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, "Renamed Lead", updated[0].String("lead_name"))

	inserted, err := mem.Select(ctx, "leads", store.Filter{Eq: map[string]any{"id": suppliedID}})
	require.NoError(t, err)
	require.Len(t, inserted, 1, "unknown supplied id inserts with that id preserved")

	assert.Equal(t, 3, mem.Count("leads"))
}

func TestOwnerResolution(t *testing.T) {
	p, mem := newTestProcessor()
	ctx := context.Background()

	jane, err := mem.Insert(ctx, "users", store.Record{
		"email":        "jane@example.com",
		"display_name": "Jane",
		"full_name":    "Jane Doe",
	})
	require.NoError(t, err)

	passthroughID := "b5c2f0a9-4f1e-4e53-8a7d-9d2f3c1e0b42"
	result := runImport(t, p, TypeDeal,
		"Deal Name,Stage,Owner\n"+
			"By Email,Proposal,JANE@EXAMPLE.COM\n"+
			"By Full Name,Proposal,jane doe\n"+
			"By UUID,Proposal,"+passthroughID+"\n"+
			"Unknown Owner,Proposal,Nobody Here\n"+
			"Blank Owner,Proposal,\n")
	assert.Equal(t, 5, result.Success)

	deals, err := mem.Select(ctx, "deals", store.Filter{})
	require.NoError(t, err)
	byName := map[string]string{}
	for _, deal := range deals {
		byName[deal.String("deal_name")] = deal.String("owner_id")
	}
	assert.Equal(t, jane.ID(), byName["By Email"])
	assert.Equal(t, jane.ID(), byName["By Full Name"])
	assert.Equal(t, passthroughID, byName["By UUID"])
	assert.Equal(t, actingUser, byName["Unknown Owner"])
	assert.Equal(t, actingUser, byName["Blank Owner"])
}

func TestActionItemsReplacedNotAppended(t *testing.T) {
	p, mem := newTestProcessor()
	ctx := context.Background()

	first := "Deal Name,Stage,Action Items\n" +
		"Acme Renewal,Proposal,\"[{\"\"title\"\":\"\"Call\"\",\"\"done\"\":\"\"true\"\"},{\"\"title\"\":\"\"Email\"\"}]\"\n"
	result := runImport(t, p, TypeDeal, first)
	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 2, mem.Count("action_items"))

	second := "Deal Name,Stage,Action Items\n" +
		"Acme Renewal,Proposal,\"[{\"\"title\"\":\"\"Send contract\"\",\"\"done\"\":false}]\"\n"
	result = runImport(t, p, TypeDeal, second)
	assert.Equal(t, 1, result.Updated)

	items, err := mem.Select(ctx, "action_items", store.Filter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Send contract", items[0].String("title"))
	assert.Equal(t, false, items[0]["done"])
}

func TestProgressReporting(t *testing.T) {
	p, _ := newTestProcessor()

	text := "First Name,Last Name\n"
	for i := 0; i < 60; i++ {
		text += "Person,Row\n"
	}

	var calls [][2]int
	_, err := p.ProcessCSV(context.Background(), text, Options{
		RecordType:   TypeContact,
		ActingUserID: actingUser,
		OnProgress: func(processed, total int) {
			calls = append(calls, [2]int{processed, total})
		},
	})
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{25, 60}, {50, 60}, {60, 60}}, calls)
}

func TestFatalWhenKeyHeaderMissing(t *testing.T) {
	p, _ := newTestProcessor()

	_, err := p.ProcessCSV(context.Background(), "Company,Email\nAcme,a@b.co\n", Options{
		RecordType:   TypeContact,
		ActingUserID: actingUser,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "First Name")
}

func TestFatalWhenNoDataRows(t *testing.T) {
	p, _ := newTestProcessor()

	_, err := p.ProcessCSV(context.Background(), "Lead Name,Company\n", Options{
		RecordType:   TypeLead,
		ActingUserID: actingUser,
	})
	require.Error(t, err)

	_, err = p.ProcessCSV(context.Background(), "", Options{
		RecordType:   TypeLead,
		ActingUserID: actingUser,
	})
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestUnmappedColumnsAreDroppedNotStored(t *testing.T) {
	p, mem := newTestProcessor()

	result := runImport(t, p, TypeContact,
		"First Name,Last Name,Shoe Size\n"+
			"Jane,Doe,42\n")
	assert.Equal(t, 1, result.Success)

	contacts, err := mem.Select(context.Background(), "contacts", store.Filter{})
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	_, present := contacts[0]["shoe_size"]
	assert.False(t, present, "unmapped headers must never write into columns")
}

func TestRowMessagesFollowColumnOrder(t *testing.T) {
	p, _ := newTestProcessor()

	result := runImport(t, p, TypeDeal,
		"Deal Name,Stage,Close Date,Start Date\n"+
			"Big Deal,Proposal,not-a-date,also-bad\n")

	assert.Equal(t, 1, result.Errors)
	require.Len(t, result.Messages, 2)
	assert.Contains(t, result.Messages[0], "Close Date")
	assert.Contains(t, result.Messages[1], "Start Date")
}

func TestSharedAliasesDoNotLeakAcrossRecordTypes(t *testing.T) {
	p, mem := newTestProcessor()

	// Status, Lead Source, and Owner all resolve as aliases, but none of
	// those fields belongs to contacts. They must be dropped like any
	// unmapped header, not inserted as columns contacts does not have.
	result := runImport(t, p, TypeContact,
		"First Name,Last Name,Status,Lead Source,Owner\n"+
			"Jane,Doe,New,Referral,Sam Ops\n")
	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 0, result.Errors)

	contacts, err := mem.Select(context.Background(), "contacts", store.Filter{})
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	for _, column := range []string{"status", "source", "owner", "owner_id"} {
		_, present := contacts[0][column]
		assert.False(t, present, "contacts must not carry %s", column)
	}
}
