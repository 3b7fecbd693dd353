package badger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub/schoolhub/internal/domain/calendar"
	"github.com/schoolhub/schoolhub/internal/domain/finance"
	"github.com/schoolhub/schoolhub/internal/domain/shared"
	"github.com/schoolhub/schoolhub/internal/domain/staff"
	"github.com/schoolhub/schoolhub/internal/domain/student"
	"github.com/schoolhub/schoolhub/pkg/logger"
)

func openTest(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(Config{InMemory: true}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestStudents_InsertLoadOrder(t *testing.T) {
	b := openTest(t)
	ctx := context.Background()

	// ids sort opposite to insertion order on purpose
	for _, id := range []string{"c", "b", "a"} {
		require.NoError(t, b.Students().Insert(ctx, student.Student{ID: id, PaidMonths: []string{"January"}}))
	}

	got, err := b.Students().LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "a", got[2].ID)
	assert.Equal(t, []string{"January"}, got[0].PaidMonths)
}

func TestInsert_Duplicate(t *testing.T) {
	b := openTest(t)
	ctx := context.Background()

	require.NoError(t, b.Students().Insert(ctx, student.Student{ID: "s1"}))
	err := b.Students().Insert(ctx, student.Student{ID: "s1"})
	assert.True(t, shared.IsAlreadyExists(err))
}

func TestUpdate_KeepsPositionAndRejectsUnknown(t *testing.T) {
	b := openTest(t)
	ctx := context.Background()
	emps := b.Employees()

	require.NoError(t, emps.Insert(ctx, staff.Employee{ID: "e1", Name: "Rui"}))
	require.NoError(t, emps.Insert(ctx, staff.Employee{ID: "e2", Name: "Lia"}))
	require.NoError(t, emps.Update(ctx, staff.Employee{
		ID:     "e1",
		Name:   "Rui Lima",
		Salary: staff.Salary{Base: decimal.RequireFromString("3200.10"), Currency: "BRL"},
	}))

	err := emps.Update(ctx, staff.Employee{ID: "ghost"})
	assert.True(t, shared.IsNotFound(err))

	got, err := emps.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Rui Lima", got[0].Name)
	assert.True(t, decimal.RequireFromString("3200.10").Equal(got[0].Salary.Base))
}

func TestTransactions_AmountAndAttachment(t *testing.T) {
	b := openTest(t)
	ctx := context.Background()

	tx := finance.Transaction{
		ID:         "t1",
		Date:       time.Date(2026, 3, 1, 9, 0, 0, 0, time.FixedZone("BRT", -3*3600)),
		Amount:     decimal.RequireFromString("0.10"),
		Type:       finance.TypeIncome,
		Status:     finance.StatusCompleted,
		Attachment: &finance.Attachment{Name: "r.pdf", MimeType: "application/pdf", Data: []byte{0, 1, 2, 255}},
		StudentID:  "s1",
		PaidMonths: []string{"March"},
	}
	require.NoError(t, b.Transactions().Insert(ctx, tx))

	got, err := b.Transactions().LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, tx.Date.Equal(got[0].Date))
	assert.True(t, tx.Amount.Equal(got[0].Amount))
	require.NotNil(t, got[0].Attachment)
	assert.Equal(t, tx.Attachment.Data, got[0].Attachment.Data)
	assert.Equal(t, "s1", got[0].StudentID)
}

func TestEvents_DeleteAndInstants(t *testing.T) {
	b := openTest(t)
	ctx := context.Background()
	events := b.Events()

	start := time.Date(2026, 6, 1, 8, 0, 0, 0, time.FixedZone("X", 2*3600))
	require.NoError(t, events.Insert(ctx, calendar.Event{ID: "ev1", Start: start, End: start.Add(time.Hour)}))
	require.NoError(t, events.Insert(ctx, calendar.Event{ID: "ev2"}))
	require.NoError(t, events.Delete(ctx, "ev2"))
	assert.True(t, shared.IsNotFound(events.Delete(ctx, "ev2")))

	got, err := events.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, start.Equal(got[0].Start))
	assert.Equal(t, time.UTC, got[0].Start.Location())
}

func TestLoadAll_CancelledContext(t *testing.T) {
	b := openTest(t)
	require.NoError(t, b.Students().Insert(context.Background(), student.Student{ID: "s1"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Students().LoadAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCollectionsDoNotLeak(t *testing.T) {
	b := openTest(t)
	ctx := context.Background()

	require.NoError(t, b.Students().Insert(ctx, student.Student{ID: "x"}))
	require.NoError(t, b.Employees().Insert(ctx, staff.Employee{ID: "x"}))

	students, err := b.Students().LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, students, 1)

	txs, err := b.Transactions().LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, txs)
}
