package privilege

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dojo/internal/testutil"
)

type escalationTable struct {
	mu   sync.Mutex
	rows map[string]Escalation
}

func newEscalationTable() *escalationTable {
	return &escalationTable{rows: make(map[string]Escalation)}
}

func (t *escalationTable) SaveEscalation(_ context.Context, e Escalation) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[e.ID] = e
	return nil
}

func (t *escalationTable) GetEscalation(_ context.Context, id string) (Escalation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.rows[id]
	if !ok {
		return Escalation{}, sql.ErrNoRows
	}
	return e, nil
}

func newTestRecorder(repo EscalationRepository) *Recorder {
	clock := testutil.NewDeterministicClock()
	ids := testutil.NewSequenceGenerator("esc")
	opts := []RecorderOption{WithNow(clock.Now), WithIDs(ids.Generate)}
	if repo != nil {
		opts = append(opts, WithEscalations(repo))
	}
	return NewRecorder(nil, opts...)
}

func TestRequestEscalation(t *testing.T) {
	ctx := context.Background()
	r := newTestRecorder(nil)

	e, err := r.RequestEscalation(ctx, "s-1", Sandboxed, Desktop, "needs file access", Sandboxed)
	require.NoError(t, err)
	assert.Equal(t, Escalation{
		ID:          "esc-1",
		Subject:     "s-1",
		From:        Sandboxed,
		To:          Desktop,
		Reason:      "needs file access",
		State:       EscalationPending,
		RequestedBy: Sandboxed,
		RequestedAt: testutil.At(1),
	}, e)

	got, err := r.Escalation(ctx, "esc-1")
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestRequestEscalation_Invalid(t *testing.T) {
	ctx := context.Background()
	r := newTestRecorder(nil)

	tests := []struct {
		name     string
		subject  string
		from, to Level
	}{
		{"no subject", "", Sandboxed, Desktop},
		{"already desktop", "s-1", Desktop, Desktop},
		{"downgrade", "s-1", Desktop, Sandboxed},
		{"unknown level", "s-1", Sandboxed, Level("root")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.RequestEscalation(ctx, tt.subject, tt.from, tt.to, "", Desktop)
			assert.ErrorIs(t, err, ErrInvalidEscalation)
		})
	}
}

func TestApproveEscalation(t *testing.T) {
	ctx := context.Background()
	r := newTestRecorder(nil)

	e, err := r.RequestEscalation(ctx, "s-1", Sandboxed, Desktop, "", Sandboxed)
	require.NoError(t, err)

	_, err = r.ApproveEscalation(ctx, e.ID, Sandboxed)
	require.Error(t, err)
	assert.True(t, IsDenied(err))
	assert.Contains(t, err.Error(), "requires desktop privilege")

	pending, err := r.Escalation(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, EscalationPending, pending.State, "a refused approval leaves the request pending")

	approved, err := r.ApproveEscalation(ctx, e.ID, Desktop)
	require.NoError(t, err)
	assert.Equal(t, EscalationApproved, approved.State)
	assert.Equal(t, Desktop, approved.ApprovedBy)
	assert.Equal(t, testutil.At(2), approved.DecidedAt)

	_, err = r.ApproveEscalation(ctx, e.ID, Desktop)
	assert.ErrorIs(t, err, ErrEscalationDecided)

	_, err = r.ApproveEscalation(ctx, "esc-missing", Desktop)
	assert.ErrorIs(t, err, ErrEscalationNotFound)
}

func TestApproveEscalation_AcrossRecorders(t *testing.T) {
	ctx := context.Background()
	table := newEscalationTable()

	requester := newTestRecorder(table)
	e, err := requester.RequestEscalation(ctx, "s-1", Sandboxed, Desktop, "production", Sandboxed)
	require.NoError(t, err)

	approver := newTestRecorder(table)
	approved, err := approver.ApproveEscalation(ctx, e.ID, Desktop)
	require.NoError(t, err)
	assert.Equal(t, "s-1", approved.Subject)

	stored, err := requester.Escalation(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, EscalationApproved, stored.State, "the stored record wins over the requester's copy")
}
