package reputation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmit_LazyCreatesOnProbation(t *testing.T) {
	r := New()
	decision, actor := r.Admit("10.0.0.7")
	assert.Equal(t, Allow, decision)
	assert.Equal(t, Probation, actor.Status)
	assert.Equal(t, 1, r.Count())
}

func TestBanIsTerminal(t *testing.T) {
	r := New()
	_, actor := r.Admit("10.0.0.8")

	for i := 0; i < maxFailures; i++ {
		banned := r.RecordFailure(actor)
		assert.False(t, banned)
	}
	// the 6th failure (count=6 > 5) bans
	banned := r.RecordFailure(actor)
	assert.True(t, banned)
	assert.Equal(t, Banned, actor.Status)

	decision, _ := r.Admit("10.0.0.8")
	assert.Equal(t, RejectBanned, decision)

	// further failures never re-report "newly banned" and never unban
	assert.False(t, r.RecordFailure(actor))
	decision, _ = r.Admit("10.0.0.8")
	assert.Equal(t, RejectBanned, decision)
}

func TestRecordSuccess_DoesNotPromote(t *testing.T) {
	r := New()
	_, actor := r.Admit("10.0.0.9")
	for i := 0; i < 100; i++ {
		r.RecordSuccess(actor)
	}
	assert.Equal(t, Probation, actor.Status)
}

func TestSnapshot(t *testing.T) {
	r := New()
	_, ok := r.Snapshot("10.0.0.1")
	assert.False(t, ok)

	_, actor := r.Admit("10.0.0.1")
	r.RecordFailure(actor)

	snap, ok := r.Snapshot("10.0.0.1")
	require.True(t, ok)
	assert.Equal(t, uint32(1), snap.Failures)
}

func TestBannedCount(t *testing.T) {
	r := New()
	_, a1 := r.Admit("1.1.1.1")
	for i := 0; i <= maxFailures; i++ {
		r.RecordFailure(a1)
	}
	r.Admit("2.2.2.2")

	assert.Equal(t, 1, r.BannedCount())
	assert.Equal(t, 2, r.Count())
}
