package guard

import (
	"context"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(t *testing.T, max int, verifier Verifier, prober Prober) (*DriftMonitor, *IdentityState) {
	t.Helper()
	identity := &IdentityState{}
	identity.Confirm("1.2.3.4", clock.NewMock().Now())
	m, err := NewDriftMonitor(MonitorConfig{
		ProbeServices:    []string{"a", "b", "c"},
		MaxMismatchCount: max,
		Port:             8080,
	}, identity, verifier, prober, clock.NewMock(), testLogger(), nil)
	require.NoError(t, err)
	return m, identity
}

func TestTickClassification(t *testing.T) {
	tests := []struct {
		name      string
		answers   map[string]string
		want      TickResult
		wantCount int
	}{
		{
			name:      "all agree",
			answers:   map[string]string{"a": "1.2.3.4", "b": "1.2.3.4", "c": "1.2.3.4"},
			want:      TickMatched,
			wantCount: 0,
		},
		{
			name:      "one disagrees",
			answers:   map[string]string{"a": "1.2.3.4", "b": "9.9.9.9", "c": "1.2.3.4"},
			want:      TickMismatched,
			wantCount: 1,
		},
		{
			name:      "only unavailable and matching",
			answers:   map[string]string{"b": "1.2.3.4"},
			want:      TickMatched,
			wantCount: 0,
		},
		{
			name:      "only unavailable and disagreeing",
			answers:   map[string]string{"c": "10.0.0.1"},
			want:      TickMismatched,
			wantCount: 1,
		},
		{
			name:      "nothing observed",
			answers:   map[string]string{},
			want:      TickInconclusive,
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prober := newFakeProber()
			for svc, addr := range tt.answers {
				prober.set(svc, addr)
			}
			m, identity := newTestMonitor(t, 3, newFakeVerifier(rejected(403)), prober)

			report := m.Tick(context.Background())

			assert.Equal(t, tt.want, report.Result)
			assert.Equal(t, tt.wantCount, report.Mismatches)
			assert.Equal(t, tt.wantCount, identity.Mismatches())
			assert.Nil(t, report.Outcome)
			assert.Len(t, report.Probes, 3)
		})
	}
}

func TestTickProbesKeepServiceOrder(t *testing.T) {
	prober := newFakeProber()
	prober.set("a", "1.2.3.4")
	prober.set("c", "1.2.3.4")
	m, _ := newTestMonitor(t, 3, newFakeVerifier(rejected(403)), prober)

	report := m.Tick(context.Background())

	require.Len(t, report.Probes, 3)
	assert.Equal(t, "a", report.Probes[0].Service)
	assert.True(t, report.Probes[0].Observed)
	assert.Equal(t, "b", report.Probes[1].Service)
	assert.False(t, report.Probes[1].Observed)
	assert.ErrorIs(t, report.Probes[1].Err, ErrProbeUnavailable)
	assert.Equal(t, "c", report.Probes[2].Service)
}

func TestTickEscalatesAtThreshold(t *testing.T) {
	prober := newFakeProber()
	prober.setAll([]string{"a", "b", "c"}, "9.9.9.9")
	verifier := newFakeVerifier(confirmed("9.9.9.9"))
	m, identity := newTestMonitor(t, 2, verifier, prober)

	first := m.Tick(context.Background())
	assert.Equal(t, TickMismatched, first.Result)
	assert.Equal(t, 0, verifier.Calls())

	second := m.Tick(context.Background())
	assert.Equal(t, TickEscalatedRecovered, second.Result)
	require.NotNil(t, second.Outcome)
	assert.True(t, second.Outcome.Confirmed())
	assert.Equal(t, []int{8080}, verifier.ports)
	assert.Equal(t, 0, second.Mismatches)
	assert.Equal(t, "9.9.9.9", identity.Address())
}

func TestTickEscalationFailureLeavesIdentity(t *testing.T) {
	prober := newFakeProber()
	prober.setAll([]string{"a", "b", "c"}, "9.9.9.9")
	m, identity := newTestMonitor(t, 1, newFakeVerifier(rejected(403)), prober)

	report := m.Tick(context.Background())

	assert.Equal(t, TickEscalatedFailed, report.Result)
	require.NotNil(t, report.Outcome)
	assert.ErrorIs(t, report.Outcome.Err(), ErrRejected)
	assert.Equal(t, "1.2.3.4", identity.Address())
	assert.Equal(t, 1, report.Mismatches)
}

func TestIdentityConfirmClearsCounter(t *testing.T) {
	var s IdentityState
	s.RecordMismatch()
	s.RecordMismatch()
	require.Equal(t, 2, s.Mismatches())

	at := clock.NewMock().Now()
	s.Confirm("5.6.7.8", at)

	snap := s.Snapshot()
	assert.Equal(t, "5.6.7.8", snap.Address)
	assert.Equal(t, 0, snap.Mismatches)
	assert.Equal(t, at, snap.VerifiedAt)
}
