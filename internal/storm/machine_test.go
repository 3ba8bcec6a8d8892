package storm

import (
	"testing"
	"time"

	"github.com/couchcryptid/storm-lightning-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, time.July, 4, 18, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return t0.Add(time.Duration(sec) * time.Second)
}

func newTestMachine() (*Machine, *domain.History) {
	h := domain.NewHistory(domain.DefaultHistoryCapacity)
	return NewMachine(DefaultConfig(), h), h
}

// strike records a strike and feeds it to the machine, like the engine does.
func strike(m *Machine, h *domain.History, sec int) (Signal, bool) {
	h.Record(domain.Strike{OccurredAt: at(sec), DistanceKM: 12, Energy: 1000})
	return m.OnEvent(at(sec))
}

func TestOnEvent_StartsAtThirdStrike(t *testing.T) {
	m, h := newTestMachine()

	_, started := strike(m, h, 0)
	assert.False(t, started)
	_, started = strike(m, h, 100)
	assert.False(t, started)
	assert.False(t, m.Session().Active)

	sig, started := strike(m, h, 200)
	require.True(t, started)
	assert.Equal(t, SignalStarted, sig.Kind)
	assert.Equal(t, at(0), sig.Start)

	s := m.Session()
	assert.True(t, s.Active)
	assert.Equal(t, at(0), s.Start, "start is the earliest strike in the window")
	assert.Equal(t, at(200), s.LastActivity)
}

func TestOnEvent_StrikesOutsideWindowDoNotCount(t *testing.T) {
	m, h := newTestMachine()

	strike(m, h, 0)
	strike(m, h, 700) // first strike has left the 600s window
	_, started := strike(m, h, 800)
	require.True(t, started)
	assert.Equal(t, at(700), m.Session().Start)
}

func TestOnEvent_ActiveOnlyExtendsActivity(t *testing.T) {
	m, h := newTestMachine()
	for _, sec := range []int{0, 100, 200} {
		strike(m, h, sec)
	}

	_, started := strike(m, h, 900)
	assert.False(t, started)
	s := m.Session()
	assert.Equal(t, at(0), s.Start)
	assert.Equal(t, at(900), s.LastActivity)
}

func TestTick_EndsAfterGapThenSummarizesOnce(t *testing.T) {
	m, h := newTestMachine()
	for _, sec := range []int{0, 100, 200} {
		strike(m, h, sec)
	}
	last := 200
	gap := int(DefaultConfig().GapToEnd.Seconds())
	delay := int(DefaultConfig().SummaryDelay.Seconds())

	assert.Empty(t, m.Tick(at(last+gap-1)))
	assert.True(t, m.Session().Active)

	sigs := m.Tick(at(last + gap + 1))
	require.Len(t, sigs, 1)
	assert.Equal(t, Signal{Kind: SignalEnded, Start: at(0), End: at(last)}, sigs[0])
	s := m.Session()
	assert.False(t, s.Active)
	assert.Equal(t, at(last), s.End)
	assert.True(t, s.AwaitingSummary())

	assert.Empty(t, m.Tick(at(last+delay-1)), "summary waits for the full delay")

	sigs = m.Tick(at(last + gap + delay + 1))
	require.Len(t, sigs, 1)
	assert.Equal(t, Signal{Kind: SignalSummaryDue, Start: at(0), End: at(last)}, sigs[0])
	assert.Equal(t, at(last+gap+delay+1), m.Session().SummaryPostedAt)

	assert.Empty(t, m.Tick(at(last+gap+delay+100)), "summary is one-shot")
}

func TestTick_EndAndSummaryInSameTick(t *testing.T) {
	h := domain.NewHistory(100)
	m := NewMachine(Config{MinStrikes: 1, Window: time.Minute, GapToEnd: time.Minute, SummaryDelay: 30 * time.Second}, h)
	strike(m, h, 0)

	sigs := m.Tick(at(60))
	require.Len(t, sigs, 2)
	assert.Equal(t, SignalEnded, sigs[0].Kind)
	assert.Equal(t, SignalSummaryDue, sigs[1].Kind)
}

func TestTick_IdleMachineIsQuiet(t *testing.T) {
	m, _ := newTestMachine()
	assert.Empty(t, m.Tick(at(100000)))
}

func TestOnEvent_NewSessionClearsSummaryMarker(t *testing.T) {
	m, h := newTestMachine()
	for _, sec := range []int{0, 100, 200} {
		strike(m, h, sec)
	}
	m.Tick(at(200 + 1201))
	m.Tick(at(200 + 1201 + 3600))
	require.False(t, m.Session().SummaryPostedAt.IsZero())

	base := 10000
	for _, sec := range []int{base, base + 10, base + 20} {
		strike(m, h, sec)
	}
	s := m.Session()
	assert.True(t, s.Active)
	assert.Equal(t, at(base), s.Start)
	assert.True(t, s.SummaryPostedAt.IsZero())
	assert.True(t, s.End.IsZero())
}

func TestSignalKind_String(t *testing.T) {
	assert.Equal(t, "start", SignalStarted.String())
	assert.Equal(t, "end", SignalEnded.String())
	assert.Equal(t, "summary_due", SignalSummaryDue.String())
	assert.Equal(t, "unknown", SignalKind(0).String())
}
