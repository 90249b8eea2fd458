package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samiam2013/gpsrelay/common/gps"
	"github.com/samiam2013/gpsrelay/common/payload"
	"github.com/samiam2013/gpsrelay/common/transport"
)

const (
	fixLine   = "$GPGGA,123456,4807.038,N,01131.000,E,1,08,0.9,545.4,M,,,,"
	noFixLine = "$GPGGA,123456,,,,,0,00,,,M,,,,"
	shortLine = "$GPGGA,123456,4807.038,N"
)

// read is one scripted ReadLine result; an empty line means nothing arrived.
type read struct {
	line string
	err  error
}

type scriptedSource struct{ reads []read }

func (s *scriptedSource) ReadLine() ([]byte, bool, error) {
	if len(s.reads) == 0 {
		return nil, false, nil
	}
	r := s.reads[0]
	s.reads = s.reads[1:]
	if r.err != nil {
		return nil, false, r.err
	}
	if r.line == "" {
		return nil, false, nil
	}
	return []byte(r.line), true, nil
}

type fakeBackend struct {
	network bool
	sends   []string
	extras  []payload.Extras
	err     error
}

func (f *fakeBackend) Name() string          { return "fake" }
func (f *fakeBackend) RequiresNetwork() bool { return f.network }
func (f *fakeBackend) Encode(fix gps.Fix, extras payload.Extras) ([]byte, error) {
	f.extras = append(f.extras, extras)
	return []byte(payload.Query("http://collector.invalid/fix", fix, nil)), nil
}
func (f *fakeBackend) Send(_ context.Context, p []byte) error {
	f.sends = append(f.sends, string(p))
	return f.err
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type readiness bool

func (r readiness) Ready() bool { return bool(r) }

type toggleCounter struct{ toggles int }

func (t *toggleCounter) On()     {}
func (t *toggleCounter) Off()    {}
func (t *toggleCounter) Toggle() { t.toggles++ }

func newTestScheduler(src LineSource, b transport.Backend, clock *fakeClock) *Scheduler {
	return New(Options{
		Source:      src,
		Backend:     b,
		MinInterval: 30 * time.Second,
		Extras:      payload.Extras{{Key: payload.KeyDeviceID, Value: "RHINO01"}},
		Now:         clock.now,
	})
}

func TestStepSendsFix(t *testing.T) {
	b := &fakeBackend{}
	s := newTestScheduler(&scriptedSource{reads: []read{{line: fixLine}}}, b, &fakeClock{t: time.Unix(1000, 0)})

	assert.Equal(t, Sent, s.Step(context.Background()))
	require.Len(t, b.sends, 1)
	assert.Contains(t, b.sends[0], "lat=48.117300&lon=11.516667&satellite_count=08&horizontal_dilution=0.9&altitude_m=545.4")
	assert.Equal(t, "RHINO01", b.extras[0].Get(payload.KeyDeviceID))
	assert.Equal(t, Stats{Lines: 1, Sent: 1}, s.Stats())
}

func TestThrottle(t *testing.T) {
	tests := []struct {
		name      string
		delta     time.Duration
		wantSends int
		wantLast  Outcome
	}{
		{name: "inside interval", delta: 29 * time.Second, wantSends: 1, wantLast: Throttled},
		{name: "just inside", delta: 30*time.Second - time.Nanosecond, wantSends: 1, wantLast: Throttled},
		{name: "exactly interval", delta: 30 * time.Second, wantSends: 2, wantLast: Sent},
		{name: "after interval", delta: 45 * time.Second, wantSends: 2, wantLast: Sent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{t: time.Unix(1000, 0)}
			b := &fakeBackend{}
			s := newTestScheduler(&scriptedSource{reads: []read{{line: fixLine}, {line: fixLine}}}, b, clock)

			require.Equal(t, Sent, s.Step(context.Background()))
			clock.advance(tt.delta)
			assert.Equal(t, tt.wantLast, s.Step(context.Background()))
			assert.Len(t, b.sends, tt.wantSends)
		})
	}
}

func TestThrottleDropsRatherThanQueues(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := &fakeBackend{}
	src := &scriptedSource{}
	s := newTestScheduler(src, b, clock)

	for i := 0; i < 10; i++ {
		src.reads = append(src.reads, read{line: fixLine})
		s.Step(context.Background())
		clock.advance(time.Second)
	}
	assert.Len(t, b.sends, 1)
	assert.Equal(t, 9, s.Stats().Throttled)

	// the next eligible fix goes out on its own, nothing was buffered
	clock.advance(30 * time.Second)
	src.reads = append(src.reads, read{line: fixLine})
	assert.Equal(t, Sent, s.Step(context.Background()))
	assert.Len(t, b.sends, 2)
}

func TestFailedSendAdvancesTimestamp(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := &fakeBackend{err: errors.New("collector unreachable")}
	s := newTestScheduler(&scriptedSource{reads: []read{{line: fixLine}, {line: fixLine}, {line: fixLine}}}, b, clock)

	assert.Equal(t, SendFailed, s.Step(context.Background()))
	clock.advance(time.Second)
	assert.Equal(t, Throttled, s.Step(context.Background()))
	clock.advance(30 * time.Second)
	assert.Equal(t, SendFailed, s.Step(context.Background()))
	assert.Len(t, b.sends, 2)
	assert.Equal(t, 2, s.Stats().Failed)
}

func TestRejectedLinesNeverSend(t *testing.T) {
	b := &fakeBackend{}
	s := newTestScheduler(&scriptedSource{reads: []read{
		{line: noFixLine},
		{line: shortLine},
		{line: "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W"},
		{line: "garbage"},
	}}, b, &fakeClock{t: time.Unix(1000, 0)})

	for i := 0; i < 4; i++ {
		assert.Equal(t, Rejected, s.Step(context.Background()))
	}
	assert.Empty(t, b.sends)
	assert.Equal(t, 4, s.Stats().Rejected)
}

func TestNonASCIIDiscarded(t *testing.T) {
	b := &fakeBackend{}
	s := newTestScheduler(&scriptedSource{reads: []read{{line: "$GPGGA,\xff\xfe,4807.038"}}}, b, &fakeClock{})
	assert.Equal(t, Discarded, s.Step(context.Background()))
	assert.Empty(t, b.sends)
}

func TestNetworkBackendWaitsForConnectivity(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := &fakeBackend{network: true}
	s := New(Options{
		Source:       &scriptedSource{reads: []read{{line: fixLine}}},
		Backend:      b,
		Connectivity: readiness(false),
		MinInterval:  30 * time.Second,
		Now:          clock.now,
	})
	assert.Equal(t, NotReady, s.Step(context.Background()))
	assert.Empty(t, b.sends)
	assert.True(t, s.lastSend.IsZero(), "a fix that was never attempted does not start the interval")
}

func TestRadioBackendIgnoresConnectivity(t *testing.T) {
	b := &fakeBackend{network: false}
	s := New(Options{
		Source:       &scriptedSource{reads: []read{{line: fixLine}}},
		Backend:      b,
		Connectivity: readiness(false),
		MinInterval:  30 * time.Second,
	})
	assert.Equal(t, Sent, s.Step(context.Background()))
}

func TestIndicatorToggledEveryIteration(t *testing.T) {
	ind := &toggleCounter{}
	s := New(Options{
		Source: &scriptedSource{reads: []read{
			{},
			{err: errors.New("read failed")},
			{line: "\x80"},
			{line: noFixLine},
			{line: fixLine},
			{line: fixLine},
		}},
		Backend:     &fakeBackend{},
		Indicator:   ind,
		MinInterval: time.Hour,
		Now:         (&fakeClock{t: time.Unix(1000, 0)}).now,
	})
	want := []Outcome{Idle, ReadError, Discarded, Rejected, Sent, Throttled}
	for i, w := range want {
		assert.Equal(t, w, s.Step(context.Background()))
		assert.Equal(t, i+1, ind.toggles)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	b := &fakeBackend{}
	s := New(Options{
		Source:      &scriptedSource{reads: []read{{line: fixLine}, {line: fixLine}}},
		Backend:     b,
		MinInterval: time.Hour,
		IdleWait:    time.Millisecond,
	})
	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, b.sends, 1)
	assert.Equal(t, 1, s.Stats().Throttled)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "sent", Sent.String())
	assert.Equal(t, "not-ready", NotReady.String())
	assert.Equal(t, "unknown", Outcome(99).String())
}
