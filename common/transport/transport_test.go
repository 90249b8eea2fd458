package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samiam2013/gpsrelay/common/gps"
	"github.com/samiam2013/gpsrelay/common/payload"
)

var testFix = gps.Fix{Latitude: 48.1173, Longitude: 11.516667, Satellites: "08", HDOP: "0.9", Altitude: "545.4"}

var testExtras = payload.Extras{
	{Key: payload.KeyDeviceID, Value: "RHINO01"},
	{Key: payload.KeyAlive, Value: "1"},
}

func TestHTTPSendsQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL+"/fix", time.Second, nil)
	p, err := h.Encode(testFix, testExtras)
	require.NoError(t, err)
	require.NoError(t, h.Send(context.Background(), p))
	assert.Equal(t, "lat=48.117300&lon=11.516667&satellite_count=08&horizontal_dilution=0.9&altitude_m=545.4", gotQuery)
}

func TestHTTPExtraParams(t *testing.T) {
	h := NewHTTP("http://collector.invalid/fix", time.Second, []string{payload.KeyDeviceID})
	p, err := h.Encode(gps.Fix{Latitude: 1, Longitude: 2}, testExtras)
	require.NoError(t, err)
	assert.Equal(t, "http://collector.invalid/fix?lat=1.000000&lon=2.000000&device_id=RHINO01", string(p))
}

func TestHTTPNon2xxIsDelivered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL, time.Second, nil)
	p, err := h.Encode(testFix, nil)
	require.NoError(t, err)
	assert.NoError(t, h.Send(context.Background(), p))
}

func TestHTTPConnectionErrorFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	h := NewHTTP(url, time.Second, nil)
	p, err := h.Encode(testFix, nil)
	require.NoError(t, err)
	assert.Error(t, h.Send(context.Background(), p))
}

type failingWriter struct {
	n   int
	err error
}

func (f failingWriter) Write(p []byte) (int, error) { return f.n, f.err }

func TestRadio(t *testing.T) {
	var buf bytes.Buffer
	r := NewRadio(&buf)
	assert.False(t, r.RequiresNetwork())

	p, err := r.Encode(testFix, testExtras)
	require.NoError(t, err)
	require.NoError(t, r.Send(context.Background(), p))
	require.NoError(t, r.Send(context.Background(), []byte("already\n")))
	assert.Equal(t, "RHINO01,48.11730,11.51667,1,\nalready\n", buf.String())
	assert.Equal(t, "RHINO01,48.11730,11.51667,1,", string(p), "payload not modified by Send")
}

func TestRadioWriteFailures(t *testing.T) {
	boom := errors.New("uart gone")
	err := NewRadio(failingWriter{err: boom}).Send(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, boom)

	err = NewRadio(failingWriter{n: 1}).Send(context.Background(), []byte("abc"))
	assert.ErrorIs(t, err, io.ErrShortWrite)
}

type fakeToken struct {
	done bool
	err  error
}

func (f *fakeToken) Wait() bool                     { return f.done }
func (f *fakeToken) WaitTimeout(time.Duration) bool { return f.done }
func (f *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (f *fakeToken) Error() error { return f.err }

type fakePublisher struct {
	topic   string
	payload []byte
	token   *fakeToken
}

func (f *fakePublisher) Publish(topic string, _ byte, _ bool, p interface{}) mqtt.Token {
	f.topic = topic
	f.payload = p.([]byte)
	return f.token
}

func TestMQTTPublishesJSON(t *testing.T) {
	pub := &fakePublisher{token: &fakeToken{done: true}}
	m := newMQTT(pub, "gpsrelay/fix", time.Second)

	p, err := m.Encode(testFix, testExtras)
	require.NoError(t, err)
	require.NoError(t, m.Send(context.Background(), p))
	assert.Equal(t, "gpsrelay/fix", pub.topic)

	var msg payload.Message
	require.NoError(t, json.Unmarshal(pub.payload, &msg))
	assert.Equal(t, "RHINO01", msg.DeviceID)
	assert.Equal(t, "08", msg.Satellites)
}

func TestMQTTPublishFailures(t *testing.T) {
	m := newMQTT(&fakePublisher{token: &fakeToken{done: false}}, "t", time.Millisecond)
	assert.Error(t, m.Send(context.Background(), []byte("{}")))

	boom := errors.New("not connected")
	m = newMQTT(&fakePublisher{token: &fakeToken{done: true, err: boom}}, "t", time.Millisecond)
	assert.ErrorIs(t, m.Send(context.Background(), []byte("{}")), boom)
}

type recorder struct{ calls []string }

func (r *recorder) On()     { r.calls = append(r.calls, "on") }
func (r *recorder) Off()    { r.calls = append(r.calls, "off") }
func (r *recorder) Toggle() { r.calls = append(r.calls, "toggle") }

type scriptedBackend struct {
	Radio
	rec *recorder
	err error
}

func (s *scriptedBackend) Send(context.Context, []byte) error {
	s.rec.calls = append(s.rec.calls, "send")
	return s.err
}

func TestWithIndicatorPulsesAroundSend(t *testing.T) {
	for _, sendErr := range []error{nil, errors.New("lost")} {
		rec := &recorder{}
		b := WithIndicator(&scriptedBackend{rec: rec, err: sendErr}, rec)
		err := b.Send(context.Background(), []byte("x"))
		assert.Equal(t, sendErr, err)
		assert.Equal(t, []string{"on", "send", "off"}, rec.calls)
		assert.Equal(t, "radio", b.Name())
	}
}

func TestWithIndicatorNil(t *testing.T) {
	r := NewRadio(io.Discard)
	assert.Same(t, r, WithIndicator(r, nil))
}
