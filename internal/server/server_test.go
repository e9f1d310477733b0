package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/xtxerr/sensorlog/internal/archive"
	"github.com/xtxerr/sensorlog/internal/datastore"
	"github.com/xtxerr/sensorlog/internal/format"
	"github.com/xtxerr/sensorlog/internal/forward"
	"github.com/xtxerr/sensorlog/internal/schema"
)

type testEnv struct {
	srv  *Server
	arch *archive.Archive
	fwd  *forward.Manager
}

func newTestEnv() *testEnv {
	arch := archive.New(archive.NewMemBackend())
	store := datastore.New(&datastore.Config{Archive: arch, BufferCapacity: 256})
	fwd := forward.New(time.Second)
	srv := New(&Config{Listen: "127.0.0.1:0", Store: store, Forward: fwd})
	return &testEnv{srv: srv, arch: arch, fwd: fwd}
}

func (e *testEnv) do(method, path string, body []byte) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func readingJSON(t *testing.T, ts time.Time, value float64) []byte {
	t.Helper()
	data, err := json.Marshal(schema.Reading{
		Type:      schema.SensorTemperature,
		ID:        schema.SensorDS18B20,
		Timestamp: ts,
		Value:     value,
		Unit:      schema.UnitCelsius,
	})
	if err != nil {
		t.Fatalf("marshal reading: %v", err)
	}
	return data
}

func TestIngest(t *testing.T) {
	env := newTestEnv()
	now := time.Now().UTC()

	if w := env.do(http.MethodPost, "/", readingJSON(t, now, 21.5)); w.Code != http.StatusAccepted {
		t.Errorf("valid reading: status = %d, want 202", w.Code)
	}

	if w := env.do(http.MethodPost, "/", []byte(`{"sensor_type":`)); w.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON: status = %d, want 400", w.Code)
	}

	bad := []byte(`{"sensor_type":"pressure","sensor_id":"DS18B20","timestamp":"` +
		now.Format(time.RFC3339) + `","reading":1013,"unit":"C"}`)
	if w := env.do(http.MethodPost, "/", bad); w.Code != http.StatusBadRequest {
		t.Errorf("unknown sensor type: status = %d, want 400", w.Code)
	}

	missing := []byte(`{"sensor_type":"temperature","sensor_id":"DS18B20","reading":21.5,"unit":"C"}`)
	if w := env.do(http.MethodPost, "/", missing); w.Code != http.StatusBadRequest {
		t.Errorf("missing timestamp: status = %d, want 400", w.Code)
	}
}

func TestTail(t *testing.T) {
	env := newTestEnv()
	now := time.Now().UTC()

	for i := 0; i < 7; i++ {
		ts := now.Add(time.Duration(i) * time.Second)
		if w := env.do(http.MethodPost, "/", readingJSON(t, ts, float64(i))); w.Code != http.StatusAccepted {
			t.Fatalf("ingest %d: status = %d", i, w.Code)
		}
	}

	w := env.do(http.MethodGet, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tail: status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("tail content type = %q, want text/csv", ct)
	}

	table, err := format.Text.Deserialize(w.Body.Bytes())
	if err != nil {
		t.Fatalf("decode tail body: %v", err)
	}
	if table.Len() != 5 {
		t.Fatalf("tail = %d rows, want 5", table.Len())
	}
	want := []float64{2, 3, 4, 5, 6}
	for i, r := range table.Rows() {
		if r.Value != want[i] {
			t.Errorf("tail row %d value = %g, want %g", i, r.Value, want[i])
		}
	}
}

func TestArchiveEndpoints(t *testing.T) {
	env := newTestEnv()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		ts := now.Add(time.Duration(i) * time.Minute)
		if w := env.do(http.MethodPost, "/", readingJSON(t, ts, 20+float64(i))); w.Code != http.StatusAccepted {
			t.Fatalf("ingest %d: status = %d", i, w.Code)
		}
	}

	w := env.do(http.MethodGet, "/archive/parquet/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /archive/parquet/: status = %d", w.Code)
	}
	table, err := format.Columnar.Deserialize(w.Body.Bytes())
	if err != nil {
		t.Fatalf("decode parquet body: %v", err)
	}
	if table.Len() != 3 {
		t.Errorf("parquet archive = %d rows, want 3", table.Len())
	}

	w = env.do(http.MethodGet, "/archive/csv/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /archive/csv/: status = %d", w.Code)
	}
	table, err = format.Text.Deserialize(w.Body.Bytes())
	if err != nil {
		t.Fatalf("decode csv body: %v", err)
	}
	if table.Len() != 3 {
		t.Errorf("csv archive = %d rows, want 3", table.Len())
	}

	if w := env.do(http.MethodGet, "/archive/xml/", nil); w.Code != http.StatusNotFound {
		t.Errorf("GET /archive/xml/: status = %d, want 404", w.Code)
	}

	since, err := json.Marshal(now.Add(90 * time.Second))
	if err != nil {
		t.Fatalf("marshal timestamp: %v", err)
	}
	w = env.do(http.MethodPost, "/archive/csv/", since)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /archive/csv/: status = %d", w.Code)
	}
	table, err = format.Text.Deserialize(w.Body.Bytes())
	if err != nil {
		t.Fatalf("decode since body: %v", err)
	}
	if table.Len() != 1 {
		t.Errorf("since 90s = %d rows, want 1", table.Len())
	}
	if r, ok := table.First(); !ok || r.Value != 22 {
		t.Errorf("since row = %v, want value 22", r)
	}

	if w := env.do(http.MethodPost, "/archive/csv/", []byte(`"not a time"`)); w.Code != http.StatusBadRequest {
		t.Errorf("POST bad timestamp: status = %d, want 400", w.Code)
	}
}

func TestRangeEndpoint(t *testing.T) {
	env := newTestEnv()
	base := time.Now().UTC().Add(-30 * time.Minute)

	for i := 0; i < 10; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		if w := env.do(http.MethodPost, "/", readingJSON(t, ts, float64(i))); w.Code != http.StatusAccepted {
			t.Fatalf("ingest %d: status = %d", i, w.Code)
		}
	}

	start := base.Add(2 * time.Minute).Format(time.RFC3339)
	end := base.Add(5 * time.Minute).Format(time.RFC3339)
	w := env.do(http.MethodGet, "/range?start="+url.QueryEscape(start)+"&end="+url.QueryEscape(end), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("range: status = %d, body %s", w.Code, w.Body.String())
	}
	table, err := format.Text.Deserialize(w.Body.Bytes())
	if err != nil {
		t.Fatalf("decode range body: %v", err)
	}
	if table.Len() != 3 {
		t.Fatalf("range [2m, 5m) = %d rows, want 3", table.Len())
	}
	want := []float64{2, 3, 4}
	for i, r := range table.Rows() {
		if r.Value != want[i] {
			t.Errorf("range row %d value = %g, want %g", i, r.Value, want[i])
		}
	}

	w = env.do(http.MethodGet, "/range", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("open range: status = %d", w.Code)
	}
	table, err = format.Text.Deserialize(w.Body.Bytes())
	if err != nil {
		t.Fatalf("decode open range body: %v", err)
	}
	if table.Len() != 10 {
		t.Errorf("open range = %d rows, want 10", table.Len())
	}

	w = env.do(http.MethodGet, "/range?format=parquet&start="+url.QueryEscape(start), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("parquet range: status = %d", w.Code)
	}
	table, err = format.Columnar.Deserialize(w.Body.Bytes())
	if err != nil {
		t.Fatalf("decode parquet range body: %v", err)
	}
	if table.Len() != 8 {
		t.Errorf("parquet range = %d rows, want 8", table.Len())
	}

	if w := env.do(http.MethodGet, "/range?start="+url.QueryEscape(end)+"&end="+url.QueryEscape(start), nil); w.Code != http.StatusBadRequest {
		t.Errorf("inverted range: status = %d, want 400", w.Code)
	}
	if w := env.do(http.MethodGet, "/range?start=yesterday", nil); w.Code != http.StatusBadRequest {
		t.Errorf("unparseable start: status = %d, want 400", w.Code)
	}
	if w := env.do(http.MethodGet, "/range?format=xml", nil); w.Code != http.StatusBadRequest {
		t.Errorf("unknown format: status = %d, want 400", w.Code)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	env := newTestEnv()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		body, err := json.Marshal(schema.Reading{
			Type:      schema.SensorHumidity,
			ID:        schema.SensorDHT11,
			Timestamp: now.Add(time.Duration(i) * time.Second),
			Value:     40,
			Unit:      schema.UnitRelative,
		})
		if err != nil {
			t.Fatalf("marshal reading: %v", err)
		}
		if w := env.do(http.MethodPost, "/", body); w.Code != http.StatusAccepted {
			t.Fatalf("ingest %d: status = %d", i, w.Code)
		}
	}

	w := env.do(http.MethodGet, "/summary", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("summary: status = %d", w.Code)
	}

	var summaries []datastore.Summary
	if err := json.Unmarshal(w.Body.Bytes(), &summaries); err != nil {
		t.Fatalf("decode summary body: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(summaries))
	}
	got := summaries[0]
	if got.Type != schema.SensorHumidity || got.ID != schema.SensorDHT11 {
		t.Errorf("summary sensor = %s/%s, want humidity/DHT11", got.Type, got.ID)
	}
	if got.Count != 5 || got.Mean != 40 || got.Min != 40 || got.Max != 40 {
		t.Errorf("summary stats = %+v, want constant 40", got)
	}

	startArg := url.QueryEscape(now.Format(time.RFC3339))
	endArg := url.QueryEscape(now.Add(-time.Hour).Format(time.RFC3339))
	if w := env.do(http.MethodGet, "/summary?start="+startArg+"&end="+endArg, nil); w.Code != http.StatusBadRequest {
		t.Errorf("inverted summary bounds: status = %d, want 400", w.Code)
	}
}

func TestForwardingRegistration(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodPost, "/register_forwarding_server/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("register: status = %d", w.Code)
	}

	// httptest requests carry RemoteAddr 192.0.2.1:1234.
	want := "http://192.0.2.1:1234/"
	endpoints := env.fwd.Endpoints()
	if len(endpoints) != 1 || endpoints[0] != want {
		t.Fatalf("endpoints = %v, want [%s]", endpoints, want)
	}

	w = env.do(http.MethodDelete, "/register_forwarding_server/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unregister: status = %d", w.Code)
	}
	if endpoints := env.fwd.Endpoints(); len(endpoints) != 0 {
		t.Errorf("endpoints after unregister = %v, want none", endpoints)
	}
}

func TestForwardingDelivery(t *testing.T) {
	env := newTestEnv()

	received := make(chan schema.Reading, 1)
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got schema.Reading
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode forwarded reading: %v", err)
			return
		}
		received <- got
		w.WriteHeader(http.StatusAccepted)
	}))
	defer downstream.Close()

	u, err := url.Parse(downstream.URL)
	if err != nil {
		t.Fatalf("parse downstream url: %v", err)
	}

	// Register with the downstream's address as the caller.
	req := httptest.NewRequest(http.MethodPost, "/register_forwarding_server/", nil)
	req.RemoteAddr = u.Host
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("register: status = %d", w.Code)
	}

	now := time.Now().UTC()
	if w := env.do(http.MethodPost, "/", readingJSON(t, now, 25)); w.Code != http.StatusAccepted {
		t.Fatalf("ingest: status = %d", w.Code)
	}

	select {
	case got := <-received:
		if got.Value != 25 || !got.Timestamp.Equal(now) {
			t.Errorf("forwarded reading = %v, want value 25 at %v", got, now)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("forwarded reading never arrived")
	}
}

func TestHelloWorld(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodGet, "/helloworld/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("helloworld: status = %d", w.Code)
	}
	if got := w.Body.String(); got != "Hello World!" {
		t.Errorf("helloworld body = %q", got)
	}
}

func TestFlushAndSamplerSink(t *testing.T) {
	env := newTestEnv()
	now := time.Now().UTC()

	// The sampler writes through the server to stay under the mutex.
	env.srv.AddReading(schema.Reading{
		Type:      schema.SensorTemperature,
		ID:        schema.SensorPICPU,
		Timestamp: now,
		Value:     48.2,
		Unit:      schema.UnitCelsius,
	})

	if err := env.srv.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(env.arch.Keys()) != 1 {
		t.Fatalf("archive holds %d shards after flush, want 1", len(env.arch.Keys()))
	}

	w := env.do(http.MethodGet, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tail after flush: status = %d", w.Code)
	}
	table, err := format.Text.Deserialize(w.Body.Bytes())
	if err != nil {
		t.Fatalf("decode tail: %v", err)
	}
	if table.Len() != 1 {
		t.Errorf("tail after flush = %d rows, want 1", table.Len())
	}
}
