package forward

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/xtxerr/sensorlog/internal/schema"
)

func fwdReading() schema.Reading {
	return schema.Reading{
		Type:      schema.SensorTemperature,
		ID:        schema.SensorDS18B20,
		Timestamp: time.Date(2024, time.February, 12, 8, 0, 0, 0, time.UTC),
		Value:     21.5,
		Unit:      schema.UnitCelsius,
	}
}

func TestRegisterDeduplicates(t *testing.T) {
	m := New(time.Second)

	m.Register("http://a.local:8000/")
	m.Register("http://a.local:8000/")
	m.Register("http://b.local:8000/")

	if got := m.Endpoints(); len(got) != 2 {
		t.Fatalf("endpoints = %v, want 2 distinct entries", got)
	}

	m.Remove("http://a.local:8000/")
	got := m.Endpoints()
	if len(got) != 1 || got[0] != "http://b.local:8000/" {
		t.Errorf("endpoints after remove = %v, want [http://b.local:8000/]", got)
	}

	m.Remove("http://unknown.local/")
	if got := m.Endpoints(); len(got) != 1 {
		t.Errorf("removing unknown endpoint changed the set: %v", got)
	}
}

func TestBroadcastDelivery(t *testing.T) {
	want := fwdReading()

	var mu sync.Mutex
	received := make(map[string]schema.Reading)
	handler := func(name string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			var got schema.Reading
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("%s: decode forwarded reading: %v", name, err)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			mu.Lock()
			received[name] = got
			mu.Unlock()
			w.WriteHeader(http.StatusAccepted)
		}
	}

	srvA := httptest.NewServer(handler("a"))
	defer srvA.Close()
	srvB := httptest.NewServer(handler("b"))
	defer srvB.Close()

	m := New(time.Second)
	m.Register(srvA.URL + "/")
	m.Register(srvB.URL + "/")

	m.Broadcast(context.Background(), want)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("delivered to %d endpoints, want 2", len(received))
	}
	for name, got := range received {
		if got.Type != want.Type || got.ID != want.ID || got.Value != want.Value ||
			!got.Timestamp.Equal(want.Timestamp) || got.Unit != want.Unit {
			t.Errorf("%s received %v, want %v", name, got, want)
		}
	}
}

func TestBroadcastSurvivesDeadEndpoint(t *testing.T) {
	var delivered int
	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered++
		w.WriteHeader(http.StatusAccepted)
	}))
	defer live.Close()

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	m := New(time.Second)
	m.Register(deadURL + "/")
	m.Register(live.URL + "/")

	m.Broadcast(context.Background(), fwdReading())

	if delivered != 1 {
		t.Errorf("live endpoint received %d deliveries, want 1", delivered)
	}
}

func TestBroadcastWithoutEndpoints(t *testing.T) {
	m := New(time.Second)
	m.Broadcast(context.Background(), fwdReading())
}
