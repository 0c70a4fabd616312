package usagemetrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

func TestRemoteWritePush(t *testing.T) {
	var received prompb.WriteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Encoding") != "snappy" {
			t.Errorf("missing snappy encoding header")
		}
		if r.Header.Get("Authorization") != "Bearer push-token" {
			t.Errorf("missing auth token")
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
			return
		}
		decoded, err := snappy.Decode(nil, body)
		if err != nil {
			t.Errorf("snappy decode: %v", err)
			return
		}
		if err := proto.Unmarshal(decoded, protoadapt.MessageV2Of(&received)); err != nil {
			t.Errorf("proto unmarshal: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	registry := prometheus.NewRegistry()
	m := newMetrics(registry)
	rec := &recorder{metrics: m}
	rec.RecordCharge("normal", "allowed")
	rec.RecordCharge("research", "daily-limit")
	rec.RecordTokens(40, 12)

	pusher := NewRemoteWritePusher(srv.URL, "push-token")
	if err := pusher.Push(context.Background(), registry); err != nil {
		t.Fatalf("push: %v", err)
	}

	if len(received.Timeseries) == 0 {
		t.Fatal("expected timeseries in write request")
	}
	found := false
	for _, ts := range received.Timeseries {
		for _, label := range ts.Labels {
			if label.Name == "__name__" && label.Value == "vylin_acct_charges_total" {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("charge counter missing from write request")
	}
}

func TestRemoteWritePushEmptyRegistry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty registry")
	}))
	defer srv.Close()

	pusher := NewRemoteWritePusher(srv.URL, "")
	if err := pusher.Push(context.Background(), prometheus.NewRegistry()); err != nil {
		t.Fatalf("push: %v", err)
	}
}

func TestNoopRecorderIsDefault(t *testing.T) {
	// Must not panic before any registration.
	RecordCharge("normal", "allowed")
	RecordTokens(1, 1)
	RecordRefusal()
	RecordDegraded()
}
