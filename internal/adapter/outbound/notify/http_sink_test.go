package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sentinel-Gate/Contractgate/internal/port/outbound"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTTPSink_SendNotification(t *testing.T) {
	t.Parallel()

	var got outbound.AccessRecord
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewHTTPSink(time.Second, discardLogger())
	rec := outbound.AccessRecord{Target: "https://provider.example/a", IssuerConnector: "https://consumer.example", Timestamp: time.Unix(1700000000, 0).UTC()}
	if err := sink.SendNotification(context.Background(), srv.URL+"/hook", rec); err != nil {
		t.Fatalf("SendNotification() error: %v", err)
	}
	if got.Target != rec.Target || !got.Timestamp.Equal(rec.Timestamp) {
		t.Errorf("received = %+v", got)
	}
}

func TestHTTPSink_Failures(t *testing.T) {
	t.Parallel()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer failing.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer slow.Close()

	sink := NewHTTPSink(50*time.Millisecond, discardLogger())
	tests := []struct {
		name     string
		endpoint string
		wantErr  string
	}{
		{"non-2xx", failing.URL, "429"},
		{"timeout", slow.URL, "deliver notification"},
		{"not a url", "::", "invalid notification endpoint"},
		{"unsupported scheme", "mailto:ops@example.com", "invalid notification endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sink.SendNotification(context.Background(), tt.endpoint, outbound.AccessRecord{Target: "t"})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
