package status_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/1ureka/radiolink/internal/config"
	"github.com/1ureka/radiolink/internal/status"
	"github.com/1ureka/radiolink/internal/util"
)

func TestStats(t *testing.T) {
	info := status.InfoFrom(config.Default(config.RoleMobile))
	srv := httptest.NewServer(status.Handler(info))
	defer srv.Close()

	util.Stats.AddSent(10)
	util.Stats.AddPacketSent()

	resp, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var report status.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Role != config.RoleMobile {
		t.Errorf("role = %q", report.Role)
	}
	if report.Radio.Address != "MOB" || report.Radio.Channel != 100 {
		t.Errorf("radio = %+v", report.Radio)
	}
	if report.Interface.Address != "192.168.2.2/24" {
		t.Errorf("interface = %+v", report.Interface)
	}
	if report.Counters.FramesSent < 1 || report.Counters.PacketsSent < 1 {
		t.Errorf("counters not reported: %+v", report.Counters)
	}
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(status.Handler(status.Info{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "ok" {
		t.Errorf("got %d %q", resp.StatusCode, body)
	}
}

func TestRoutes(t *testing.T) {
	h := status.Handler(status.Info{})

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/stats", http.StatusOK},
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodPost, "/stats", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("code = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestServeShutsDownWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	addr, err := status.Serve(ctx, "127.0.0.1:0", status.Info{})
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}

	resp, err := http.Get("http://" + addr.String() + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()

	cancel()

	client := &http.Client{Timeout: 500 * time.Millisecond}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := client.Get("http://" + addr.String() + "/healthz")
		if err != nil {
			return
		}
		resp.Body.Close()
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("server still answering after cancel")
}

func TestServeBadAddress(t *testing.T) {
	if _, err := status.Serve(context.Background(), "256.0.0.1:bad", status.Info{}); err == nil {
		t.Fatal("expected listen error")
	}
}
