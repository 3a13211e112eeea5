// Package status serves a small read-only HTTP view of a running station.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"

	"github.com/1ureka/radiolink/internal/config"
	"github.com/1ureka/radiolink/internal/util"
)

// Info is the static part of a status report.
type Info struct {
	Role      config.Role      `json:"role"`
	Mode      config.Mode      `json:"mode"`
	Link      string           `json:"link"`
	Radio     config.Radio     `json:"radio"`
	Interface config.Interface `json:"interface"`
}

// InfoFrom extracts the reportable fields of cfg.
func InfoFrom(cfg *config.Config) Info {
	return Info{
		Role:      cfg.Role,
		Mode:      cfg.Mode,
		Link:      cfg.Link.Kind,
		Radio:     cfg.Radio,
		Interface: cfg.Interface,
	}
}

// Report is the body of GET /stats.
type Report struct {
	Info
	Uptime      string        `json:"uptime"`
	Counters    util.Snapshot `json:"counters"`
	ResendRatio float64       `json:"resend_ratio"`
}

// Handler returns the status routes wrapped in request logging and panic
// recovery.
func Handler(info Info) http.Handler {
	started := time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		snap := util.Stats.Snapshot()
		report := Report{
			Info:        info,
			Uptime:      time.Since(started).Truncate(time.Second).String(),
			Counters:    snap,
			ResendRatio: snap.ResendRatio(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(report); err != nil {
			util.LogWarning("status: failed to encode report: %v", err)
		}
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, "ok\n")
	})

	logged := handlers.CustomLoggingHandler(io.Discard, mux, logFormatter)
	return handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{}))(logged)
}

func logFormatter(_ io.Writer, params handlers.LogFormatterParams) {
	ip, _, err := net.SplitHostPort(params.Request.RemoteAddr)
	if err != nil {
		ip = params.Request.RemoteAddr
	}
	util.LogDebug("status: %s %s %s %d %dB", ip, params.Request.Method,
		params.URL.RequestURI(), params.StatusCode, params.Size)
}

type recoveryLogger struct{}

func (recoveryLogger) Println(v ...interface{}) {
	util.LogError("status: %s", fmt.Sprint(v...))
}

// Serve listens on addr and serves Handler(info) until ctx is cancelled.
// It returns once the listener is bound.
func Serve(ctx context.Context, addr string, info Info) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start status server: %w", err)
	}

	srv := &http.Server{
		Handler:           Handler(info),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("status server stopped: %v", err)
		}
	}()

	util.LogInfo("Status endpoint on http://%s/stats", listener.Addr())
	return listener.Addr(), nil
}
