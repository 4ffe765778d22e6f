// escalation-receiver is a development endpoint for webhook escalation
// sinks. It logs each event it receives.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/straja-ai/triage/internal/escalation"
	"github.com/straja-ai/triage/internal/logging"
)

const maxEventBytes = 1 << 20

func main() {
	addr := flag.String("addr", ":8099", "listen address for escalation receiver")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	logging.Init(*level, "console")
	logger := logging.New("escalation-receiver")

	srv := &http.Server{
		Addr:              *addr,
		Handler:           newRouter(logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info().Str("addr", *addr).Msg("escalation receiver listening (POST JSON to /escalation)")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("receiver error")
		os.Exit(1)
	}
}

func newRouter(logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	h := handleEscalation(logger)
	r.Post("/escalation", h)
	r.Post("/", h)
	return r
}

func handleEscalation(logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes+1))
		_ = r.Body.Close()
		if err != nil || len(body) > maxEventBytes {
			http.Error(w, `{"status":"error","message":"unreadable or oversized body"}`, http.StatusRequestEntityTooLarge)
			return
		}

		var ev escalation.Event
		if err := json.Unmarshal(body, &ev); err != nil {
			logger.Warn().Err(err).Int("len", len(body)).Msg("received non-event payload")
			http.Error(w, `{"status":"error","message":"invalid event"}`, http.StatusBadRequest)
			return
		}

		logger.Info().
			Str("event_id", ev.ID).
			Str("header_event_id", r.Header.Get("X-Triage-Event-Id")).
			Str("input_id", ev.Input.ID).
			Str("kind", string(ev.Input.Kind)).
			Str("flag", string(ev.Result.Flag)).
			Float64("confidence", ev.Result.Confidence).
			Strs("indicators", ev.Result.Indicators).
			Msg("received escalation event")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"status":"ok"}`+"\n")
	}
}
