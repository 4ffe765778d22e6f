// Package mockjudge serves an OpenAI-compatible chat completions endpoint
// that answers with deterministic judgments. It backs local runs and tests
// that exercise the openai judge end to end.
package mockjudge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/straja-ai/triage/internal/logging"
)

const (
	defaultPort    = 18081
	defaultDelayMS = 0
)

var (
	highTerms   = []string{"verify your account", "password", "wire transfer", "bitcoin", "ransom"}
	mediumTerms = []string{"urgent", "click here", "limited time", "invoice"}
	lowTerms    = []string{"free", "winner", "unsubscribe"}
	mediaTerms  = []string{"deepfake", "spliced", "synthetic", "edited"}
)

// Start launches the mock judge. If addr is empty it listens on
// 127.0.0.1:MOCK_JUDGE_PORT (default 18081). It returns a shutdown function
// and the base URL.
func Start(addr string) (func(context.Context) error, string, error) {
	logger := logging.New("mockjudge")

	if strings.TrimSpace(addr) == "" {
		port := strings.TrimSpace(os.Getenv("MOCK_JUDGE_PORT"))
		if port == "" {
			port = strconv.Itoa(defaultPort)
		}
		addr = "127.0.0.1:" + port
	}

	delay := defaultDelayMS
	if val := strings.TrimSpace(os.Getenv("MOCK_JUDGE_DELAY_MS")); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed >= 0 {
			delay = parsed
		}
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("mock judge request")

		p := r.URL.Path
		if len(p) > 1 {
			p = strings.TrimSuffix(p, "/")
		}
		if r.Method == http.MethodPost && (p == "/v1/chat/completions" || p == "/chat/completions") {
			handleChat(w, r, delay)
			return
		}
		writeError(w, http.StatusNotFound, "Not found")
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("mock judge server error")
		}
	}()

	baseURL := "http://" + ln.Addr().String()
	logger.Info().Str("url", baseURL).Int("delay_ms", delay).Msg("mock judge listening")
	return srv.Shutdown, baseURL, nil
}

type chatRequest struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func handleChat(w http.ResponseWriter, r *http.Request, delayMS int) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if delayMS > 0 {
		select {
		case <-time.After(time.Duration(delayMS) * time.Millisecond):
		case <-r.Context().Done():
			return
		}
	}

	var system, user string
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system += m.Content
		case "user":
			user += m.Content
		}
	}

	var content string
	if strings.Contains(strings.ToLower(system+user), "manipulation") {
		content = mediaJudgment(evidenceOf(user))
	} else {
		content = textJudgment(evidenceOf(user))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-mockjudge",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   "mock-judge",
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
	})
}

// evidenceOf returns the text after the evidence marker, or all of it.
func evidenceOf(user string) string {
	const marker = "[EVIDENCE]"
	if i := strings.LastIndex(user, marker); i >= 0 {
		return user[i+len(marker):]
	}
	return user
}

// textJudgment ranks the first tier with a matching term.
func textJudgment(text string) string {
	lower := strings.ToLower(text)
	level, conf := "none", 0.8
	var hits []string
	for _, tier := range []struct {
		level string
		conf  float64
		terms []string
	}{
		{"high", 0.9, highTerms},
		{"medium", 0.7, mediumTerms},
		{"low", 0.6, lowTerms},
	} {
		for _, term := range tier.terms {
			if strings.Contains(lower, term) {
				hits = append(hits, strings.ReplaceAll(term, " ", "_"))
				if level == "none" {
					level, conf = tier.level, tier.conf
				}
			}
		}
	}
	out, _ := json.Marshal(map[string]any{
		"threat_level": level,
		"confidence":   conf,
		"indicators":   nonNil(hits),
		"reasoning":    fmt.Sprintf("mock judge matched %d term(s)", len(hits)),
	})
	return string(out)
}

func mediaJudgment(text string) string {
	lower := strings.ToLower(text)
	var hits []string
	for _, term := range mediaTerms {
		if strings.Contains(lower, term) {
			hits = append(hits, term)
		}
	}
	manipulated := len(hits) > 0
	conf := 0.85
	if manipulated {
		conf = 0.9
	}
	out, _ := json.Marshal(map[string]any{
		"manipulation_detected": manipulated,
		"confidence":            conf,
		"indicators":            nonNil(hits),
		"reasoning":             fmt.Sprintf("mock judge matched %d manipulation term(s)", len(hits)),
	})
	return string(out)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "invalid_request_error",
		},
	})
}
