package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"capitao/caverna"
	"capitao/submit"
	"capitao/tracker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const answerBody = `{
	"question": "Como vencer a procrastinação?",
	"response": "Comece agora, guerreiro.",
	"phoneme_analysis": {
		"phonemes": [
			{"phoneme": "k", "mouth_shape": "closed", "duration_ms": 120},
			{"phoneme": "o", "mouth_shape": "round", "duration_ms": 200}
		],
		"total_phonemes": 2,
		"unique_mouth_shapes": ["closed", "round"],
		"estimated_duration_seconds": 0.32
	},
	"tokens_used": 42,
	"word_count": 4,
	"timestamp": "2026-10-19T10:00:00Z"
}`

// execute runs the root command in a scratch directory and returns what
// was written to stdout
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))

	// flag variables survive between executions
	output, noTUI, verbose, cfgFile = "text", false, false, ""
	askYes, askDetails, askRecord, askDuration = false, false, "", "30"

	r, w, err := os.Pipe()
	require.NoError(t, err)
	stdout := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = stdout }()

	captured := make(chan string)
	go func() {
		data, _ := io.ReadAll(r)
		captured <- string(data)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// cobra keeps the context of the first execution on every subcommand
	for _, c := range rootCmd.Commands() {
		c.SetContext(ctx)
	}

	args = append(args, "--log-file", filepath.Join(dir, "capitao.log"))
	rootCmd.SetArgs(args)
	runErr := rootCmd.ExecuteContext(ctx)

	w.Close()
	return <-captured, runErr
}

func TestTestCommandPrintsJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/test-response" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "Como focar?", body["question"])
		io.WriteString(w, answerBody)
	}))
	defer server.Close()

	out, err := execute(t, "test", "Como", "focar?", "--api-url", server.URL, "--no-tui", "-o", "json", "-y")
	require.NoError(t, err)

	var resp caverna.QuestionResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "Comece agora, guerreiro.", resp.Response)
	assert.Equal(t, 2, resp.PhonemeAnalysis.TotalPhonemes)
}

func TestTestCommandRequiresConsent(t *testing.T) {
	_, err := execute(t, "test", "Como focar?", "--api-url", "http://127.0.0.1:1", "--no-tui")
	require.Error(t, err)
	assert.Contains(t, err.Error(), submit.MsgConsentRequired)
}

func TestTestCommandServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error": "modelo indisponível"}`)
	}))
	defer server.Close()

	out, err := execute(t, "test", "Como focar?", "--api-url", server.URL, "--no-tui", "-y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "modelo indisponível")
	assert.Empty(t, out)
}

func TestTestCommandRunsRepeatedly(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, answerBody)
	}))
	defer ok.Close()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `{"error": "gateway caiu"}`)
	}))
	defer failing.Close()

	_, err := execute(t, "test", "Como focar?", "--api-url", ok.URL, "--no-tui", "-o", "json", "-y")
	require.NoError(t, err)

	// the second run must not inherit the finished context of the first
	_, err = execute(t, "test", "Como focar?", "--api-url", failing.URL, "--no-tui", "-y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway caiu")
	assert.NotErrorIs(t, err, errCancelled)
}

func TestAskCommandFollowsSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/upload-question":
			file, header, err := r.FormFile("file")
			if !assert.NoError(t, err) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			file.Close()
			assert.Equal(t, "pergunta.wav", header.Filename)
			io.WriteString(w, `{"success": true, "session_id": "s1"}`)
		case "/processing-stream":
			assert.Equal(t, "s1", r.URL.Query().Get("session_id"))
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, `data: {"type":"status","session":{"id":"s1","currentStep":"transcribe","progress":30,"message":"Transcrevendo","steps":[{"id":"transcribe","name":"Transcrição"}]}}`+"\n\n")
			fmt.Fprintf(w, `data: {"type":"update","session":{"id":"s1","progress":100,"completed":true,"result":%s}}`+"\n\n",
				strings.Join(strings.Fields(answerBody), " "))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	media := filepath.Join(t.TempDir(), "pergunta.wav")
	require.NoError(t, os.WriteFile(media, []byte("RIFF fake wave"), 0o644))

	out, err := execute(t, "ask", media, "--api-url", server.URL, "--no-tui", "-o", "json", "-y")
	require.NoError(t, err)

	var resp caverna.QuestionResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "Comece agora, guerreiro.", resp.Response)
}

func TestAskCommandNeedsOneSource(t *testing.T) {
	_, err := execute(t, "ask", "--no-tui", "-y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--record")

	_, err = execute(t, "ask", "pergunta.mp4", "--record", "audio", "--no-tui", "-y")
	require.Error(t, err)
}

func TestLipsyncCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resposta.json")
	require.NoError(t, os.WriteFile(path, []byte(answerBody), 0o644))

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	defer rootCmd.SetOut(nil)
	lipsyncOut = ""
	defer func() { lipsyncFormat = "srt" }()

	rootCmd.SetArgs([]string{"lipsync", path, "--format", "vtt"})
	require.NoError(t, rootCmd.Execute())

	assert.True(t, strings.HasPrefix(buf.String(), "WEBVTT"))
	assert.Contains(t, buf.String(), "closed")
	assert.Contains(t, buf.String(), "round")
}

func TestReadResult(t *testing.T) {
	resp, err := readResult("-", strings.NewReader(answerBody))
	require.NoError(t, err)
	assert.Equal(t, 42, resp.TokensUsed)

	_, err = readResult("-", strings.NewReader("not json"))
	assert.ErrorContains(t, err, "failed to parse result")

	_, err = readResult(filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.ErrorContains(t, err, "failed to open result")
}

func TestHitRatePercent(t *testing.T) {
	assert.InDelta(t, 25.0, hitRatePercent(0.25), 1e-9)
	assert.InDelta(t, 100.0, hitRatePercent(1), 1e-9)
	assert.InDelta(t, 37.5, hitRatePercent(37.5), 1e-9)
}

func TestLineReporter(t *testing.T) {
	var buf bytes.Buffer
	r := newLineReporter(&buf)

	r.OnChange(submit.Snapshot{State: submit.StateProcessing, Upload: caverna.UploadProgress{Progress: 10, Message: "Enviando arquivo..."}})
	r.OnChange(submit.Snapshot{State: submit.StateProcessing, Upload: caverna.UploadProgress{Progress: 10, Message: "Enviando arquivo..."}})

	eta := 20
	session := &caverna.Session{ID: "s1", Message: "Transcrevendo", EstimatedTimeRemaining: &eta}
	r.OnChange(submit.Snapshot{Tracking: &tracker.Snapshot{Connected: true, Session: session, Progress: 30}})
	r.OnChange(submit.Snapshot{Tracking: &tracker.Snapshot{Reconnects: 1, Session: session, Progress: 30}})
	r.Success(submit.MsgProcessingDone)

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "Enviando arquivo..."), "repeated lines are dropped")
	assert.Contains(t, out, "[ 10%] Enviando arquivo...")
	assert.Contains(t, out, "conectado ao servidor")
	assert.Contains(t, out, "[ 30%] Transcrevendo")
	assert.Contains(t, out, "tentativa 1")
	assert.Contains(t, out, "✓ "+submit.MsgProcessingDone)
}

func TestProgressLine(t *testing.T) {
	assert.Equal(t, "[  0%] Processando...", progressLine(0, ""))
	assert.Equal(t, "[100%] Pronto", progressLine(100, "Pronto"))
}

func TestSessionWatchOutcome(t *testing.T) {
	var snaps []submit.Snapshot
	w := &sessionWatch{notifier: submit.NopNotifier{}, onChange: func(s submit.Snapshot) { snaps = append(snaps, s) }}
	cb := w.callbacks()

	_, err := w.outcome()
	assert.ErrorIs(t, err, errCancelled)

	cb.OnError("transcrição falhou")
	_, err = w.outcome()
	assert.EqualError(t, err, "transcrição falhou")

	result := &caverna.QuestionResponse{Response: "ok"}
	cb.OnComplete(result)
	got, err := w.outcome()
	require.NoError(t, err)
	assert.Same(t, result, got)

	require.Len(t, snaps, 2)
	assert.Equal(t, submit.StateError, snaps[0].State)
	assert.Equal(t, submit.StateCompleted, snaps[1].State)
}
