package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/careerforge/careerforge/internal/api/middleware"
	"github.com/careerforge/careerforge/internal/client/channel"
	"github.com/careerforge/careerforge/internal/client/interviewapi"
	"github.com/careerforge/careerforge/internal/models"
	"github.com/careerforge/careerforge/internal/realtime"
	"github.com/xuri/excelize/v2"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("JWT_ISSUER", "careerforge")

	out, err := run(t, "token", "--user", "u-42", "--role", "admin", "--ttl", "1h")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	claims, err := middleware.ParseToken(strings.TrimSpace(out), middleware.JWTOptions{Secret: testSecret, Issuer: "careerforge"})
	if err != nil {
		t.Fatalf("minted token rejected: %v", err)
	}
	if claims.Subject != "u-42" || claims.Role != "admin" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestTokenCommandNeedsSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")
	if _, err := run(t, "token", "--user", "u-42"); err == nil {
		t.Fatal("want error for short secret")
	}
}

func TestHistoryCommandExports(t *testing.T) {
	var gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/interview" {
			http.NotFound(w, r)
			return
		}
		gotQuery, gotAuth = r.URL.RawQuery, r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"interviews":[
			{"id":"iv-1","type":"technical","status":"completed","duration":900,
			 "questions":[{"id":"q1","text":"Explain indexes"}],
			 "responses":[{"questionId":"q1","answer":"B-trees"}],
			 "metrics":{"overallScore":77,"technicalScore":80,"communicationScore":70,"confidenceScore":75},
			 "passed":true},
			{"_id":"iv-2","type":"behavioral","status":"in-progress","questions":[]}
		]}}`))
	}))
	defer srv.Close()

	t.Setenv("CAREERFORGE_API_URL", srv.URL+"/api")
	t.Setenv("CAREERFORGE_TOKEN", "tok")
	path := filepath.Join(t.TempDir(), "history.xlsx")

	out, err := run(t, "history", "--type", "technical", "--export", path)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("auth = %q", gotAuth)
	}
	if !strings.Contains(gotQuery, "type=technical") {
		t.Errorf("query = %q", gotQuery)
	}
	for _, want := range []string{"iv-1", "technical", "1/1", "77", "iv-2", "mock"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows(historySheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "Interview ID" || rows[1][0] != "iv-1" || rows[2][0] != "iv-2" {
		t.Fatalf("rows = %v", rows)
	}
	if got := rows[1][len(historyHeader)-1]; got != "yes" {
		t.Fatalf("passed cell = %q", got)
	}
}

func TestWriteHistoryWithoutMetrics(t *testing.T) {
	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "h.xlsx")
	err := writeHistory(path, []interviewapi.Interview{{
		ID:        "iv-9",
		Kind:      interviewapi.KindMock,
		Status:    models.StatusCancelled,
		StartedAt: &started,
	}})
	if err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	v, err := f.GetCellValue(historySheet, "C2")
	if err != nil {
		t.Fatal(err)
	}
	if v != "cancelled" {
		t.Fatalf("status cell = %q", v)
	}
	if v, _ := f.GetCellValue(historySheet, "I2"); v != "" {
		t.Fatalf("overall cell = %q, want empty", v)
	}
}

func TestPrintHistoryEmpty(t *testing.T) {
	var buf bytes.Buffer
	printHistory(&buf, nil)
	if !strings.Contains(buf.String(), "No interviews") {
		t.Fatalf("output = %q", buf.String())
	}
}

type handlerSet map[string]channel.Handler

func (h handlerSet) On(event string, fn channel.Handler) func() {
	h[event] = fn
	return func() { delete(h, event) }
}

func TestWatchAccountEvents(t *testing.T) {
	var out bytes.Buffer
	subs := handlerSet{}
	off := watchAccountEvents(subs, consoleNotifier{out: &out})

	tests := []struct {
		event   string
		payload string
		want    string
	}{
		{realtime.EventAgentAction, `{"message":"Applied to Acme backend role"}`, "[i] Agent: Applied to Acme backend role\n"},
		{realtime.EventOutreachUpdate, `{"type":"email","status":"replied"}`, "[i] Outreach: email replied\n"},
		{realtime.EventOutreachUpdate, `{}`, ""},
		{realtime.EventAgentAction, `not json`, ""},
	}
	for _, tt := range tests {
		out.Reset()
		h := subs[tt.event]
		if h == nil {
			t.Fatalf("no handler for %s", tt.event)
		}
		h(json.RawMessage(tt.payload))
		if got := out.String(); got != tt.want {
			t.Errorf("%s %s: printed %q, want %q", tt.event, tt.payload, got, tt.want)
		}
	}

	off()
	if len(subs) != 0 {
		t.Errorf("handlers left after unsubscribe: %d", len(subs))
	}
}
