package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"refdesk/internal/core"
	"refdesk/internal/live"
	"refdesk/internal/tally"
	"refdesk/internal/tally/memory"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := memory.New()
	hub := live.NewHub()
	svc := tally.NewService(store, nil, hub)
	s := NewServer(":0", svc, hub, 7)
	t.Cleanup(func() {
		s.rateLimiter.stop()
		close(s.stopCacheCleanup)
	})
	return s
}

func postIncrement(s *Server, category string, day string) *httptest.ResponseRecorder {
	form := url.Values{"category": {category}}
	if day != "" {
		form.Set("day", day)
	}
	req := httptest.NewRequest(http.MethodPost, "/tallies", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestIncrementReturnsBoardPartial(t *testing.T) {
	s := newTestServer(t)

	rec := postIncrement(s, "research", "2024-01-01")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("HX-Trigger"); got != "tallyChanged" {
		t.Errorf("HX-Trigger = %q", got)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "2024-01-01") {
		t.Errorf("partial does not show the day: %s", body)
	}
	if !strings.Contains(body, "Research") {
		t.Errorf("partial does not show the category: %s", body)
	}
}

func TestIncrementRejectsUnknownCategory(t *testing.T) {
	s := newTestServer(t)
	if rec := postIncrement(s, "genealogy", "2024-01-01"); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestIncrementRejectsInvalidDay(t *testing.T) {
	s := newTestServer(t)
	if rec := postIncrement(s, "research", "01/02/2024"); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestIncrementRejectsGet(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/tallies", nil)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestIncrementSetsActorCookie(t *testing.T) {
	s := newTestServer(t)
	rec := postIncrement(s, "other", "2024-01-01")

	var found bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == actorCookie && strings.HasPrefix(c.Value, "desk_") {
			found = true
		}
	}
	if !found {
		t.Fatal("actor cookie not issued on first increment")
	}
}

func TestTodayBoardDefaultsToToday(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/ui/today-board", nil)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if today := core.DayOf(time.Now()).String(); !strings.Contains(rec.Body.String(), today) {
		t.Errorf("board does not show today (%s)", today)
	}
}

func TestWeekReportAndExport(t *testing.T) {
	s := newTestServer(t)

	for _, c := range []string{"directional", "directional", "technology"} {
		if rec := postIncrement(s, c, "2024-01-02"); rec.Code != http.StatusOK {
			t.Fatalf("seed increment failed: %d", rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/ui/week-report", nil)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("week report status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "2024-01-02") {
		t.Errorf("report missing seeded day: %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/export.csv", nil)
	rec = httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Errorf("export content type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "ref_question_log_") {
		t.Errorf("export disposition = %q", cd)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"Date"`) || !strings.Contains(body, `"2024-01-02"`) {
		t.Errorf("export body missing quoted fields:\n%s", body)
	}
	if !strings.Contains(body, `"TOTAL"`) {
		t.Errorf("export body missing totals record:\n%s", body)
	}
}

func TestWeekCacheInvalidatedByIncrement(t *testing.T) {
	s := newTestServer(t)
	day := core.DayOf(time.Now()).String()

	postIncrement(s, "quick_fact", day)

	req := httptest.NewRequest(http.MethodGet, "/export.csv", nil)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	first := rec.Body.String()

	// A second increment must show up even though the summary was cached.
	postIncrement(s, "quick_fact", day)

	rec = httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/export.csv", nil))
	second := rec.Body.String()

	if first == second {
		t.Fatal("export unchanged after increment, stale cache served")
	}
	if !strings.Contains(second, `"2"`) {
		t.Errorf("export missing updated count:\n%s", second)
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		s.Server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}

func TestIndexHasNoInlineHandlers(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	// The CSP sent by the middleware has no 'unsafe-inline', so inline
	// event handlers would be dead in every enforcing browser. The print
	// button must get its listener from board.js instead.
	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "script-src 'self' https://unpkg.com") {
		t.Fatalf("unexpected script-src in CSP: %q", csp)
	}
	body := rec.Body.String()
	for _, attr := range []string{"onclick=", "onload=", "onsubmit="} {
		if strings.Contains(body, attr) {
			t.Errorf("index contains inline handler %q, blocked by the page's CSP", attr)
		}
	}
	if !strings.Contains(body, `id="print-button"`) {
		t.Error("print button missing from index")
	}
}

func TestRenderWithoutTemplatesAnswers500(t *testing.T) {
	s := newTestServer(t)
	s.templates = nil

	for _, path := range []string{"/", "/ui/today-board", "/ui/week-report"} {
		rec := httptest.NewRecorder()
		s.Server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("%s status = %d, want 500", path, rec.Code)
		}
	}

	if rec := postIncrement(s, "research", "2024-01-01"); rec.Code != http.StatusInternalServerError {
		t.Errorf("increment status = %d, want 500", rec.Code)
	}
}

func TestRateLimiterAllowsThenBlocks(t *testing.T) {
	rl := newRateLimiter()
	defer rl.stop()

	for i := 0; i < 120; i++ {
		if !rl.allow("10.0.0.1") {
			t.Fatalf("request %d blocked below the limit", i+1)
		}
	}
	if rl.allow("10.0.0.1") {
		t.Fatal("request 121 should be blocked")
	}
	if !rl.allow("10.0.0.2") {
		t.Fatal("other clients must not be affected")
	}
}

func TestLiveFeedStreamsSnapshots(t *testing.T) {
	s := newTestServer(t)

	ts := httptest.NewServer(s.Server.Handler)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/live?day=2024-01-01"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var initial liveFrame
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&initial); err != nil {
		t.Fatalf("read initial frame: %v", err)
	}
	if initial.Day != "2024-01-01" || initial.Total != 0 {
		t.Fatalf("initial frame = %+v", initial)
	}

	if rec := postIncrement(s, "technology", "2024-01-01"); rec.Code != http.StatusOK {
		t.Fatalf("increment status = %d", rec.Code)
	}

	var updated liveFrame
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&updated); err != nil {
		t.Fatalf("read updated frame: %v", err)
	}
	if updated.Counts["technology"] != 1 || updated.Total != 1 {
		t.Fatalf("updated frame = %+v", updated)
	}
}
