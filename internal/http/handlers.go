package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"refdesk/internal/core"
	"refdesk/internal/report"
)

type categoryView struct {
	ID          string
	Name        string
	Description string
	Count       int64
}

type boardView struct {
	Day        string
	Categories []categoryView
	Total      int64
}

type weekDayView struct {
	Day    string
	Counts []int64
	Total  int64
}

type weekView struct {
	Categories  []core.Category
	Days        []weekDayView
	PerCategory []int64
	GrandTotal  int64
}

func buildBoardView(t core.DailyTally) boardView {
	cats := core.Categories()
	view := boardView{Day: t.Day.String(), Categories: make([]categoryView, 0, len(cats))}
	for _, c := range cats {
		view.Categories = append(view.Categories, categoryView{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			Count:       t.Count(c.ID),
		})
	}
	view.Total = t.Total()
	return view
}

func buildWeekView(sum core.WeekSummary) weekView {
	cats := core.Categories()
	view := weekView{Categories: cats, Days: make([]weekDayView, 0, len(sum.Days))}
	for _, d := range sum.Days {
		dv := weekDayView{Day: d.Day.String(), Counts: make([]int64, 0, len(cats))}
		for _, c := range cats {
			dv.Counts = append(dv.Counts, d.Count(c.ID))
		}
		dv.Total = d.Total()
		view.Days = append(view.Days, dv)
	}
	for _, c := range cats {
		view.PerCategory = append(view.PerCategory, sum.PerCategory[c.ID])
	}
	view.GrandTotal = sum.GrandTotal
	return view
}

// render writes one template response. Template parsing only warns at
// startup, so a missing set answers 500 here instead of panicking.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not available", "template", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.ErrorContext(r.Context(), "Failed to render template", "template", name, "error", err)
	}
}

// dayParam resolves the optional day query/form value, defaulting to today.
func dayParam(r *http.Request) (core.Day, error) {
	raw := strings.TrimSpace(r.FormValue("day"))
	if raw == "" {
		return core.DayOf(time.Now()), nil
	}
	return core.ParseDay(raw)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ensureActor(w, r)

	day := core.DayOf(time.Now())
	tally, err := s.svc.Day(r.Context(), day)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load today's tally", "day", day, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	data := struct {
		Board boardView
		Week  *weekView
	}{Board: buildBoardView(tally)}

	// The week table is optional on first paint; the partial refreshes it.
	if sum, err := s.getWeek(r.Context()); err == nil {
		wv := buildWeekView(sum)
		data.Week = &wv
	} else {
		slog.WarnContext(r.Context(), "Week summary unavailable on index", "error", err)
	}

	s.render(w, r, "index.html", data)
}

// handleIncrement records one question and responds with the refreshed board
// partial so the originating client repaints without a second round trip.
func (s *Server) handleIncrement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	day, err := dayParam(r)
	if err != nil {
		http.Error(w, "Invalid day, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	categoryID := strings.TrimSpace(r.FormValue("category"))
	actor := ensureActor(w, r)

	tally, err := s.svc.Increment(r.Context(), day, categoryID, actor)
	if err != nil {
		s.writeIncrementError(w, r, day, categoryID, err)
		return
	}

	s.InvalidateWeek()

	w.Header().Set("HX-Trigger", "tallyChanged")
	s.render(w, r, "today_board.html", buildBoardView(tally))
}

func (s *Server) writeIncrementError(w http.ResponseWriter, r *http.Request, day core.Day, categoryID string, err error) {
	switch {
	case errors.Is(err, core.ErrUnknownCategory):
		slog.WarnContext(r.Context(), "Increment for unknown category", "category", categoryID)
		http.Error(w, "Unknown category", http.StatusBadRequest)
	case errors.Is(err, core.ErrInvalidDay):
		http.Error(w, "Invalid day, expected YYYY-MM-DD", http.StatusBadRequest)
	case errors.Is(err, core.ErrTransactionConflict):
		slog.WarnContext(r.Context(), "Increment lost its retry budget", "day", day, "category", categoryID)
		http.Error(w, "The board is busy, your tap was not recorded. Try again.", http.StatusConflict)
	case errors.Is(err, core.ErrStoreUnavailable):
		slog.ErrorContext(r.Context(), "Counter store unavailable", "error", err)
		http.Error(w, "Counter store unavailable", http.StatusServiceUnavailable)
	default:
		slog.ErrorContext(r.Context(), "Increment failed", "day", day, "category", categoryID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (s *Server) handleTodayBoard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	day, err := dayParam(r)
	if err != nil {
		http.Error(w, "Invalid day, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	tally, err := s.svc.Day(r.Context(), day)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load board", "day", day, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, r, "today_board.html", buildBoardView(tally))
}

// handleWeekReport renders the rolling report table. On a fetch failure it
// answers 500 so the htmx client keeps the previous table on screen instead
// of swapping in an empty one.
func (s *Server) handleWeekReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sum, err := s.getWeek(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to build week report", "error", err)
		http.Error(w, "Report temporarily unavailable", http.StatusInternalServerError)
		return
	}

	s.render(w, r, "week_report.html", buildWeekView(sum))
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sum, err := s.getWeek(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to build CSV export", "error", err)
		http.Error(w, "Report temporarily unavailable", http.StatusInternalServerError)
		return
	}

	csv := report.ToCSV(report.WeekRecords(sum))

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.Filename(time.Now())+`"`)
	if _, err := w.Write([]byte(csv)); err != nil {
		slog.WarnContext(r.Context(), "CSV export interrupted", "error", err)
	}
}
