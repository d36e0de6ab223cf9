package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"

	"github.com/SneHope/TVH-NotiZAR/internal/domain"
)

const (
	maxBodyBytes        = 1 << 20
	defaultExportWindow = 30 * 24 * time.Hour
)

type statusRequest struct {
	Status string `json:"status"`
}

type geolocateResponse struct {
	Location  string  `json:"location"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	PlaceName string  `json:"place_name,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var in domain.ReportInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.deps.Reports.Submit(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusCreated, created.Public())
}

// handleList and handleGet serve the public projection. The admin variants
// keep contact details and only strip anonymous reporters.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.listReports(w, r, domain.Report.Public)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	s.getReport(w, r, domain.Report.Public)
}

func (s *Server) handleAdminList(w http.ResponseWriter, r *http.Request) {
	s.listReports(w, r, domain.Report.Redacted)
}

func (s *Server) handleAdminGet(w http.ResponseWriter, r *http.Request) {
	s.getReport(w, r, domain.Report.Redacted)
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request, view func(domain.Report) domain.Report) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	reports, err := s.deps.Reports.List(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]domain.Report, 0, len(reports))
	for _, rep := range reports {
		out = append(out, view(rep))
	}
	sharedobs.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request, view func(domain.Report) domain.Report) {
	rep, err := s.deps.Reports.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, view(rep))
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.deps.Reports.UpdateStatus(r.Context(), id, domain.Status(req.Status)); err != nil {
		s.writeError(w, r, err)
		return
	}
	rep, err := s.deps.Reports.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, rep.Redacted())
}

func (s *Server) handleAddUpdate(w http.ResponseWriter, r *http.Request) {
	var in domain.AdminUpdateInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	in.ReportID = chi.URLParam(r, "id")
	created, err := s.deps.Reports.AddAdminUpdate(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListUpdates(w http.ResponseWriter, r *http.Request) {
	updates, err := s.deps.Reports.ListAdminUpdates(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if updates == nil {
		updates = []domain.AdminUpdate{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, updates)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Reports.MarkUpdateRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePublishAnnouncement(w http.ResponseWriter, r *http.Request) {
	var in domain.AnnouncementInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.deps.Reports.PublishAnnouncement(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListAnnouncements(w http.ResponseWriter, r *http.Request) {
	limit, err := parseInt(r.URL.Query().Get("limit"))
	if err != nil {
		s.writeError(w, r, &domain.ValidationError{Fields: []string{"limit"}})
		return
	}
	list, err := s.deps.Reports.ListAnnouncements(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Announcement{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, list)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseExportWindow(r.URL.Query(), s.deps.Clock.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := s.deps.Reports.Export(r.Context(), start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	name := fmt.Sprintf("notizar-reports-%s.json", snap.ExportDate.Format("2006-01-02"))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	sharedobs.WriteJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if s.deps.Dashboard == nil {
		s.writeError(w, r, fmt.Errorf("dashboard not configured: %w", domain.ErrStore))
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, s.deps.Dashboard.Snapshot())
}

// handleGeolocate turns a device position into the location pre-fill. The
// place name is best effort.
func (s *Server) handleGeolocate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(q.Get("lng"), 64)
	if latErr != nil || lngErr != nil || !domain.ValidCoordinates(lat, lng) {
		s.writeError(w, r, &domain.ValidationError{Fields: []string{"lat", "lng"}})
		return
	}

	resp := geolocateResponse{
		Location: domain.FormatCoordinates(lat, lng),
		Lat:      lat,
		Lng:      lng,
	}
	if s.deps.Geocoder != nil {
		res, err := s.deps.Geocoder.ReverseGeocode(r.Context(), lat, lng)
		if err != nil {
			s.logger.Warn("reverse geocode for pre-fill failed", "lat", lat, "lng", lng, "error", err)
		} else {
			resp.PlaceName = res.PlaceName
		}
	}
	sharedobs.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdminSocket(w http.ResponseWriter, r *http.Request) {
	if s.deps.AdminHub == nil {
		sharedobs.WriteJSON(w, http.StatusServiceUnavailable, errorBody{Error: "admin hub not configured", Code: "unavailable"})
		return
	}
	s.deps.AdminHub.ServeHTTP(w, r)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

// parseFilter reads the list query: type, status, active, location, from,
// to, limit, offset. Status is canonicalized by the service.
func parseFilter(q url.Values) (domain.ReportFilter, error) {
	f := domain.ReportFilter{
		ReportType: q.Get("type"),
		Status:     domain.Status(q.Get("status")),
		Location:   q.Get("location"),
	}
	var fields []string
	var err error
	if v := q.Get("active"); v != "" {
		if f.ActiveOnly, err = strconv.ParseBool(v); err != nil {
			fields = append(fields, "active")
		}
	}
	if f.From, err = parseTime(q.Get("from")); err != nil {
		fields = append(fields, "from")
	}
	if f.To, err = parseTime(q.Get("to")); err != nil {
		fields = append(fields, "to")
	}
	if f.Limit, err = parseInt(q.Get("limit")); err != nil {
		fields = append(fields, "limit")
	}
	if f.Offset, err = parseInt(q.Get("offset")); err != nil {
		fields = append(fields, "offset")
	}
	if len(fields) > 0 {
		return f, &domain.ValidationError{Fields: fields}
	}
	return f, nil
}

// parseExportWindow defaults to the 30 days ending now. A lone start runs
// to now; a lone end looks back 30 days.
func parseExportWindow(q url.Values, now time.Time) (time.Time, time.Time, error) {
	start, startErr := parseTime(q.Get("start"))
	end, endErr := parseTime(q.Get("end"))
	if startErr != nil || endErr != nil {
		var fields []string
		if startErr != nil {
			fields = append(fields, "start")
		}
		if endErr != nil {
			fields = append(fields, "end")
		}
		return time.Time{}, time.Time{}, &domain.ValidationError{Fields: fields}
	}
	if end.IsZero() {
		end = now.UTC()
	}
	if start.IsZero() {
		start = end.Add(-defaultExportWindow)
	}
	return start, end, nil
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func parseInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
