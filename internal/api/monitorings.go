package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rodolfodiegosilva/iot-system-api/internal/monitoring"
)

type bulkDeleteRequest struct {
	Codes []string `json:"codes"`
}

// decodeMonitoringRequests accepts a JSON array of requests or a single
// request object.
func decodeMonitoringRequests(w http.ResponseWriter, r *http.Request) ([]monitoring.Request, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeBadRequest(w, "unreadable request body")
		}
		return nil, false
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var one monitoring.Request
		if err := json.Unmarshal(trimmed, &one); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return nil, false
		}
		return []monitoring.Request{one}, true
	}

	var many []monitoring.Request
	if err := json.Unmarshal(trimmed, &many); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return nil, false
	}
	return many, true
}

// timeFromQuery parses an RFC 3339 timestamp or a YYYY-MM-DD date. A date
// used as an upper bound covers the whole day.
func timeFromQuery(q url.Values, key string, upper bool) (time.Time, error) {
	v := q.Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be RFC 3339 or YYYY-MM-DD", monitoring.ErrInvalidMonitoring, key)
	}
	if upper {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t, nil
}

func filterFromQuery(q url.Values) (monitoring.Filter, error) {
	status, err := statusFromQuery(q, "monitoringStatus")
	if err != nil {
		return monitoring.Filter{}, err
	}
	from, err := timeFromQuery(q, "createdFrom", false)
	if err != nil {
		return monitoring.Filter{}, err
	}
	to, err := timeFromQuery(q, "createdTo", true)
	if err != nil {
		return monitoring.Filter{}, err
	}

	p := pagingFromQuery(q)
	return monitoring.Filter{
		Status:      status,
		DeviceCode:  q.Get("deviceCode"),
		Code:        q.Get("monitoringCode"),
		DeviceName:  q.Get("deviceName"),
		CreatedFrom: from,
		CreatedTo:   to,
		PageNo:      p.pageNo,
		PageSize:    p.pageSize,
		SortBy:      p.sortBy,
		SortDesc:    p.sortDesc,
	}, nil
}

// handleListMonitorings returns one page of the records visible to the
// caller.
//
// Query parameters:
//   - monitoringStatus: ON or OFF
//   - deviceCode: exact device code
//   - monitoringCode, deviceName: substring filters
//   - createdFrom, createdTo: RFC 3339 or YYYY-MM-DD
//   - pageNo, pageSize, sortBy, sortDir
func (s *Server) handleListMonitorings(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r.URL.Query())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	page, err := s.monitorings.List(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleListDeviceMonitorings returns the records of one device.
func (s *Server) handleListDeviceMonitorings(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r.URL.Query())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	page, err := s.monitorings.ListByDevice(r.Context(), chi.URLParam(r, "code"), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleCreateMonitorings creates one or more records in one batch.
func (s *Server) handleCreateMonitorings(w http.ResponseWriter, r *http.Request) {
	reqs, ok := decodeMonitoringRequests(w, r)
	if !ok {
		return
	}

	created, err := s.monitorings.Create(r.Context(), reqs)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetMonitoring(w http.ResponseWriter, r *http.Request) {
	m, err := s.monitorings.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleUpdateMonitoring(w http.ResponseWriter, r *http.Request) {
	var req monitoring.Request
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := s.monitorings.Update(r.Context(), chi.URLParam(r, "code"), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteMonitoring(w http.ResponseWriter, r *http.Request) {
	if err := s.monitorings.Delete(r.Context(), chi.URLParam(r, "code")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeMessage(w, "Monitoring deleted")
}

// handleBulkDeleteMonitorings deletes every listed record or none.
func (s *Server) handleBulkDeleteMonitorings(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.monitorings.DeleteMany(r.Context(), req.Codes); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeMessage(w, "Monitorings deleted")
}
