package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rodolfodiegosilva/iot-system-api/internal/audit"
	"github.com/rodolfodiegosilva/iot-system-api/internal/auth"
	"github.com/rodolfodiegosilva/iot-system-api/internal/device"
)

type commandRequest struct {
	Operation device.Operation `json:"operation"`
}

type paging struct {
	pageNo   int
	pageSize int
	sortBy   string
	sortDesc bool
}

// pagingFromQuery reads pageNo, pageSize, sortBy and sortDir. Bad numbers
// fall back to the defaults applied by the repositories.
func pagingFromQuery(q url.Values) paging {
	pageNo, _ := strconv.Atoi(q.Get("pageNo"))     //nolint:errcheck // zero means first page
	pageSize, _ := strconv.Atoi(q.Get("pageSize")) //nolint:errcheck // zero means default
	return paging{
		pageNo:   pageNo,
		pageSize: pageSize,
		sortBy:   q.Get("sortBy"),
		sortDesc: strings.EqualFold(q.Get("sortDir"), "desc"),
	}
}

// statusFromQuery parses an optional ON/OFF query value.
func statusFromQuery(q url.Values, key string) (device.Status, error) {
	v := q.Get(key)
	if v == "" {
		return "", nil
	}
	return device.ParseStatus(v)
}

// handleListDevices returns one page of the devices visible to the caller.
//
// Query parameters:
//   - deviceStatus: ON or OFF
//   - industryType, deviceName, description, deviceCode: substring filters
//   - pageNo (zero-based), pageSize (default 10, max 100)
//   - sortBy: deviceCode, deviceName, deviceStatus, createdAt; sortDir: asc or desc
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, err := statusFromQuery(q, "deviceStatus")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	p := pagingFromQuery(q)
	page, err := s.devices.List(r.Context(), device.Filter{
		Status:       status,
		IndustryType: q.Get("industryType"),
		Name:         q.Get("deviceName"),
		Description:  q.Get("description"),
		Code:         q.Get("deviceCode"),
		PageNo:       p.pageNo,
		PageSize:     p.pageSize,
		SortBy:       p.sortBy,
		SortDesc:     p.sortDesc,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req device.Request
	if !decodeJSON(w, r, &req) {
		return
	}

	d, err := s.devices.Create(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.devices.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	var req device.Request
	if !decodeJSON(w, r, &req) {
		return
	}

	d, err := s.devices.Update(r.Context(), chi.URLParam(r, "code"), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := s.devices.Delete(r.Context(), code); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.audit.Record(r.Context(), audit.AuditLog{
		Action:     audit.ActionDeviceDelete,
		EntityType: audit.EntityDevice,
		EntityID:   code,
		UserID:     auth.PrincipalFrom(r.Context()).ID,
	})
	writeMessage(w, "Device deleted")
}

// handleDeviceCommand applies Activate or Deactivate. It serves both
// /devices/{code}/command and the device URL /devices/command/{code}.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	code := chi.URLParam(r, "code")
	d, err := s.devices.SendCommand(r.Context(), code, req.Operation)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.audit.Record(r.Context(), audit.AuditLog{
		Action:     audit.ActionDeviceCommand,
		EntityType: audit.EntityDevice,
		EntityID:   code,
		UserID:     auth.PrincipalFrom(r.Context()).ID,
		Details: map[string]any{
			"operation": string(req.Operation),
			"status":    string(d.Status),
		},
	})
	writeJSON(w, http.StatusOK, d)
}
