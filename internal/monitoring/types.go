package monitoring

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rodolfodiegosilva/iot-system-api/internal/auth"
	"github.com/rodolfodiegosilva/iot-system-api/internal/device"
)

// Monitoring is a monitoring record for one device.
type Monitoring struct {
	ID          string        `json:"id"`
	Code        string        `json:"monitoringCode"`
	Description string        `json:"description"`
	DeviceID    string        `json:"-"`
	DeviceCode  string        `json:"deviceCode"`
	DeviceName  string        `json:"deviceName"`
	Status      device.Status `json:"monitoringStatus"`
	CreatedBy   string        `json:"createdBy"`
	Members     []string      `json:"members"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Ownership implements auth.Resource.
func (m *Monitoring) Ownership() auth.Ownership {
	return auth.Ownership{CreatedBy: m.CreatedBy, Members: m.Members}
}

// Clone returns a copy of m that shares no slices with it.
func (m *Monitoring) Clone() *Monitoring {
	if m == nil {
		return nil
	}
	cpy := *m
	cpy.Members = slices.Clone(m.Members)
	return &cpy
}

// Request is the client payload for creating or updating a record.
type Request struct {
	DeviceCode  string        `json:"deviceCode"`
	Status      device.Status `json:"monitoringStatus"`
	Description string        `json:"description"`
}

const maxDescriptionLength = 1000

// MaxBatchSize bounds batch create and delete.
const MaxBatchSize = 100

// Validate checks a request. An empty status means OFF.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.DeviceCode) == "" {
		return fmt.Errorf("%w: deviceCode is required", ErrInvalidMonitoring)
	}
	if r.Status != "" && !r.Status.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidMonitoring, device.ErrInvalidStatus, string(r.Status))
	}
	if len(r.Description) > maxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidMonitoring, maxDescriptionLength)
	}
	return nil
}

// Sortable columns for List.
const (
	SortByCode      = "monitoringCode"
	SortByStatus    = "monitoringStatus"
	SortByDevice    = "deviceCode"
	SortByCreatedAt = "createdAt"
	SortByUpdatedAt = "updatedAt"
)

// Filter narrows a listing. Zero values match everything. DeviceCode is
// an exact match; Code and DeviceName are substring matches.
type Filter struct {
	Status      device.Status
	DeviceCode  string
	Code        string
	DeviceName  string
	CreatedFrom time.Time
	CreatedTo   time.Time
	Scope       *auth.MemberScope

	PageNo   int
	PageSize int
	SortBy   string
	SortDesc bool
}
