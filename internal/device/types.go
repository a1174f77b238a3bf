package device

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rodolfodiegosilva/iot-system-api/internal/auth"
)

// Status is the power state of a device.
type Status string

const (
	StatusOn  Status = "ON"
	StatusOff Status = "OFF"
)

// Valid reports whether s is ON or OFF.
func (s Status) Valid() bool {
	return s == StatusOn || s == StatusOff
}

// ParseStatus parses a status case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

// Operation is a command sent to a device.
type Operation string

const (
	OperationActivate   Operation = "Activate"
	OperationDeactivate Operation = "Deactivate"
)

// TargetStatus returns the status a device ends in after op.
func (op Operation) TargetStatus() (Status, error) {
	switch op {
	case OperationActivate:
		return StatusOn, nil
	case OperationDeactivate:
		return StatusOff, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOperation, string(op))
	}
}

// Parameter is one argument of a device command.
type Parameter struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Command is the raw command string a device understands.
type Command struct {
	Command    string      `json:"command"`
	Parameters []Parameter `json:"parameters"`
}

// CommandDescription documents one operation a device supports.
type CommandDescription struct {
	Operation   string  `json:"operation"`
	Description string  `json:"description"`
	Result      string  `json:"result"`
	Format      string  `json:"format"`
	Command     Command `json:"command"`
}

// Device is a registered IoT device.
type Device struct {
	ID           string               `json:"id"`
	Code         string               `json:"deviceCode"`
	Name         string               `json:"deviceName"`
	Description  string               `json:"description"`
	IndustryType string               `json:"industryType"`
	Manufacturer string               `json:"manufacturer"`
	URL          string               `json:"url"`
	Status       Status               `json:"deviceStatus"`
	Commands     []CommandDescription `json:"commands"`
	CreatedBy    string               `json:"createdBy"`
	Members      []string             `json:"members"`
	CreatedAt    time.Time            `json:"createdAt"`
	UpdatedAt    time.Time            `json:"updatedAt"`
}

// Ownership implements auth.Resource.
func (d *Device) Ownership() auth.Ownership {
	return auth.Ownership{CreatedBy: d.CreatedBy, Members: d.Members}
}

// DeepCopy returns a copy of d that shares no slices with it.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	cpy.Members = slices.Clone(d.Members)
	if d.Commands != nil {
		cpy.Commands = make([]CommandDescription, len(d.Commands))
		for i, c := range d.Commands {
			c.Command.Parameters = slices.Clone(c.Command.Parameters)
			cpy.Commands[i] = c
		}
	}
	return &cpy
}

// Request is the client payload for creating or updating a device.
// Usernames lists the accounts the device is shared with; the caller is
// always added.
type Request struct {
	Name         string               `json:"deviceName"`
	Description  string               `json:"description"`
	IndustryType string               `json:"industryType"`
	Manufacturer string               `json:"manufacturer"`
	Status       Status               `json:"deviceStatus"`
	Usernames    []string             `json:"usernames"`
	Commands     []CommandDescription `json:"commands"`
}

// Sortable columns for List.
const (
	SortByCode      = "deviceCode"
	SortByName      = "deviceName"
	SortByStatus    = "deviceStatus"
	SortByCreatedAt = "createdAt"
)

// Filter narrows a device listing. Zero values match everything.
// Scope restricts results to a member; nil means unrestricted.
type Filter struct {
	Status       Status
	IndustryType string
	Name         string
	Description  string
	Code         string
	Scope        *auth.MemberScope

	PageNo   int
	PageSize int
	SortBy   string
	SortDesc bool
}

// Page is one page of a listing. PageNo is zero-based.
type Page[T any] struct {
	Content       []T   `json:"content"`
	PageNo        int   `json:"pageNo"`
	PageSize      int   `json:"pageSize"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	Last          bool  `json:"last"`
}

// NewPage assembles page metadata around content.
func NewPage[T any](content []T, pageNo, pageSize int, total int64) *Page[T] {
	if content == nil {
		content = []T{}
	}
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return &Page[T]{
		Content:       content,
		PageNo:        pageNo,
		PageSize:      pageSize,
		TotalElements: total,
		TotalPages:    totalPages,
		Last:          pageNo+1 >= totalPages,
	}
}

// Pagination defaults.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// NormalisePaging clamps page number and size to usable values.
func NormalisePaging(pageNo, pageSize int) (int, int) {
	if pageNo < 0 {
		pageNo = 0
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return pageNo, pageSize
}
