package core

import (
	"strings"
	"time"
)

// Listing page size bounds.
const (
	DefaultPerPage = 10
	MaxPerPage     = 10
)

// SubmissionStatus is the triage state an admin assigns to a submission.
type SubmissionStatus string

const (
	SubmissionStatusNew        SubmissionStatus = "new"
	SubmissionStatusInProgress SubmissionStatus = "in_progress"
	SubmissionStatusDone       SubmissionStatus = "done"
	SubmissionStatusArchived   SubmissionStatus = "archived"
)

func (s SubmissionStatus) String() string {
	return string(s)
}

// IsValid reports whether s is one of the known statuses.
func (s SubmissionStatus) IsValid() bool {
	switch s {
	case SubmissionStatusNew, SubmissionStatusInProgress, SubmissionStatusDone, SubmissionStatusArchived:
		return true
	}
	return false
}

// Submission is a contact request left through the public form.
type Submission struct {
	SubmissionID string           `json:"submission_id"`
	Name         string           `json:"name"`
	Email        string           `json:"email"`
	Phone        *string          `json:"phone"`
	Message      string           `json:"message"`
	CreatedAt    time.Time        `json:"created_at"`
	Status       SubmissionStatus `json:"status"`
}

// AdminComment is a note an admin attached to a submission.
type AdminComment struct {
	ID           int64     `json:"comment_id"`
	SubmissionID string    `json:"submission_id"`
	AdminName    string    `json:"admin_name"`
	Comment      string    `json:"comment"`
	CreatedAt    time.Time `json:"created_at"`
}

// SubmissionStats summarises intake volume for the dashboard.
type SubmissionStats struct {
	TotalSubmissions int64 `json:"total_submissions"`
	TodayCount       int64 `json:"today_count"`
	ThisWeekCount    int64 `json:"this_week_count"`
	ThisMonthCount   int64 `json:"this_month_count"`
}

// SortColumn names a column the listing may be ordered by.
type SortColumn string

const (
	SortByCreatedAt    SortColumn = "created_at"
	SortByName         SortColumn = "name"
	SortByEmail        SortColumn = "email"
	SortByStatus       SortColumn = "status"
	SortBySubmissionID SortColumn = "submission_id"
)

var sortAliases = map[string]SortColumn{
	"created_at":    SortByCreatedAt,
	"created":       SortByCreatedAt,
	"date":          SortByCreatedAt,
	"name":          SortByName,
	"email":         SortByEmail,
	"status":        SortByStatus,
	"submission_id": SortBySubmissionID,
	"id":            SortBySubmissionID,
}

// ListParams are the listing options as received from a client. Normalize
// must be applied before they reach a query.
type ListParams struct {
	Page    int
	PerPage int
	SortBy  string
	Order   string
}

// NormalizedListParams are safe to interpolate: Column and Desc come from a
// fixed whitelist.
type NormalizedListParams struct {
	Page    int
	PerPage int
	Column  SortColumn
	Desc    bool
}

// Offset returns the number of rows to skip.
func (p NormalizedListParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Normalize clamps the page size, defaults the page to 1 and maps unknown sort
// columns or directions to created_at descending.
func (p ListParams) Normalize() NormalizedListParams {
	n := NormalizedListParams{Page: p.Page, PerPage: p.PerPage, Column: SortByCreatedAt, Desc: true}
	if n.Page < 1 {
		n.Page = 1
	}
	if n.PerPage == 0 {
		n.PerPage = DefaultPerPage
	}
	if n.PerPage < 1 {
		n.PerPage = 1
	}
	if n.PerPage > MaxPerPage {
		n.PerPage = MaxPerPage
	}
	if col, ok := sortAliases[strings.ToLower(strings.TrimSpace(p.SortBy))]; ok {
		n.Column = col
	}
	if strings.EqualFold(strings.TrimSpace(p.Order), "asc") {
		n.Desc = false
	}
	return n
}

// SubmissionPage is one page of the admin listing.
type SubmissionPage struct {
	Data       []Submission `json:"data"`
	TotalCount int64        `json:"total_count"`
	Page       int          `json:"page"`
	PerPage    int          `json:"per_page"`
	TotalPages int64        `json:"total_pages"`
	HasNext    bool         `json:"has_next"`
	HasPrev    bool         `json:"has_prev"`
}

// NewSubmissionPage computes the page counters.
func NewSubmissionPage(data []Submission, total int64, p NormalizedListParams) SubmissionPage {
	if data == nil {
		data = []Submission{}
	}
	perPage := int64(p.PerPage)
	totalPages := (total + perPage - 1) / perPage
	return SubmissionPage{
		Data:       data,
		TotalCount: total,
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalPages: totalPages,
		HasNext:    int64(p.Page) < totalPages,
		HasPrev:    p.Page > 1,
	}
}
