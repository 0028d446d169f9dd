package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"formdesk/core"

	"github.com/google/uuid"
)

// SubmissionStorer is the persistence surface the api package depends on.
type SubmissionStorer interface {
	SaveSubmission(ctx context.Context, sub *core.Submission) error
	ListSubmissions(ctx context.Context, params core.ListParams) (core.SubmissionPage, error)
	GetStatistics(ctx context.Context) (core.SubmissionStats, error)
	UpdateSubmissionStatus(ctx context.Context, submissionID string, status core.SubmissionStatus) error
	AddComment(ctx context.Context, submissionID, adminName, text string) (*core.AdminComment, error)
	ListComments(ctx context.Context, submissionID string) ([]core.AdminComment, error)
}

// SQLiteSubmissionStorage implements SubmissionStorer for SQLite
type SQLiteSubmissionStorage struct {
	sqlite *SQLite
	now    func() time.Time
}

// NewSQLiteSubmissionStorage creates a new SQLite submission storage
func NewSQLiteSubmissionStorage(sqlite *SQLite) *SQLiteSubmissionStorage {
	return &SQLiteSubmissionStorage{sqlite: sqlite, now: time.Now}
}

// SaveSubmission inserts a submission. ID, CreatedAt and Status are assigned here.
func (s *SQLiteSubmissionStorage) SaveSubmission(ctx context.Context, sub *core.Submission) error {
	sub.SubmissionID = uuid.New().String()
	sub.CreatedAt = s.now().UTC()
	sub.Status = core.SubmissionStatusNew

	query := `
		INSERT INTO submissions (submission_id, name, email, phone, message, created_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.sqlite.DB.ExecContext(ctx, query,
		sub.SubmissionID,
		sub.Name,
		sub.Email,
		sub.Phone,
		sub.Message,
		sub.CreatedAt.UnixNano(),
		string(sub.Status),
	)
	if err != nil {
		return classify("save submission", err)
	}

	s.sqlite.Logger.Infow("Submission saved", "submission_id", sub.SubmissionID)
	return nil
}

// ListSubmissions returns one page of submissions ordered by a whitelisted column.
func (s *SQLiteSubmissionStorage) ListSubmissions(ctx context.Context, params core.ListParams) (core.SubmissionPage, error) {
	p := params.Normalize()

	var total int64
	if err := s.sqlite.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM submissions").Scan(&total); err != nil {
		return core.SubmissionPage{}, classify("count submissions", err)
	}

	direction := "DESC"
	if !p.Desc {
		direction = "ASC"
	}
	// Column is from a fixed whitelist; submission_id breaks ties deterministically.
	query := fmt.Sprintf(`
		SELECT submission_id, name, email, phone, message, created_at, status
		FROM submissions
		ORDER BY %s %s, submission_id %s
		LIMIT ? OFFSET ?
	`, p.Column, direction, direction)

	rows, err := s.sqlite.DB.QueryContext(ctx, query, p.PerPage, p.Offset())
	if err != nil {
		return core.SubmissionPage{}, classify("list submissions", err)
	}
	defer rows.Close()

	var data []core.Submission
	for rows.Next() {
		var (
			sub       core.Submission
			phone     sql.NullString
			createdAt int64
			status    string
		)
		if err := rows.Scan(&sub.SubmissionID, &sub.Name, &sub.Email, &phone, &sub.Message, &createdAt, &status); err != nil {
			return core.SubmissionPage{}, classify("scan submission", err)
		}
		if phone.Valid {
			v := phone.String
			sub.Phone = &v
		}
		sub.CreatedAt = time.Unix(0, createdAt).UTC()
		sub.Status = core.SubmissionStatus(status)
		data = append(data, sub)
	}
	if err := rows.Err(); err != nil {
		return core.SubmissionPage{}, classify("list submissions", err)
	}

	return core.NewSubmissionPage(data, total, p), nil
}

// GetStatistics counts submissions received today, within 7 days and within 30 days.
// Day boundaries are computed in UTC.
func (s *SQLiteSubmissionStorage) GetStatistics(ctx context.Context) (core.SubmissionStats, error) {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	week := today.AddDate(0, 0, -7)
	month := today.AddDate(0, 0, -30)

	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0)
		FROM submissions
	`
	var stats core.SubmissionStats
	err := s.sqlite.DB.QueryRowContext(ctx, query, today.UnixNano(), week.UnixNano(), month.UnixNano()).
		Scan(&stats.TotalSubmissions, &stats.TodayCount, &stats.ThisWeekCount, &stats.ThisMonthCount)
	if err != nil {
		return core.SubmissionStats{}, classify("submission statistics", err)
	}
	return stats, nil
}

// UpdateSubmissionStatus sets the status of one submission.
func (s *SQLiteSubmissionStorage) UpdateSubmissionStatus(ctx context.Context, submissionID string, status core.SubmissionStatus) error {
	if !status.IsValid() {
		return opError("update status", ErrInvalidValue, fmt.Errorf("unknown status %q", status))
	}

	res, err := s.sqlite.DB.ExecContext(ctx, "UPDATE submissions SET status = ? WHERE submission_id = ?", string(status), submissionID)
	if err != nil {
		return classify("update status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("update status", err)
	}
	if n == 0 {
		return opError("update status", ErrSubmissionNotFound, nil)
	}

	s.sqlite.Logger.Infow("Submission updated", "submission_id", submissionID, "status", status)
	return nil
}

// AddComment attaches an admin comment. An unknown submission surfaces as
// ErrConstraintViolation from the foreign key.
func (s *SQLiteSubmissionStorage) AddComment(ctx context.Context, submissionID, adminName, text string) (*core.AdminComment, error) {
	comment := &core.AdminComment{
		SubmissionID: submissionID,
		AdminName:    adminName,
		Comment:      text,
		CreatedAt:    s.now().UTC(),
	}

	res, err := s.sqlite.DB.ExecContext(ctx,
		"INSERT INTO admin_comments (submission_id, admin_name, comment, created_at) VALUES (?, ?, ?, ?)",
		comment.SubmissionID, comment.AdminName, comment.Comment, comment.CreatedAt.UnixNano(),
	)
	if err != nil {
		return nil, classify("add comment", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, classify("add comment", err)
	}
	comment.ID = id
	return comment, nil
}

// ListComments returns the comments of a submission, oldest first.
func (s *SQLiteSubmissionStorage) ListComments(ctx context.Context, submissionID string) ([]core.AdminComment, error) {
	var exists int
	err := s.sqlite.DB.QueryRowContext(ctx, "SELECT 1 FROM submissions WHERE submission_id = ?", submissionID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, opError("list comments", ErrSubmissionNotFound, nil)
	}
	if err != nil {
		return nil, classify("list comments", err)
	}

	rows, err := s.sqlite.DB.QueryContext(ctx, `
		SELECT id, submission_id, admin_name, comment, created_at
		FROM admin_comments
		WHERE submission_id = ?
		ORDER BY created_at ASC, id ASC
	`, submissionID)
	if err != nil {
		return nil, classify("list comments", err)
	}
	defer rows.Close()

	comments := []core.AdminComment{}
	for rows.Next() {
		var (
			c         core.AdminComment
			createdAt int64
		)
		if err := rows.Scan(&c.ID, &c.SubmissionID, &c.AdminName, &c.Comment, &createdAt); err != nil {
			return nil, classify("scan comment", err)
		}
		c.CreatedAt = time.Unix(0, createdAt).UTC()
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list comments", err)
	}
	return comments, nil
}
