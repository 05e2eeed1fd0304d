package repo

import (
	"context"
	"database/sql"
	"strings"

	"taskdesk/internal/domain"
)

const completionColumns = `id,assignment_id,subtask_id,user_id,progress_percentage,is_fully_completed,work_description,challenges,next_steps,status,reviewer_id,review_comment,submitted_at,reviewed_at,created_at,updated_at`

func (r Repo) InsertCompletion(ctx context.Context, tx *sql.Tx, c domain.Completion) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO completions(`+completionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.AssignmentID, nullableStringPtr(c.SubtaskID), c.UserID, c.ProgressPercentage, boolInt(c.IsFullyCompleted),
		c.WorkDescription, nullable(c.Challenges), nullable(c.NextSteps), c.Status,
		nullableStringPtr(c.ReviewerID), nullable(c.ReviewComment),
		nullableStringPtr(c.SubmittedAt), nullableStringPtr(c.ReviewedAt), c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) UpdateCompletion(ctx context.Context, tx *sql.Tx, c domain.Completion) error {
	res, err := tx.ExecContext(ctx, `UPDATE completions SET progress_percentage=?, is_fully_completed=?, work_description=?, challenges=?, next_steps=?, status=?, reviewer_id=?, review_comment=?, submitted_at=?, reviewed_at=?, updated_at=? WHERE id=?`,
		c.ProgressPercentage, boolInt(c.IsFullyCompleted), c.WorkDescription, nullable(c.Challenges), nullable(c.NextSteps),
		c.Status, nullableStringPtr(c.ReviewerID), nullable(c.ReviewComment),
		nullableStringPtr(c.SubmittedAt), nullableStringPtr(c.ReviewedAt), c.UpdatedAt, c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCompletion(scan func(dest ...any) error) (domain.Completion, error) {
	var c domain.Completion
	var fully int
	var subtask, challenges, nextSteps, reviewer, reviewComment, submittedAt, reviewedAt sql.NullString
	err := scan(&c.ID, &c.AssignmentID, &subtask, &c.UserID, &c.ProgressPercentage, &fully,
		&c.WorkDescription, &challenges, &nextSteps, &c.Status, &reviewer, &reviewComment,
		&submittedAt, &reviewedAt, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	c.IsFullyCompleted = fully != 0
	if subtask.Valid {
		c.SubtaskID = &subtask.String
	}
	if challenges.Valid {
		c.Challenges = challenges.String
	}
	if nextSteps.Valid {
		c.NextSteps = nextSteps.String
	}
	if reviewer.Valid {
		c.ReviewerID = &reviewer.String
	}
	if reviewComment.Valid {
		c.ReviewComment = reviewComment.String
	}
	if submittedAt.Valid {
		c.SubmittedAt = &submittedAt.String
	}
	if reviewedAt.Valid {
		c.ReviewedAt = &reviewedAt.String
	}
	return c, err
}

func (r Repo) GetCompletion(ctx context.Context, id string) (domain.Completion, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+completionColumns+` FROM completions WHERE id=?`, id)
	return scanCompletion(row.Scan)
}

func (r Repo) GetCompletionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Completion, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+completionColumns+` FROM completions WHERE id=?`, id)
	return scanCompletion(row.Scan)
}

// ActiveCompletion returns the single editable completion for an assignment,
// or ErrNotFound.
func (r Repo) ActiveCompletion(ctx context.Context, assignmentID string) (domain.Completion, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+completionColumns+` FROM completions WHERE assignment_id=? AND status IN ('draft','revision_requested')`, assignmentID)
	return scanCompletion(row.Scan)
}

// LatestCompletion returns the most recent completion for an assignment in
// any status, or ErrNotFound.
func (r Repo) LatestCompletion(ctx context.Context, assignmentID string) (domain.Completion, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+completionColumns+` FROM completions WHERE assignment_id=? ORDER BY created_at DESC, id DESC LIMIT 1`, assignmentID)
	return scanCompletion(row.Scan)
}

type CompletionFilters struct {
	Status          string
	Search          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// ListReviewable lists non-draft completions, optionally matched against the
// task title or assignee name.
func (r Repo) ListReviewable(ctx context.Context, f CompletionFilters) ([]domain.Completion, error) {
	clauses := []string{"c.status != 'draft'"}
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "c.status=?")
		args = append(args, f.Status)
	}
	if f.Search != "" {
		clauses = append(clauses, `(t.title LIKE ? OR u.name LIKE ?)`)
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(c.created_at < ? OR (c.created_at = ? AND c.id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	cols := "c." + strings.ReplaceAll(completionColumns, ",", ",c.")
	query := `SELECT ` + cols + ` FROM completions c
JOIN assignments a ON a.id=c.assignment_id
JOIN tasks t ON t.id=a.task_id
JOIN users u ON u.id=c.user_id
WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY c.created_at DESC, c.id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Completion
	for rows.Next() {
		c, err := scanCompletion(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// --- completion files ---

func (r Repo) InsertCompletionFile(ctx context.Context, tx *sql.Tx, f domain.CompletionFile) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO completion_files(id,completion_id,file_name,file_path,file_type,file_size,category,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		f.ID, f.CompletionID, f.FileName, f.FilePath, f.FileType, f.FileSize, f.Category, f.CreatedAt)
	return err
}

func (r Repo) GetCompletionFile(ctx context.Context, id string) (domain.CompletionFile, error) {
	var f domain.CompletionFile
	err := r.DB.QueryRowContext(ctx, `SELECT id,completion_id,file_name,file_path,file_type,file_size,category,created_at FROM completion_files WHERE id=?`, id).
		Scan(&f.ID, &f.CompletionID, &f.FileName, &f.FilePath, &f.FileType, &f.FileSize, &f.Category, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	return f, err
}

func (r Repo) ListCompletionFiles(ctx context.Context, completionID string) ([]domain.CompletionFile, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,completion_id,file_name,file_path,file_type,file_size,category,created_at FROM completion_files WHERE completion_id=? ORDER BY created_at, id`, completionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CompletionFile
	for rows.Next() {
		var f domain.CompletionFile
		if err := rows.Scan(&f.ID, &f.CompletionID, &f.FileName, &f.FilePath, &f.FileType, &f.FileSize, &f.Category, &f.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

func (r Repo) DeleteCompletionFile(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM completion_files WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
