package repo

import (
	"context"
	"database/sql"
	"strings"

	"taskdesk/internal/domain"
)

const proposalColumns = `id,user_id,title,objective,start_date,end_date,budget,status,linked_plan_id,submitted_at,created_at,updated_at`

func (r Repo) InsertProposal(ctx context.Context, tx *sql.Tx, p domain.Proposal) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO proposals(`+proposalColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.UserID, p.Title, p.Objective, p.StartDate, p.EndDate, p.Budget, p.Status,
		nullableStringPtr(p.LinkedPlanID), nullableStringPtr(p.SubmittedAt), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) UpdateProposal(ctx context.Context, tx *sql.Tx, p domain.Proposal) error {
	res, err := tx.ExecContext(ctx, `UPDATE proposals SET title=?, objective=?, start_date=?, end_date=?, budget=?, status=?, linked_plan_id=?, submitted_at=?, updated_at=? WHERE id=?`,
		p.Title, p.Objective, p.StartDate, p.EndDate, p.Budget, p.Status,
		nullableStringPtr(p.LinkedPlanID), nullableStringPtr(p.SubmittedAt), p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProposal(scan func(dest ...any) error) (domain.Proposal, error) {
	var p domain.Proposal
	var linkedPlan, submittedAt sql.NullString
	err := scan(&p.ID, &p.UserID, &p.Title, &p.Objective, &p.StartDate, &p.EndDate, &p.Budget,
		&p.Status, &linkedPlan, &submittedAt, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if linkedPlan.Valid {
		p.LinkedPlanID = &linkedPlan.String
	}
	if submittedAt.Valid {
		p.SubmittedAt = &submittedAt.String
	}
	return p, err
}

func (r Repo) GetProposal(ctx context.Context, id string) (domain.Proposal, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id=?`, id)
	return scanProposal(row.Scan)
}

func (r Repo) GetProposalTx(ctx context.Context, tx *sql.Tx, id string) (domain.Proposal, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id=?`, id)
	return scanProposal(row.Scan)
}

type ProposalFilters struct {
	UserID          string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListProposals(ctx context.Context, f ProposalFilters) ([]domain.Proposal, error) {
	var clauses []string
	var args []any
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + proposalColumns + ` FROM proposals ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Proposal
	for rows.Next() {
		p, err := scanProposal(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) DeleteProposal(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM proposals WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- proposal departments ---

func (r Repo) ListProposalDepartments(ctx context.Context, proposalID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT department_id FROM proposal_departments WHERE proposal_id=?`, proposalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PatchProposalDepartments reconciles the proposal's department set with
// targeted inserts/deletes instead of delete-then-reinsert.
func (r Repo) PatchProposalDepartments(ctx context.Context, tx *sql.Tx, proposalID string, want []string) error {
	current, err := r.ListProposalDepartments(ctx, proposalID)
	if err != nil {
		return err
	}
	added, removed := diffSets(current, want)
	for _, id := range added {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO proposal_departments(proposal_id,department_id) VALUES (?,?)`, proposalID, id); err != nil {
			return err
		}
	}
	for _, id := range removed {
		if _, err := tx.ExecContext(ctx, `DELETE FROM proposal_departments WHERE proposal_id=? AND department_id=?`, proposalID, id); err != nil {
			return err
		}
	}
	return nil
}

// --- proposal files ---

func (r Repo) InsertProposalFile(ctx context.Context, tx *sql.Tx, f domain.ProposalFile) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO proposal_files(id,proposal_id,file_name,file_path,file_type,file_size,created_at) VALUES (?,?,?,?,?,?,?)`,
		f.ID, f.ProposalID, f.FileName, f.FilePath, f.FileType, f.FileSize, f.CreatedAt)
	return err
}

func (r Repo) GetProposalFile(ctx context.Context, id string) (domain.ProposalFile, error) {
	var f domain.ProposalFile
	err := r.DB.QueryRowContext(ctx, `SELECT id,proposal_id,file_name,file_path,file_type,file_size,created_at FROM proposal_files WHERE id=?`, id).
		Scan(&f.ID, &f.ProposalID, &f.FileName, &f.FilePath, &f.FileType, &f.FileSize, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	return f, err
}

func (r Repo) ListProposalFiles(ctx context.Context, proposalID string) ([]domain.ProposalFile, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,proposal_id,file_name,file_path,file_type,file_size,created_at FROM proposal_files WHERE proposal_id=? ORDER BY created_at, id`, proposalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProposalFile
	for rows.Next() {
		var f domain.ProposalFile
		if err := rows.Scan(&f.ID, &f.ProposalID, &f.FileName, &f.FilePath, &f.FileType, &f.FileSize, &f.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

func (r Repo) DeleteProposalFile(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM proposal_files WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- proposal comments ---

func (r Repo) InsertProposalComment(ctx context.Context, tx *sql.Tx, c domain.ProposalComment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO proposal_comments(id,proposal_id,author_id,kind,body,created_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.ProposalID, c.AuthorID, c.Kind, c.Body, c.CreatedAt)
	return err
}

func (r Repo) ListProposalComments(ctx context.Context, proposalID string) ([]domain.ProposalComment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,proposal_id,author_id,kind,body,created_at FROM proposal_comments WHERE proposal_id=? ORDER BY created_at, id`, proposalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProposalComment
	for rows.Next() {
		var c domain.ProposalComment
		if err := rows.Scan(&c.ID, &c.ProposalID, &c.AuthorID, &c.Kind, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
