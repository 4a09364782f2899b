package repository

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/productbazar/api/internal/model"
)

// JobRepo serves the read-only job search surface.
type JobRepo struct{ DB *sql.DB }

func NewJobRepo(db *sql.DB) *JobRepo { return &JobRepo{DB: db} }

// JobQuery defines filters & pagination for searching jobs. Mode "strict"
// requires every term to match; "flexible" accepts any term.
type JobQuery struct {
	Terms    []string
	Mode     string // strict | flexible
	Page     int
	PageSize int
}

const jobCols = "j.id, j.title, j.description, j.company_name, j.location, j.created_at"

// Search matches terms against title, description, company name and the
// job_skills relation.
func (r *JobRepo) Search(ctx context.Context, q JobQuery) ([]model.Job, int, error) {
	var conds []string
	var args []any
	for _, term := range q.Terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		like := "%" + term + "%"
		conds = append(conds,
			`(LOWER(j.title) LIKE ? OR LOWER(j.description) LIKE ? OR LOWER(j.company_name) LIKE ?
			  OR EXISTS (SELECT 1 FROM job_skills s WHERE s.job_id = j.id AND LOWER(s.skill) LIKE ?))`)
		args = append(args, like, like, like, like)
	}

	cond := "1=1"
	if len(conds) > 0 {
		sep := " AND "
		if strings.EqualFold(q.Mode, "flexible") {
			sep = " OR "
		}
		cond = "(" + strings.Join(conds, sep) + ")"
	}

	var total int
	if err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM jobs j WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if q.PageSize < 1 {
		q.PageSize = 20
	}
	if q.Page < 1 {
		q.Page = 1
	}
	pageArgs := append(append([]any{}, args...), q.PageSize, (q.Page-1)*q.PageSize)
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+jobCols+" FROM jobs j WHERE "+cond+" ORDER BY j.created_at DESC LIMIT ? OFFSET ?",
		pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []model.Job
	for rows.Next() {
		var j model.Job
		if err := rows.Scan(&j.ID, &j.Title, &j.Description, &j.CompanyName, &j.Location, &j.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	// Batch-load skills.
	if len(out) > 0 {
		ids := make([]any, len(out))
		idx := make(map[uint64]int, len(out))
		for i := range out {
			ids[i] = out[i].ID
			idx[out[i].ID] = i
		}
		srows, err := r.DB.QueryContext(ctx,
			"SELECT job_id, skill FROM job_skills WHERE job_id IN ("+placeholders(len(ids))+")", ids...)
		if err != nil {
			return nil, 0, err
		}
		defer srows.Close()
		for srows.Next() {
			var jid uint64
			var skill string
			if err := srows.Scan(&jid, &skill); err != nil {
				return nil, 0, err
			}
			if i, ok := idx[jid]; ok {
				out[i].Skills = append(out[i].Skills, skill)
			}
		}
		if err := srows.Err(); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

// ProjectRepo serves the project read surface and its engagement tracking
// counters.
type ProjectRepo struct{ DB *sql.DB }

func NewProjectRepo(db *sql.DB) *ProjectRepo { return &ProjectRepo{DB: db} }

const projectCols = "id, slug, owner_id, title, description, category, like_count, share_count, click_count, created_at, updated_at"

func scanProject(sc interface{ Scan(...any) error }) (model.Project, error) {
	var p model.Project
	err := sc.Scan(&p.ID, &p.Slug, &p.OwnerID, &p.Title, &p.Description, &p.Category,
		&p.LikeCount, &p.ShareCount, &p.ClickCount, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// ProjectQuery filters the project listing.
type ProjectQuery struct {
	Category string
	Search   string
	Page     int
	PageSize int
}

func (r *ProjectRepo) List(ctx context.Context, q ProjectQuery) ([]model.Project, int, error) {
	where := []string{"1=1"}
	var args []any
	if q.Category != "" {
		where = append(where, "category=?")
		args = append(args, q.Category)
	}
	if q.Search != "" {
		where = append(where, "LOWER(title) LIKE ?")
		args = append(args, "%"+strings.ToLower(q.Search)+"%")
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM projects WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}
	if q.Page < 1 {
		q.Page = 1
	}
	args = append(args, q.PageSize, (q.Page-1)*q.PageSize)
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+projectCols+" FROM projects WHERE "+cond+" ORDER BY created_at DESC LIMIT ? OFFSET ?",
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// GetByIDOrSlug resolves a numeric id or a slug.
func (r *ProjectRepo) GetByIDOrSlug(ctx context.Context, idOrSlug string) (model.Project, error) {
	if id, err := strconv.ParseUint(idOrSlug, 10, 64); err == nil {
		p, err := scanProject(r.DB.QueryRowContext(ctx,
			"SELECT "+projectCols+" FROM projects WHERE id=? LIMIT 1", id))
		return p, notFound(err)
	}
	p, err := scanProject(r.DB.QueryRowContext(ctx,
		"SELECT "+projectCols+" FROM projects WHERE slug=? LIMIT 1", idOrSlug))
	return p, notFound(err)
}

// Track bumps one engagement counter; kind must be like, share or click.
func (r *ProjectRepo) Track(ctx context.Context, id uint64, kind string) (model.Project, error) {
	var column string
	switch kind {
	case "like":
		column = "like_count"
	case "share":
		column = "share_count"
	case "click":
		column = "click_count"
	default:
		return model.Project{}, ErrNotFound
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE projects SET "+column+" = "+column+" + 1 WHERE id=?", id)
	if err != nil {
		return model.Project{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.Project{}, ErrNotFound
	}
	p, err := scanProject(r.DB.QueryRowContext(ctx,
		"SELECT "+projectCols+" FROM projects WHERE id=? LIMIT 1", id))
	return p, notFound(err)
}
