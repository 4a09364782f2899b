package model

import "time"

// Job mirrors the `jobs` table. Jobs are read-only through this API; the
// admin surface that writes them lives elsewhere.
type Job struct {
	ID          uint64    // jobs.id
	Title       string    // jobs.title
	Description string    // jobs.description
	Skills      []string  // job_skills rows
	CompanyName string    // jobs.company_name
	Location    string    // jobs.location
	CreatedAt   time.Time // jobs.created_at
}

// Project mirrors the `projects` table, with engagement counters bumped by
// the public tracking endpoint.
type Project struct {
	ID         uint64    // projects.id
	Slug       string    // projects.slug
	OwnerID    uint64    // projects.owner_id
	Title      string    // projects.title
	Description string   // projects.description
	Category   string    // projects.category
	LikeCount  int       // projects.like_count
	ShareCount int       // projects.share_count
	ClickCount int       // projects.click_count
	CreatedAt  time.Time // projects.created_at
	UpdatedAt  time.Time // projects.updated_at
}
