package models

import "time"

// Course represents a course offering that casual timesheets are claimed against.
type Course struct {
	ID         string    `db:"id" json:"id"`
	Code       string    `db:"code" json:"code"`
	Name       string    `db:"name" json:"name"`
	LecturerID string    `db:"lecturer_id" json:"lecturer_id"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// CourseFilter captures filtering criteria for listing courses.
type CourseFilter struct {
	LecturerID string
	Active     *bool
	Search     string
	Page       int
	PageSize   int
}
