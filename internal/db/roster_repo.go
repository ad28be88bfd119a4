package db

import (
	"context"

	"seasonmail/internal/types"
)

// RosterRepository reads the enrollment side of the platform schema:
// enrollments, students, and parents. Read-only.
type RosterRepository struct {
	db DBTX
}

// NewRosterRepository creates a RosterRepository backed by the given
// database connection (pool or transaction).
func NewRosterRepository(db DBTX) *RosterRepository {
	return &RosterRepository{db: db}
}

// ListActiveEnrollments returns the active enrollments for a team.
func (r *RosterRepository) ListActiveEnrollments(ctx context.Context, teamID string) ([]types.Enrollment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT student_id, team_id, is_active
		 FROM enrollments
		 WHERE team_id = $1 AND is_active = TRUE`,
		teamID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "listing enrollments", err)
	}
	defer rows.Close()

	var out []types.Enrollment
	for rows.Next() {
		var e types.Enrollment
		if err := rows.Scan(&e.StudentID, &e.TeamID, &e.IsActive); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "scanning enrollment row", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "iterating enrollment rows", err)
	}
	return out, nil
}

// ListStudentsByIDs loads students by id list. Missing ids are simply absent
// from the result; callers tolerate partial rosters.
func (r *RosterRepository) ListStudentsByIDs(ctx context.Context, ids []string) ([]types.Student, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(parent_id, '')
		 FROM students
		 WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "listing students", err)
	}
	defer rows.Close()

	var out []types.Student
	for rows.Next() {
		var s types.Student
		if err := rows.Scan(&s.ID, &s.FirstName, &s.LastName, &s.ParentID); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "scanning student row", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "iterating student rows", err)
	}
	return out, nil
}

// ListParentsByIDs loads parents by id list. Email may be NULL in the store;
// it comes back as an empty string and the job skips those parents.
func (r *RosterRepository) ListParentsByIDs(ctx context.Context, ids []string) ([]types.Parent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(email, '')
		 FROM parents
		 WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "listing parents", err)
	}
	defer rows.Close()

	var out []types.Parent
	for rows.Next() {
		var p types.Parent
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "scanning parent row", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "iterating parent rows", err)
	}
	return out, nil
}
