// errors.go classifies PostgreSQL integrity violations so services can branch on
// the violated constraint instead of matching driver error text.
package repositories

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

// Constraint names created by the embedded migrations.
const (
	ConstraintOrganizationName   = "organizations_name_key"
	ConstraintProjectName        = "projects_organization_id_name_key"
	ConstraintProjectOrgFK       = "projects_organization_id_fkey"
	ConstraintTokenHash          = "api_tokens_token_hash_key"
	ConstraintTokenProjectFK     = "api_tokens_project_id_fkey"
	ConstraintTestRunIdempotency = "test_runs_project_id_run_id_key"
	ConstraintTestRunProjectFK   = "test_runs_project_id_fkey"
)

// ViolationKind is the class of integrity violation behind a failed write.
type ViolationKind int

const (
	NoViolation ViolationKind = iota
	UniqueViolation
	ForeignKeyViolation
	CheckViolation
)

// Violation describes a constraint violation reported by PostgreSQL.
type Violation struct {
	Kind       ViolationKind
	Constraint string
}

// Is reports whether v is a violation of the given kind on the named constraint.
func (v Violation) Is(kind ViolationKind, constraint string) bool {
	return v.Kind == kind && v.Constraint == constraint
}

// ClassifyViolation inspects err for a *pq.Error carrying an integrity violation.
// Errors that are not integrity violations return the zero Violation.
func ClassifyViolation(err error) Violation {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return Violation{}
	}

	switch string(pqErr.Code) {
	case pgerrcode.UniqueViolation:
		return Violation{Kind: UniqueViolation, Constraint: pqErr.Constraint}
	case pgerrcode.ForeignKeyViolation:
		return Violation{Kind: ForeignKeyViolation, Constraint: pqErr.Constraint}
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
		return Violation{Kind: CheckViolation, Constraint: pqErr.Constraint}
	default:
		return Violation{}
	}
}
