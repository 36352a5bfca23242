package rbac

const (
	RoleLearner    = "learner"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

const (
	PermAttemptCreate  = "attempt:create"
	PermAttemptSubmit  = "attempt:submit"
	PermAttemptViewOwn = "attempt:view-own"
	PermAttemptViewAll = "attempt:view-all"
	PermAuditRead      = "audit:read"
)

// RolePermissions is the default policy.
var RolePermissions = map[string][]string{
	RoleLearner: {
		PermAttemptCreate,
		PermAttemptSubmit,
		PermAttemptViewOwn,
	},
	RoleInstructor: {
		"attempt:view-*",
		PermAuditRead,
	},
	RoleAdmin: {
		"*",
	},
}
