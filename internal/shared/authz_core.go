package shared

// Core platform permissions.
const (
	PermPrincipalsView = "principals.view"
	PermPrincipalsEdit = "principals.edit"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"

	PermPermissionsView = "permissions.view"

	// PermAttendanceMark guards marking attendance for a section. It is the
	// one permission carrying a resource condition today.
	PermAttendanceMark = "attendance_mark"
)

// Resource types known to the access evaluator.
const (
	ResourceSection = "section"
)

// Condition types interpreted by the access evaluator.
const (
	ConditionAttributePresent = "attribute_present"
)

// AttrFacultyID links a principal to its staff record.
const AttrFacultyID = "faculty_id"

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermPrincipalsView,
		PermPrincipalsEdit,
		PermRolesView,
		PermRolesEdit,
		PermPermissionsView,
	}
}
