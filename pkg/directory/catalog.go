package directory

// Permission resources
const (
	ResourceTest      = "TEST"
	ResourceQuestion  = "QUESTION"
	ResourceResult    = "RESULT"
	ResourceUser      = "USER"
	ResourceRole      = "ROLE"
	ResourceHierarchy = "HIERARCHY"
	ResourceAuditLog  = "AUDIT_LOG"
)

// Permission names. The catalog is the fixed universe the platform's services
// check against; test-content services consume these names, this backend only
// stores and evaluates them.
const (
	PermCreateTest  = "CREATE_TEST"
	PermViewTest    = "VIEW_TEST"
	PermDeleteTest  = "DELETE_TEST"
	PermPublishTest = "PUBLISH_TEST"
	PermTakeTest    = "TAKE_TEST"

	PermCreateQuestion = "CREATE_QUESTION"
	PermViewQuestion   = "VIEW_QUESTION"
	PermDeleteQuestion = "DELETE_QUESTION"

	PermViewResult    = "VIEW_RESULT"
	PermPublishResult = "PUBLISH_RESULT"
	PermExportResult  = "EXPORT_RESULT"

	PermCreateUser = "CREATE_USER"
	PermViewUser   = "VIEW_USER"
	PermUpdateUser = "UPDATE_USER"
	PermDeleteUser = "DELETE_USER"

	PermManageRoles = "MANAGE_ROLES"
	PermViewRoles   = "VIEW_ROLES"

	PermManageHierarchy = "MANAGE_HIERARCHY"
	PermViewHierarchy   = "VIEW_HIERARCHY"

	PermViewAuditLog   = "VIEW_AUDIT_LOG"
	PermExportAuditLog = "EXPORT_AUDIT_LOG"
)

// PermissionCatalog returns the fixed permission universe. IDs are assigned by
// the store at seed time.
func PermissionCatalog() []Permission {
	return []Permission{
		{Name: PermCreateTest, Resource: ResourceTest, Action: ActionWrite, Description: "Create and edit tests"},
		{Name: PermViewTest, Resource: ResourceTest, Action: ActionRead, Description: "View tests"},
		{Name: PermDeleteTest, Resource: ResourceTest, Action: ActionDelete, Description: "Delete tests"},
		{Name: PermPublishTest, Resource: ResourceTest, Action: ActionExecute, Description: "Publish and schedule tests"},
		{Name: PermTakeTest, Resource: ResourceTest, Action: ActionExecute, Description: "Attempt a scheduled test"},

		{Name: PermCreateQuestion, Resource: ResourceQuestion, Action: ActionWrite, Description: "Create and edit question bank entries"},
		{Name: PermViewQuestion, Resource: ResourceQuestion, Action: ActionRead, Description: "View question bank entries"},
		{Name: PermDeleteQuestion, Resource: ResourceQuestion, Action: ActionDelete, Description: "Delete question bank entries"},

		{Name: PermViewResult, Resource: ResourceResult, Action: ActionRead, Description: "View test results"},
		{Name: PermPublishResult, Resource: ResourceResult, Action: ActionWrite, Description: "Publish test results"},
		{Name: PermExportResult, Resource: ResourceResult, Action: ActionExecute, Description: "Export test results"},

		{Name: PermCreateUser, Resource: ResourceUser, Action: ActionWrite, Description: "Create user accounts"},
		{Name: PermViewUser, Resource: ResourceUser, Action: ActionRead, Description: "View user accounts"},
		{Name: PermUpdateUser, Resource: ResourceUser, Action: ActionWrite, Description: "Update user accounts"},
		{Name: PermDeleteUser, Resource: ResourceUser, Action: ActionDelete, Description: "Deactivate or delete user accounts"},

		{Name: PermManageRoles, Resource: ResourceRole, Action: ActionWrite, Description: "Create roles and edit permission sets"},
		{Name: PermViewRoles, Resource: ResourceRole, Action: ActionRead, Description: "View roles and their permissions"},

		{Name: PermManageHierarchy, Resource: ResourceHierarchy, Action: ActionWrite, Description: "Edit the state/district/school hierarchy"},
		{Name: PermViewHierarchy, Resource: ResourceHierarchy, Action: ActionRead, Description: "Browse the organizational hierarchy"},

		{Name: PermViewAuditLog, Resource: ResourceAuditLog, Action: ActionRead, Description: "Search and view audit records"},
		{Name: PermExportAuditLog, Resource: ResourceAuditLog, Action: ActionExecute, Description: "Export audit records"},
	}
}

// BuiltInRoles returns the six canonical roles with their default permission
// sets. ADMIN bypasses permission checks in the engine, but still carries the
// full catalog so token claims and UI capability lists stay truthful.
func BuiltInRoles() []Role {
	byName := make(map[string]Permission)
	for _, p := range PermissionCatalog() {
		byName[p.Name] = p
	}
	pick := func(names ...string) []Permission {
		perms := make([]Permission, 0, len(names))
		for _, n := range names {
			perms = append(perms, byName[n])
		}
		return perms
	}

	return []Role{
		{
			Name:        RoleAdmin,
			Description: "Platform administrator with unrestricted access",
			Permissions: PermissionCatalog(),
		},
		{
			Name:        RoleState,
			Description: "State coordinator: oversees districts, staff, and results within a state",
			Permissions: pick(
				PermCreateTest, PermViewTest, PermPublishTest,
				PermViewQuestion,
				PermViewResult, PermExportResult,
				PermCreateUser, PermViewUser, PermUpdateUser,
				PermViewRoles, PermViewHierarchy, PermViewAuditLog,
			),
		},
		{
			Name:        RoleDistrict,
			Description: "District coordinator: schedules tests and manages school staff in a district",
			Permissions: pick(
				PermViewTest, PermPublishTest,
				PermViewQuestion,
				PermViewResult, PermExportResult,
				PermCreateUser, PermViewUser, PermUpdateUser,
				PermViewHierarchy,
			),
		},
		{
			Name:        RoleSchool,
			Description: "School administrator: enrolls teachers and students, runs scheduled tests",
			Permissions: pick(
				PermViewTest, PermPublishTest,
				PermViewResult,
				PermCreateUser, PermViewUser, PermUpdateUser,
				PermViewHierarchy,
			),
		},
		{
			Name:        RoleClass,
			Description: "Class teacher: authors questions and tests, reviews class results",
			Permissions: pick(
				PermCreateTest, PermViewTest, PermPublishTest,
				PermCreateQuestion, PermViewQuestion,
				PermViewResult,
				PermViewUser, PermUpdateUser,
			),
		},
		{
			Name:        RoleStudent,
			Description: "Student: attempts scheduled tests and views own results",
			Permissions: pick(
				PermViewTest, PermTakeTest,
				PermViewResult,
			),
		},
	}
}
