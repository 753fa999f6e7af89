package auth

import "github.com/gsis-platform/gsis-dashboard/internal/domain"

// Action is a capability-gated operation surfaced in the dashboard.
type Action string

const (
	ActionCreateAlert  Action = "create_alert"
	ActionResolveAlert Action = "resolve_alert"
	ActionDeleteAlert  Action = "delete_alert"
	ActionExport       Action = "export"
	ActionUpload       Action = "upload"
	ActionManageUsers  Action = "manage_users"
)

// capabilities is the single role-to-action table. Views consult CanPerform
// instead of comparing roles at each call site.
var capabilities = map[domain.Role]map[Action]bool{
	domain.RoleAdmin: {
		ActionCreateAlert:  true,
		ActionResolveAlert: true,
		ActionDeleteAlert:  true,
		ActionExport:       true,
		ActionUpload:       true,
		ActionManageUsers:  true,
	},
	domain.RoleAnalyst: {
		ActionCreateAlert:  true,
		ActionResolveAlert: true,
		ActionDeleteAlert:  true,
		ActionExport:       true,
		ActionUpload:       true,
	},
	domain.RoleViewer: {
		ActionUpload: true,
	},
}

// CanPerform reports whether the role grants the action. Advisory only:
// remote services enforce their own authorization.
func CanPerform(role domain.Role, action Action) bool {
	return capabilities[role][action]
}
