package access

import "strings"

// The closed permission enumeration. Grant writes reject any name not
// listed here. modix_* permissions are panel-wide, container_* ones can
// additionally be scoped to a single workload.
const (
	PermDashboardAccess   = "modix_dashboard_access"
	PermManagePermissions = "modix_manage_permissions"
	PermUserCreate        = "modix_user_create"
	PermUserEdit          = "modix_user_edit"
	PermUserDelete        = "modix_user_delete"
	PermRoleCreate        = "modix_role_create"
	PermRoleEdit          = "modix_role_edit"
	PermRoleDelete        = "modix_role_delete"
	PermServerCreate      = "modix_server_create"
	PermServerEdit        = "modix_server_edit"
	PermServerDelete      = "modix_server_delete"
	PermSchemas           = "modix_schemas"
	PermGetContainers     = "modix_get_containers"

	PermTerminalAccess    = "container_terminal_access"
	PermTerminalExec      = "container_terminal_exec"
	PermFilemanagerAccess = "container_filemanager_access"
	PermFileRead          = "container_file_read"
	PermFileWrite         = "container_file_write"
	PermFileDelete        = "container_file_delete"
	PermLogsView          = "container_logs_view"
	PermMetricsView       = "container_metrics_view"
	PermContainerManage   = "container_manage"
)

var allPermissions = []string{
	PermDashboardAccess,
	PermManagePermissions,
	PermUserCreate,
	PermUserEdit,
	PermUserDelete,
	PermRoleCreate,
	PermRoleEdit,
	PermRoleDelete,
	PermServerCreate,
	PermServerEdit,
	PermServerDelete,
	PermSchemas,
	PermGetContainers,
	PermTerminalAccess,
	PermTerminalExec,
	PermFilemanagerAccess,
	PermFileRead,
	PermFileWrite,
	PermFileDelete,
	PermLogsView,
	PermMetricsView,
	PermContainerManage,
}

var permissionSet = func() map[string]bool {
	m := make(map[string]bool, len(allPermissions))
	for _, p := range allPermissions {
		m[p] = true
	}
	return m
}()

// AllPermissions returns the enumeration in declaration order.
func AllPermissions() []string {
	out := make([]string, len(allPermissions))
	copy(out, allPermissions)
	return out
}

// ValidPermission reports whether name is in the closed enumeration.
func ValidPermission(name string) bool {
	return permissionSet[name]
}

// ContainerScoped reports whether the permission may carry a container
// scope.
func ContainerScoped(name string) bool {
	return strings.HasPrefix(name, "container_")
}
