// Copyright 2026 The QADeck Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rbac

// -----------------------------------------------------------------------------
// Default Role Permission Mappings
// Used when no catalog file is configured, and as the seed for tests.
// -----------------------------------------------------------------------------

// SuperAdminPermissions defines permissions for the super_admin global role.
var SuperAdminPermissions = []Permission{
	Wildcard,
}

// GlobalAdminPermissions defines permissions for the admin global role.
var GlobalAdminPermissions = []Permission{
	PermUserView,
	PermUserManage,
	PermTenantCreate,
	PermTenantList,
	PermCatalogManage,
	PermProfileView,
	PermProfileEdit,
}

// GlobalUserPermissions defines permissions for the user global role.
var GlobalUserPermissions = []Permission{
	PermProfileView,
	PermProfileEdit,
}

// GlobalGuestPermissions defines permissions for the guest global role.
var GlobalGuestPermissions = []Permission{
	PermProfileView,
}

// TenantOwnerPermissions defines permissions for the owner tenant role.
var TenantOwnerPermissions = []Permission{
	PermTenantView,
	PermTenantManageMembers,
	PermTenantManageSettings,
	PermTenantViewAudit,
	PermTenantDelete,
	PermDashboardView,
	PermChatUse,
	PermBotConfigure,
	PermProjectView,
	PermProjectCreate,
	PermProjectEdit,
	PermProjectDelete,
	PermProjectManageMembers,
	PermTestCaseView,
	PermTestCaseCreate,
	PermTestCaseEdit,
	PermTestCaseDelete,
	PermTestPlanView,
	PermTestPlanManage,
	PermTestRunView,
	PermTestRunExecute,
	PermTestRunManage,
	PermReportView,
	PermReportCreate,
	PermReportExport,
	PermReportDelete,
}

// TenantAdminPermissions defines permissions for the admin tenant role.
// Same as owner without tenant deletion.
var TenantAdminPermissions = []Permission{
	PermTenantView,
	PermTenantManageMembers,
	PermTenantManageSettings,
	PermTenantViewAudit,
	PermDashboardView,
	PermChatUse,
	PermBotConfigure,
	PermProjectView,
	PermProjectCreate,
	PermProjectEdit,
	PermProjectDelete,
	PermProjectManageMembers,
	PermTestCaseView,
	PermTestCaseCreate,
	PermTestCaseEdit,
	PermTestCaseDelete,
	PermTestPlanView,
	PermTestPlanManage,
	PermTestRunView,
	PermTestRunExecute,
	PermTestRunManage,
	PermReportView,
	PermReportCreate,
	PermReportExport,
	PermReportDelete,
}

// TenantEditorPermissions defines permissions for the editor tenant role.
var TenantEditorPermissions = []Permission{
	PermTenantView,
	PermDashboardView,
	PermChatUse,
	PermProjectView,
	PermProjectCreate,
	PermProjectEdit,
	PermTestCaseView,
	PermTestCaseCreate,
	PermTestCaseEdit,
	PermTestPlanView,
	PermTestPlanManage,
	PermTestRunView,
	PermTestRunExecute,
	PermReportView,
	PermReportCreate,
	PermReportExport,
}

// TenantViewerPermissions defines permissions for the viewer tenant role.
// Viewers can read reports but not export them.
var TenantViewerPermissions = []Permission{
	PermTenantView,
	PermDashboardView,
	PermProjectView,
	PermTestCaseView,
	PermTestPlanView,
	PermTestRunView,
	PermReportView,
}

// ProjectOwnerPermissions defines permissions for the owner project role.
var ProjectOwnerPermissions = []Permission{
	PermProjectView,
	PermProjectEdit,
	PermProjectDelete,
	PermProjectManageMembers,
	PermTestCaseView,
	PermTestCaseCreate,
	PermTestCaseEdit,
	PermTestCaseDelete,
	PermTestPlanView,
	PermTestPlanManage,
	PermTestRunView,
	PermTestRunExecute,
	PermTestRunManage,
	PermReportView,
	PermReportCreate,
	PermReportExport,
	PermReportDelete,
}

// ProjectMaintainerPermissions defines permissions for the maintainer project role.
var ProjectMaintainerPermissions = []Permission{
	PermProjectView,
	PermProjectEdit,
	PermTestCaseView,
	PermTestCaseCreate,
	PermTestCaseEdit,
	PermTestCaseDelete,
	PermTestPlanView,
	PermTestPlanManage,
	PermTestRunView,
	PermTestRunExecute,
	PermTestRunManage,
	PermReportView,
	PermReportCreate,
	PermReportExport,
}

// ProjectContributorPermissions defines permissions for the contributor project role.
var ProjectContributorPermissions = []Permission{
	PermProjectView,
	PermTestCaseView,
	PermTestCaseCreate,
	PermTestCaseEdit,
	PermTestPlanView,
	PermTestRunView,
	PermTestRunExecute,
	PermReportView,
}

// ProjectViewerPermissions defines permissions for the viewer project role.
var ProjectViewerPermissions = []Permission{
	PermProjectView,
	PermTestCaseView,
	PermTestPlanView,
	PermTestRunView,
	PermReportView,
}

// DefaultDefinitions returns the built-in role definitions.
func DefaultDefinitions() []Definition {
	return []Definition{
		{Layer: LayerGlobal, Role: string(GlobalSuperAdmin), Permissions: SuperAdminPermissions},
		{Layer: LayerGlobal, Role: string(GlobalAdmin), Permissions: GlobalAdminPermissions},
		{Layer: LayerGlobal, Role: string(GlobalUser), Permissions: GlobalUserPermissions},
		{Layer: LayerGlobal, Role: string(GlobalGuest), Permissions: GlobalGuestPermissions},
		{Layer: LayerTenant, Role: string(TenantOwner), Permissions: TenantOwnerPermissions},
		{Layer: LayerTenant, Role: string(TenantAdmin), Permissions: TenantAdminPermissions},
		{Layer: LayerTenant, Role: string(TenantEditor), Permissions: TenantEditorPermissions},
		{Layer: LayerTenant, Role: string(TenantViewer), Permissions: TenantViewerPermissions},
		{Layer: LayerProject, Role: string(ProjectOwner), Permissions: ProjectOwnerPermissions},
		{Layer: LayerProject, Role: string(ProjectMaintainer), Permissions: ProjectMaintainerPermissions},
		{Layer: LayerProject, Role: string(ProjectContributor), Permissions: ProjectContributorPermissions},
		{Layer: LayerProject, Role: string(ProjectViewer), Permissions: ProjectViewerPermissions},
	}
}
