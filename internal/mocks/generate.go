// Package mocks provides gomock implementations of the directory and audit ports.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	users := mocks.NewMockUserDirectory(ctrl)
//	users.EXPECT().Get(gomock.Any(), "user-1").Return(user, nil)
//
// Hand-written in-memory fakes live in the directory and auth subpackages.
package mocks

// Generate mock for UserDirectory interface from internal/ports package.
// This creates MockUserDirectory with methods: Get, GetByExternalID, UpdatePreferences
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=user_directory_mock.go github.com/target/waypoint/internal/ports UserDirectory

// Generate mock for OrganizationDirectory interface from internal/ports package.
// This creates MockOrganizationDirectory with methods: ListMembershipsForUser, GetMembership, GetOrganization
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=organization_directory_mock.go github.com/target/waypoint/internal/ports OrganizationDirectory

// Generate mock for AuditStore interface from internal/ports package.
// This creates MockAuditStore with methods: Append, List, DeleteOlderThan
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=audit_store_mock.go github.com/target/waypoint/internal/ports AuditStore

// Generate mock for Cache interface from internal/ports package.
// This creates MockCache with methods: Get, Set, Delete, Health
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cache_mock.go github.com/target/waypoint/internal/ports Cache
