package bastion

import "errors"

var (
	// ErrAccessDenied is returned when an authorization check fails for
	// any reason. It never says which permission was missing.
	ErrAccessDenied = errors.New("bastion: access denied")

	// ErrUnauthenticated is returned when no principal is attached to the request.
	ErrUnauthenticated = errors.New("bastion: unauthenticated")

	// ErrInvalidCredentials is returned for any failed sign-in.
	ErrInvalidCredentials = errors.New("bastion: invalid credentials")

	// ErrInvalidToken is returned when a session token is malformed,
	// expired, revoked or issued to someone else.
	ErrInvalidToken = errors.New("bastion: invalid token")

	// ErrCompanyNotFound is returned when a company cannot be found.
	ErrCompanyNotFound = errors.New("bastion: company not found")

	// ErrModuleNotFound is returned when a module cannot be found.
	ErrModuleNotFound = errors.New("bastion: module not found")

	// ErrPermissionNotFound is returned when a permission cannot be found.
	ErrPermissionNotFound = errors.New("bastion: permission not found")

	// ErrRoleNotFound is returned when a role cannot be found in the company.
	ErrRoleNotFound = errors.New("bastion: role not found")

	// ErrUserNotFound is returned when a user cannot be found in the company.
	ErrUserNotFound = errors.New("bastion: user not found")

	// ErrDuplicateRole is returned when a company already has a role with that name.
	ErrDuplicateRole = errors.New("bastion: role name already in use")

	// ErrDuplicateEmail is returned when an email is already registered.
	ErrDuplicateEmail = errors.New("bastion: email already registered")

	// ErrInvalidInput is returned when a request fails validation.
	ErrInvalidInput = errors.New("bastion: invalid input")

	// ErrNoStore is returned by NewEngine when no store was configured.
	ErrNoStore = errors.New("bastion: store is required")
)
