// Package models defines the data objects shared across gitpanel packages.
package models

import "fmt"

// RepositoryStatus is the repository the panel is currently bound to.
// An empty RootPath means no repository is bound; Branch is only
// meaningful when RootPath is set.
type RepositoryStatus struct {
	RootPath string
	Branch   string
}

// Bound reports whether a repository root is known.
func (s RepositoryStatus) Bound() bool {
	return s.RootPath != ""
}

// Credentials carry a username/password pair for one remote operation.
// They are held in memory only for the duration of a push or pull.
type Credentials struct {
	Username string
	Password string
}

// String never includes the password.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Username: %q, Password: <redacted>}", c.Username)
}

// GoString keeps %#v from leaking the password.
func (c Credentials) GoString() string {
	return c.String()
}

// Empty reports whether no username was supplied.
func (c Credentials) Empty() bool {
	return c.Username == "" && c.Password == ""
}
