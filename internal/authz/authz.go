// Package authz holds the single authorization predicate applied before
// every mutation. Resource handlers must not re-implement ownership or
// role checks inline.
package authz

import "bookvault/pkg/domain"

// CanMutate reports whether the actor may update or delete a resource
// owned by ownerID. Admins may mutate anything; other actors only their
// own records. An empty ownerID marks an ownerless resource, which only
// admins may mutate.
func CanMutate(actor domain.User, ownerID string) bool {
	if actor.Role == domain.RoleAdmin {
		return true
	}
	return ownerID != "" && actor.ID == ownerID
}

// CanChangeRole reports whether the actor may change a user's role field.
// Ownership does not matter here: users cannot elevate themselves.
func CanChangeRole(actor domain.User) bool {
	return actor.Role == domain.RoleAdmin
}
