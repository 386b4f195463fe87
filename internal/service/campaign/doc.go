// Package campaign implements campaign management: creating drafts, editing
// content, listing and deleting, all scoped to the owning principal.
//
// Status changes after creation belong to the dispatch engine; this package
// only guards edits and deletion against campaigns that are in flight or done.
// Repository implementations live in repository/postgres/.
package campaign
