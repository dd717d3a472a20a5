package domain

import "time"

type Group struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// UserGroup binds a user to an access-control group.
type UserGroup struct {
	UserID  string `json:"user_id"`
	GroupID string `json:"group_id"`
}

// DocumentACLGroup grants a group access to a document. A user can read a
// document when the document's group set intersects the user's group set.
type DocumentACLGroup struct {
	DocumentID string `json:"document_id"`
	GroupID    string `json:"group_id"`
}
