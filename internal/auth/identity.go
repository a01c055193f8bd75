package auth

import "strings"

// Identity is the resolved caller of a request: either anonymous or an
// authenticated user id. The zero value is Anonymous.
type Identity struct {
	userID string
}

// Anonymous returns the identity of a caller without a valid session.
func Anonymous() Identity {
	return Identity{}
}

// Authenticated returns the identity of the given user. A blank id yields Anonymous.
func Authenticated(userID string) Identity {
	return Identity{userID: strings.TrimSpace(userID)}
}

// UserID returns the authenticated user id, or false for Anonymous.
func (i Identity) UserID() (string, bool) {
	if i.userID == "" {
		return "", false
	}
	return i.userID, true
}

// IsAnonymous reports whether no user is attached.
func (i Identity) IsAnonymous() bool {
	return i.userID == ""
}

func (i Identity) String() string {
	if i.userID == "" {
		return "anonymous"
	}
	return "user:" + i.userID
}
