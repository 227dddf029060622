package session

// User identifies the authenticated account.
type User struct {
	Username string
}

// Session is an immutable snapshot of the authentication state.
//
// The zero value is the anonymous session.
type Session struct {
	AccessToken string
	IDToken     string
	User        *User

	// Version increases on every effective change of the store that produced
	// this snapshot. Identical re-writes do not advance it.
	Version uint64
}

// Authenticated reports whether all three session fields are present.
func (s Session) Authenticated() bool {
	return s.AccessToken != "" && s.IDToken != "" && s.User != nil && s.User.Username != ""
}

// Username returns the username of the session user, or "" when anonymous.
func (s Session) Username() string {
	if s.User == nil {
		return ""
	}
	return s.User.Username
}

// Equivalent reports whether two snapshots carry the same credentials and user,
// ignoring Version.
func (s Session) Equivalent(other Session) bool {
	return s.AccessToken == other.AccessToken &&
		s.IDToken == other.IDToken &&
		s.Username() == other.Username()
}

func (s Session) clone() Session {
	out := s
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	return out
}
