package models

// Session is the composite persisted state of an authenticated client.
// All three fields are set together and cleared together: a store must never
// expose a new access token paired with a stale profile.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         User
}

// Authenticated reports whether the session carries an access token.
// The access token is the sole authentication signal: a cached profile
// without a token does not count.
func (s Session) Authenticated() bool {
	return s.AccessToken != ""
}
