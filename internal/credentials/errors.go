package credentials

import "errors"

var (
	// ErrConfiguration is returned when credentials are missing or malformed.
	// A session must not be opened with such credentials.
	ErrConfiguration = errors.New("credentials: missing or malformed credentials")

	// ErrNotLoggedIn is returned when the cache holds no token.
	ErrNotLoggedIn = errors.New("credentials: not logged in")
)
