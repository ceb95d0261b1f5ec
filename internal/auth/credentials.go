package auth

import "errors"

var ErrNoRefresh = errors.New("credentials cannot be refreshed")

// StaticCredentials serves one fixed token. Refresh fails, so an
// authorization rejection is terminal for the session.
type StaticCredentials struct {
	AccessToken string
}

func (s StaticCredentials) Token() (string, error)   { return s.AccessToken, nil }
func (s StaticCredentials) Refresh() (string, error) { return "", ErrNoRefresh }

// FuncCredentials delegates to caller-supplied functions, the shape an
// application with a real token endpoint plugs in.
type FuncCredentials struct {
	TokenFn   func() (string, error)
	RefreshFn func() (string, error)
}

func (f FuncCredentials) Token() (string, error) {
	return f.TokenFn()
}

func (f FuncCredentials) Refresh() (string, error) {
	if f.RefreshFn == nil {
		return "", ErrNoRefresh
	}
	return f.RefreshFn()
}
