package httpclient

import "net/http"

// Auth decorates outgoing requests with credentials.
type Auth interface {
	Apply(req *http.Request)
}

// NoAuth represents no authentication.
type NoAuth struct{}

func (NoAuth) Apply(req *http.Request) {}

// BearerToken uses Bearer token authentication.
type BearerToken struct {
	Token string
}

func (a BearerToken) Apply(req *http.Request) {
	if a.Token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+a.Token)
}
