package errx

import (
	"fmt"
	"net/http"
)

// WrapUpstream wraps a transport failure of an HTTP collaborator.
func WrapUpstream(service string, err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, fmt.Sprintf("%s: %s", UpstreamErrorMessage, service))
}

// UpstreamStatus builds an error for a collaborator that answered with an
// unexpected HTTP status.
func UpstreamStatus(service string, status int, body string) error {
	return New(fmt.Errorf("status %d: %s", status, body), http.StatusBadGateway,
		fmt.Sprintf("%s: %s", UpstreamErrorMessage, service))
}
