// Package profile derives actor profile fields from DID documents and keeps
// them fresh in the background.
package profile

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/threadring/ringhub/internal/didresolver"
	"github.com/threadring/ringhub/pkg/did"
)

var (
	// ErrNoProfileURL means the DID document carries no Profile service.
	// Actors without a profile URL cannot join rings.
	ErrNoProfileURL = errors.New("did document has no Profile service endpoint")
	// ErrInsecureProfileURL means the endpoint is not HTTPS (localhost is
	// exempt for development).
	ErrInsecureProfileURL = errors.New("profile endpoint must be https")
)

// Profile is the displayable identity derived from a DID document.
type Profile struct {
	ProfileURL     string `json:"profileUrl"`
	Name           string `json:"name,omitempty"`
	AvatarURL      string `json:"avatarUrl,omitempty"`
	InstanceDomain string `json:"instanceDomain,omitempty"`
	Handle         string `json:"handle,omitempty"`
}

// Extract derives a Profile from a resolved document. The profile URL is
// required; name and avatar are optional hints.
func Extract(d *did.DID, doc *didresolver.Document) (*Profile, error) {
	svc := doc.ProfileService()
	if svc == nil || svc.ServiceEndpoint == "" {
		return nil, ErrNoProfileURL
	}

	endpoint, err := url.Parse(svc.ServiceEndpoint)
	if err != nil {
		return nil, fmt.Errorf("parse profile endpoint: %w", err)
	}
	if endpoint.Scheme != "https" && !(endpoint.Scheme == "http" && did.IsLocalhost(endpoint.Host)) {
		return nil, fmt.Errorf("%w: got %q", ErrInsecureProfileURL, svc.ServiceEndpoint)
	}

	return &Profile{
		ProfileURL:     svc.ServiceEndpoint,
		Name:           doc.Name,
		AvatarURL:      doc.Image,
		InstanceDomain: d.Domain(),
		Handle:         handleFromURL(endpoint),
	}, nil
}

// handleFromURL extracts the handle: the last path segment with any leading
// @ stripped.
func handleFromURL(endpoint *url.URL) string {
	path := strings.Trim(endpoint.Path, "/")
	if path == "" {
		return ""
	}
	segments := strings.Split(path, "/")
	return strings.TrimPrefix(segments[len(segments)-1], "@")
}
