// Package identity provides the local connector identity.
package identity

import (
	"fmt"
	"net/url"

	"github.com/Sentinel-Gate/Contractgate/internal/port/outbound"
)

// Static is a connector identity fixed at startup.
type Static struct {
	id string
}

// NewStatic returns the identity for id, which must be an absolute URI.
func NewStatic(id string) (*Static, error) {
	u, err := url.Parse(id)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("connector id %q is not an absolute URI", id)
	}
	return &Static{id: id}, nil
}

// ConnectorID returns the connector id.
func (s *Static) ConnectorID() string {
	return s.id
}

var _ outbound.ConnectorIdentity = (*Static)(nil)
