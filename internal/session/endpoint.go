package session

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/inercia/carechat/internal/config"
)

// EndpointPath returns the server path for a (role, mode) pair.
// The mode is ignored for experts.
func EndpointPath(eps config.Endpoints, role Role, mode Mode) (string, error) {
	switch role {
	case RoleExpert:
		return eps.Expert, nil
	case RolePatient:
		switch mode {
		case ModeExpert:
			return eps.PatientExpert, nil
		case ModeAutomated:
			return eps.PatientAutomated, nil
		default:
			return "", fmt.Errorf("unknown mode %q", mode)
		}
	default:
		return "", fmt.Errorf("unknown role %q", role)
	}
}

// EndpointURL builds the full websocket URL, carrying the identity as a
// query parameter so the server can route per user.
func EndpointURL(wsBase, path, param, identity string) string {
	q := url.Values{}
	q.Set(param, identity)
	return strings.TrimSuffix(wsBase, "/") + path + "?" + q.Encode()
}
