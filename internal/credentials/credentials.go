package credentials

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Credentials is the login triple for one broker deployment.
type Credentials struct {
	Identity   string
	Secret     string
	Deployment string
}

// Validate reports ErrConfiguration if any field is empty, or if the
// identity or deployment contains a colon and so could not survive Token.
func (c Credentials) Validate() error {
	var missing []string
	if c.Identity == "" {
		missing = append(missing, "identity")
	}
	if c.Secret == "" {
		missing = append(missing, "secret")
	}
	if c.Deployment == "" {
		missing = append(missing, "deployment")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: empty %s", ErrConfiguration, strings.Join(missing, ", "))
	}
	if strings.Contains(c.Identity, ":") {
		return fmt.Errorf("%w: identity may not contain ':'", ErrConfiguration)
	}
	if strings.Contains(c.Deployment, ":") {
		return fmt.Errorf("%w: deployment may not contain ':'", ErrConfiguration)
	}
	return nil
}

// Token encodes the credentials as a session token.
func (c Credentials) Token() string {
	raw := c.Identity + ":" + c.Secret + ":" + c.Deployment
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// String hides the secret.
func (c Credentials) String() string {
	return fmt.Sprintf("%s@%s", c.Identity, c.Deployment)
}

// Decode parses a session token. The identity is the text before the first
// colon and the deployment the text after the last one; everything between is
// the secret, so secrets may contain colons. Identities and deployments may not.
func Decode(token string) (Credentials, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: token is not base64: %w", ErrConfiguration, err)
	}

	s := string(raw)
	first := strings.Index(s, ":")
	last := strings.LastIndex(s, ":")
	if first < 0 || first == last {
		return Credentials{}, fmt.Errorf("%w: token must hold identity:secret:deployment", ErrConfiguration)
	}

	creds := Credentials{
		Identity:   s[:first],
		Secret:     s[first+1 : last],
		Deployment: s[last+1:],
	}
	if err := creds.Validate(); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}
