package models

// Tokens is the persisted console session: three named slots that are
// written and cleared together.
type Tokens struct {
	Access  string `json:"access" yaml:"access"`
	Refresh string `json:"refresh" yaml:"refresh"`
	Role    Role   `json:"role" yaml:"role"`
}

// Authenticated reports whether an access token is present.
func (t Tokens) Authenticated() bool {
	return t.Access != ""
}

// TokenPair is what the accounts service issues on a successful challenge.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}
