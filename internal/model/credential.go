package model

// CredentialKind tags one way of proving identity for a User.
type CredentialKind string

const (
	CredentialPassword CredentialKind = "password"
	CredentialOAuth    CredentialKind = "oauth"
)

// CredentialMethod is one member of the union of methods attached to an
// identity. Provider is set only for CredentialOAuth.
type CredentialMethod struct {
	Kind     CredentialKind `json:"kind"`
	Provider Provider       `json:"provider,omitempty"`
}

// CredentialMethods lists every method the user can authenticate with.
// The storage keeps these as nullable columns; this is the typed view.
func (u *User) CredentialMethods() []CredentialMethod {
	var methods []CredentialMethod
	if u.HasPassword() {
		methods = append(methods, CredentialMethod{Kind: CredentialPassword})
	}
	for _, p := range Providers {
		if u.ProviderID(p) != "" {
			methods = append(methods, CredentialMethod{Kind: CredentialOAuth, Provider: p})
		}
	}
	return methods
}

// CanAuthenticate is the invariant every created or updated user must hold.
func (u *User) CanAuthenticate() bool {
	return len(u.CredentialMethods()) > 0
}
