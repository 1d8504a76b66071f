package enums

// IdentityState tracks whether the session is anonymous or signed in.
type IdentityState string

const (
	IdentityStateUnresolved    IdentityState = "unresolved"
	IdentityStateGuest         IdentityState = "guest"
	IdentityStateAuthenticated IdentityState = "authenticated"
)

// String implements fmt.Stringer.
func (s IdentityState) String() string {
	return string(s)
}

// IsAuthenticated reports whether a user identity is established.
func (s IdentityState) IsAuthenticated() bool {
	return s == IdentityStateAuthenticated
}
