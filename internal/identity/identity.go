// Package identity resolves whether the session is a guest or a signed-in
// user and tells the rest of the session when that changes.
//
// Resolution is two-phase. Bootstrap reads the persisted credential and
// optimistically adopts the cached profile without touching the network.
// Refresh then re-fetches the live profile: success confirms the identity
// (and, once per login session, triggers the guest cart merge), a 401 purges
// the credential, and any other failure keeps the optimistic identity.
package identity

import (
	"context"

	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/storefrontapi"
)

// Identity is a snapshot of the resolver state.
type Identity struct {
	State   enums.IdentityState   `json:"state"`
	UserID  string                `json:"userId,omitempty"`
	Profile storefrontapi.Profile `json:"profile"`
	// Verified is set once the live profile endpoint confirmed the identity
	// during this process lifetime.
	Verified   bool   `json:"verified"`
	Credential string `json:"-"`
}

// IsAuthenticated reports whether a user identity is established.
func (i Identity) IsAuthenticated() bool {
	return i.State.IsAuthenticated()
}

// Transition describes an identity change delivered to listeners.
type Transition struct {
	State  enums.IdentityState
	UserID string
	// Merge is set on the first confirmed authentication of a login session;
	// the guest cart must be folded into the user cart exactly then.
	Merge bool
}

// Listener reacts to identity transitions. Listeners run synchronously, in
// registration order, while the resolver holds its transition lock.
type Listener interface {
	IdentityChanged(ctx context.Context, t Transition)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, t Transition)

func (f ListenerFunc) IdentityChanged(ctx context.Context, t Transition) {
	f(ctx, t)
}

// ProfileSource is the slice of the remote API the resolver needs.
type ProfileSource interface {
	GetProfile(ctx context.Context, credential, userID string) (*storefrontapi.Profile, error)
	Login(ctx context.Context, email, password string) (*storefrontapi.LoginResult, error)
}
