package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/storefront/pkg/auth"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/kvstore"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/storefrontapi"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"
)

// Resolver owns the session identity.
type Resolver struct {
	kv        kvstore.Store
	api       ProfileSource
	logg      *logger.Logger
	listeners []Listener
	now       func() time.Time

	// transition serializes state changes and listener delivery.
	transition sync.Mutex
	refresh    singleflight.Group

	mu         sync.RWMutex
	state      enums.IdentityState
	userID     string
	profile    storefrontapi.Profile
	credential string
	verified   bool
	// merged is set once the guest cart was merged during the current login session.
	merged bool
	// epoch changes on every login or logout so a slow refresh started in an
	// earlier session cannot overwrite a newer one.
	epoch uint64
}

// NewResolver builds a resolver in the unresolved state.
func NewResolver(kv kvstore.Store, api ProfileSource, logg *logger.Logger, listeners ...Listener) (*Resolver, error) {
	if kv == nil {
		return nil, fmt.Errorf("durable store required")
	}
	if api == nil {
		return nil, fmt.Errorf("profile source required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Resolver{
		kv:        kv,
		api:       api,
		logg:      logg,
		listeners: listeners,
		now:       time.Now,
		state:     enums.IdentityStateUnresolved,
	}, nil
}

// Current returns the identity snapshot.
func (r *Resolver) Current() Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Resolver) snapshotLocked() Identity {
	return Identity{
		State:      r.state,
		UserID:     r.userID,
		Profile:    r.profile,
		Verified:   r.verified,
		Credential: r.credential,
	}
}

// Bootstrap is phase one of resolution. Without a persisted credential the
// session becomes guest. With one, the cached profile is adopted as an
// unverified identity and Refresh should follow.
func (r *Resolver) Bootstrap(ctx context.Context) (Identity, error) {
	r.transition.Lock()
	defer r.transition.Unlock()

	credential, found, err := r.kv.Get(ctx, kvstore.CredentialKey)
	if err != nil {
		r.logg.WarnErr(ctx, "reading stored credential failed, continuing as guest", err)
	}
	credential = strings.TrimSpace(credential)
	if err != nil || !found || credential == "" {
		r.becomeGuestLocked(ctx)
		return r.Current(), nil
	}

	profile := r.cachedProfile(ctx)
	userID := r.storedUserID(ctx)
	if userID == "" {
		userID = profile.ID
	}

	if cred, err := auth.InspectCredential(credential); err == nil {
		if userID == "" {
			userID = cred.UserID
		}
		if cred.Expired(r.now()) {
			r.logg.Warn(r.logg.WithUserID(ctx, userID), "stored credential is past its expiry, awaiting profile refresh")
		}
	}

	if userID == "" {
		r.logg.Warn(ctx, "stored credential has no user id, discarding it")
		if err := r.purge(ctx); err != nil {
			r.logg.WarnErr(ctx, "purging orphan credential failed", err)
		}
		r.becomeGuestLocked(ctx)
		return r.Current(), nil
	}
	if profile.ID == "" {
		profile.ID = userID
	}

	r.mu.Lock()
	r.state = enums.IdentityStateAuthenticated
	r.userID = userID
	r.profile = profile
	r.credential = credential
	r.verified = false
	r.mu.Unlock()

	r.logg.Info(r.logg.WithUserID(ctx, userID), "adopted cached identity")
	r.notify(ctx, Transition{State: enums.IdentityStateAuthenticated, UserID: userID})
	return r.Current(), nil
}

// Refresh is phase two: it re-fetches the live profile. Concurrent calls
// share one request. On AUTH_REJECTED the credential and cached profile are
// purged and the session becomes guest; the returned error carries the
// rejection. Any other failure keeps the optimistic identity and is returned
// for the caller to log.
func (r *Resolver) Refresh(ctx context.Context) (Identity, error) {
	r.mu.RLock()
	state, userID, credential, epoch := r.state, r.userID, r.credential, r.epoch
	r.mu.RUnlock()

	if !state.IsAuthenticated() {
		return r.Current(), nil
	}

	result, err, _ := r.refresh.Do(fmt.Sprintf("%d", epoch), func() (any, error) {
		return r.api.GetProfile(ctx, credential, userID)
	})

	r.transition.Lock()
	defer r.transition.Unlock()

	r.mu.RLock()
	stale := r.epoch != epoch
	r.mu.RUnlock()
	if stale {
		r.logg.Debug(ctx, "discarding profile refresh from a previous session")
		return r.Current(), nil
	}

	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeAuthRejected) {
			r.logg.WarnErr(r.logg.WithUserID(ctx, userID), "credential rejected, signing out", err)
			if purgeErr := r.purge(ctx); purgeErr != nil {
				r.logg.WarnErr(ctx, "purging rejected credential failed", purgeErr)
			}
			r.becomeGuestLocked(ctx)
			return r.Current(), err
		}
		r.logg.WarnErr(r.logg.WithUserID(ctx, userID), "profile refresh failed, keeping cached identity", err)
		return r.Current(), err
	}

	profile := *result.(*storefrontapi.Profile)
	if profile.ID == "" {
		profile.ID = userID
	}
	r.persistProfile(ctx, profile)

	r.mu.Lock()
	r.userID = profile.ID
	r.profile = profile
	r.verified = true
	merge := !r.merged
	r.merged = true
	r.mu.Unlock()

	r.notify(ctx, Transition{State: enums.IdentityStateAuthenticated, UserID: profile.ID, Merge: merge})
	return r.Current(), nil
}

// Login signs in against the remote API and starts a new login session.
func (r *Resolver) Login(ctx context.Context, email, password string) (Identity, error) {
	result, err := r.api.Login(ctx, email, password)
	if err != nil {
		return r.Current(), err
	}
	return r.AdoptLogin(ctx, result.Token, result.User)
}

// AdoptLogin starts a login session from a credential and profile obtained
// elsewhere. The profile counts as live, so the guest cart merge runs now.
func (r *Resolver) AdoptLogin(ctx context.Context, credential string, profile storefrontapi.Profile) (Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return r.Current(), pkgerrors.New(pkgerrors.CodeValidation, "credential is required")
	}
	if strings.TrimSpace(profile.ID) == "" {
		return r.Current(), pkgerrors.New(pkgerrors.CodeValidation, "profile id is required")
	}

	r.transition.Lock()
	defer r.transition.Unlock()

	// A previous user's slots go first so a partial write never mixes two users.
	if err := r.purge(ctx); err != nil {
		r.logg.WarnErr(ctx, "clearing previous credential failed", err)
	}
	if err := r.kv.Set(ctx, kvstore.CredentialKey, credential); err != nil {
		r.logg.WarnErr(r.logg.WithUserID(ctx, profile.ID), "persisting credential failed, session will not survive a restart", err)
	}
	r.persistProfile(ctx, profile)

	r.mu.Lock()
	r.epoch++
	r.state = enums.IdentityStateAuthenticated
	r.userID = profile.ID
	r.profile = profile
	r.credential = credential
	r.verified = true
	r.merged = true
	r.mu.Unlock()

	r.logg.Info(r.logg.WithUserID(ctx, profile.ID), "login session started")
	r.notify(ctx, Transition{State: enums.IdentityStateAuthenticated, UserID: profile.ID, Merge: true})
	return r.Current(), nil
}

// Logout clears the credential and cached profile and makes the session
// guest. The user's persisted cart is kept for their next login.
func (r *Resolver) Logout(ctx context.Context) error {
	r.transition.Lock()
	defer r.transition.Unlock()

	err := r.purge(ctx)
	if err != nil {
		r.logg.WarnErr(ctx, "clearing credential on logout failed", err)
	}
	r.becomeGuestLocked(ctx)
	return err
}

// Reject handles an AUTH_REJECTED answer from any remote call made with the
// current credential. It behaves like Logout.
func (r *Resolver) Reject(ctx context.Context, cause error) {
	r.mu.RLock()
	authenticated := r.state.IsAuthenticated()
	userID := r.userID
	r.mu.RUnlock()
	if !authenticated {
		return
	}
	r.logg.WarnErr(r.logg.WithUserID(ctx, userID), "remote api rejected the credential, signing out", cause)
	_ = r.Logout(ctx)
}

func (r *Resolver) becomeGuestLocked(ctx context.Context) {
	r.mu.Lock()
	r.epoch++
	r.state = enums.IdentityStateGuest
	r.userID = ""
	r.profile = storefrontapi.Profile{}
	r.credential = ""
	r.verified = false
	r.merged = false
	r.mu.Unlock()

	r.notify(ctx, Transition{State: enums.IdentityStateGuest})
}

func (r *Resolver) notify(ctx context.Context, t Transition) {
	for _, listener := range r.listeners {
		listener.IdentityChanged(ctx, t)
	}
}

// purge removes the credential, user id and cached profile. Carts and
// preferences are deliberately left in place.
func (r *Resolver) purge(ctx context.Context) error {
	var err error
	for _, key := range []string{kvstore.CredentialKey, kvstore.UserIDKey, kvstore.ProfileKey} {
		err = multierr.Append(err, r.kv.Remove(ctx, key))
	}
	return err
}

func (r *Resolver) persistProfile(ctx context.Context, profile storefrontapi.Profile) {
	encoded, err := json.Marshal(profile)
	if err == nil {
		err = multierr.Combine(
			r.kv.Set(ctx, kvstore.UserIDKey, profile.ID),
			r.kv.Set(ctx, kvstore.ProfileKey, string(encoded)),
		)
	}
	if err != nil {
		r.logg.WarnErr(r.logg.WithUserID(ctx, profile.ID), "caching profile failed", err)
	}
}

func (r *Resolver) cachedProfile(ctx context.Context) storefrontapi.Profile {
	var profile storefrontapi.Profile
	raw, found, err := r.kv.Get(ctx, kvstore.ProfileKey)
	if err != nil {
		r.logg.WarnErr(ctx, "reading cached profile failed", err)
		return profile
	}
	if !found {
		return profile
	}
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		r.logg.WarnErr(ctx, "cached profile is unreadable, ignoring it", err)
		return storefrontapi.Profile{}
	}
	return profile
}

func (r *Resolver) storedUserID(ctx context.Context) string {
	userID, _, err := r.kv.Get(ctx, kvstore.UserIDKey)
	if err != nil {
		r.logg.WarnErr(ctx, "reading stored user id failed", err)
		return ""
	}
	return strings.TrimSpace(userID)
}
