// Package preferences keeps per-user UI preferences. Signed-in users have
// theirs persisted under preferences_{userId}; guests get process defaults
// that live in memory only.
package preferences

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/kvstore"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/go-playground/validator/v10"
)

// Preferences is the flat preference object. Extra holds keys the UI shell
// adds without a schema change.
type Preferences struct {
	Theme    enums.Theme       `json:"theme"`
	Language string            `json:"language"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// Defaults returns the process-default preferences.
func Defaults() Preferences {
	return Preferences{Theme: enums.ThemeSystem, Language: "en"}
}

func (p Preferences) clone() Preferences {
	if p.Extra != nil {
		extra := make(map[string]string, len(p.Extra))
		for k, v := range p.Extra {
			extra[k] = v
		}
		p.Extra = extra
	}
	return p
}

// Patch is a partial update. Nil fields are left unchanged. An Extra entry
// with a nil value removes that key.
type Patch struct {
	Theme    *string            `json:"theme,omitempty"`
	Language *string            `json:"language,omitempty" validate:"omitempty,bcp47_language_tag"`
	Extra    map[string]*string `json:"extra,omitempty" validate:"omitempty,max=32"`
}

// Notice is a non-fatal persistence problem.
type Notice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Outcome is what a preferences operation reports back.
type Outcome struct {
	Preferences Preferences
	Notices     []Notice
}

// Store holds the preferences of the active identity.
type Store struct {
	mu       sync.Mutex
	kv       kvstore.Store
	logg     *logger.Logger
	metrics  *metrics.StorageMetrics
	validate *validator.Validate
	defaults Preferences

	userID string
	loaded bool
	active Preferences
	guest  Preferences
}

// NewStore builds a preferences store with the guest scope active.
func NewStore(kv kvstore.Store, logg *logger.Logger, storageMetrics *metrics.StorageMetrics, defaults Preferences) (*Store, error) {
	if kv == nil {
		return nil, fmt.Errorf("durable store required")
	}
	if !defaults.Theme.IsValid() {
		return nil, fmt.Errorf("invalid default theme %q", defaults.Theme)
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Store{
		kv:       kv,
		logg:     logg,
		metrics:  storageMetrics,
		validate: validator.New(),
		defaults: defaults.clone(),
		guest:    defaults.clone(),
	}, nil
}

// Get returns the active preferences.
func (s *Store) Get(ctx context.Context) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	notices := s.loadLocked(ctx)
	return Outcome{Preferences: s.currentLocked().clone(), Notices: notices}
}

// Update applies patch to the active preferences and persists them for a
// signed-in user. The in-memory value is kept when the write fails.
func (s *Store) Update(ctx context.Context, patch Patch) (Outcome, error) {
	if err := s.validate.Struct(patch); err != nil {
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid preferences")
	}
	var theme enums.Theme
	if patch.Theme != nil {
		parsed, err := enums.ParseTheme(*patch.Theme)
		if err != nil {
			return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid theme").
				WithDetails(map[string]any{"theme": *patch.Theme})
		}
		theme = parsed
	}
	for key := range patch.Extra {
		if strings.TrimSpace(key) == "" {
			return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "preference keys must not be blank")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	notices := s.loadLocked(ctx)
	if s.userID != "" && !s.loaded {
		return Outcome{Preferences: s.currentLocked().clone(), Notices: notices},
			pkgerrors.New(pkgerrors.CodeStorage, "saved preferences could not be read, try again")
	}
	next := s.currentLocked().clone()
	if patch.Theme != nil {
		next.Theme = theme
	}
	if patch.Language != nil {
		next.Language = strings.TrimSpace(*patch.Language)
	}
	for key, value := range patch.Extra {
		if value == nil {
			delete(next.Extra, key)
			continue
		}
		if next.Extra == nil {
			next.Extra = make(map[string]string)
		}
		next.Extra[key] = *value
	}
	if len(next.Extra) == 0 {
		next.Extra = nil
	}

	if s.userID == "" {
		s.guest = next
		return Outcome{Preferences: next.clone(), Notices: notices}, nil
	}

	s.active = next
	encoded, err := json.Marshal(next)
	if err == nil {
		err = s.kv.Set(ctx, kvstore.PreferencesKey(s.userID), string(encoded))
	}
	if err != nil {
		notices = append(notices, s.report(ctx, "set", err))
	}
	return Outcome{Preferences: next.clone(), Notices: notices}, nil
}

// UseGuest switches to the in-memory guest preferences.
func (s *Store) UseGuest(ctx context.Context) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.userID = ""
	s.loaded = false
	s.active = Preferences{}
	return Outcome{Preferences: s.guest.clone()}
}

// UseUser switches to userID's persisted preferences.
func (s *Store) UseUser(ctx context.Context, userID string) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID = strings.TrimSpace(userID)
	if userID != s.userID {
		s.userID = userID
		s.loaded = false
	}
	notices := s.loadLocked(ctx)
	return Outcome{Preferences: s.currentLocked().clone(), Notices: notices}
}

func (s *Store) currentLocked() Preferences {
	if s.userID == "" {
		return s.guest
	}
	return s.active
}

// loadLocked reads the user's slot once per switch. Missing fields take the
// defaults; an undecodable slot yields the defaults plus a notice. A failed
// read leaves the slot unloaded so the next call retries it.
func (s *Store) loadLocked(ctx context.Context) []Notice {
	if s.userID == "" || s.loaded {
		return nil
	}
	s.loaded = true
	s.active = s.defaults.clone()

	raw, found, err := s.kv.Get(ctx, kvstore.PreferencesKey(s.userID))
	if err != nil {
		s.loaded = false
		return []Notice{s.report(ctx, "get", err)}
	}
	if !found {
		return nil
	}

	stored := s.defaults.clone()
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return []Notice{s.report(ctx, "decode", pkgerrors.Wrap(pkgerrors.CodeStorage, err, "saved preferences are unreadable"))}
	}
	if !stored.Theme.IsValid() {
		stored.Theme = s.defaults.Theme
	}
	if strings.TrimSpace(stored.Language) == "" {
		stored.Language = s.defaults.Language
	}
	s.active = stored
	return nil
}

func (s *Store) report(ctx context.Context, op string, err error) Notice {
	s.metrics.IncFailure(op)
	s.logg.WarnErr(s.logg.WithFields(ctx, map[string]any{
		"user_id": s.userID,
		"op":      op,
	}), "preferences persistence failed", err)
	return Notice{
		Code:    string(pkgerrors.CodeStorage),
		Message: pkgerrors.MetadataFor(pkgerrors.CodeStorage).PublicMessage,
	}
}
