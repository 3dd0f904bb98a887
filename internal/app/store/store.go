// Package store provides the entitlement and session store.
//
// The store is the single authoritative holder of session, entitlement,
// subscription, cart and theme state. All mutation goes through its public
// operations; every other component reads through snapshots or subscriber
// notifications.
package store

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/sonavia/sonavia/internal/domain/cart"
	"github.com/sonavia/sonavia/internal/domain/catalog"
	"github.com/sonavia/sonavia/internal/domain/entitlement"
	"github.com/sonavia/sonavia/internal/domain/license"
	"github.com/sonavia/sonavia/internal/infra/auth"
)

var (
	ErrNoSession       = errors.New("no active session")
	ErrNotEntitled     = errors.New("not entitled to this track")
	ErrRequestInFlight = errors.New("request already in flight")
	ErrInvalidLicense  = errors.New("unknown license type")
)

// Backend is the slice of the data collaborator the store consumes.
type Backend interface {
	PurchasesByUser(ctx context.Context, userID string) ([]entitlement.Purchase, error)
	Album(ctx context.Context, albumID string) (catalog.Album, error)
	Profile(ctx context.Context, userID string) (entitlement.Profile, error)
	TrackDownloadURL(ctx context.Context, accessToken, trackID string) (string, error)
	LicenseCertificate(ctx context.Context, accessToken, purchaseID string) ([]byte, error)
}

// CartStore is the durable cart persistence the store writes through.
type CartStore interface {
	Save(items []cart.Item) error
	Load() ([]cart.Item, error)
}

// Snapshot is an immutable view of store state handed to subscribers.
type Snapshot struct {
	Session      *auth.Session
	Entitlements entitlement.Set
	Profile      entitlement.Profile
	Purchases    []entitlement.Purchase
	CartItems    []cart.Item
	CartTotal    float64
	DarkTheme    bool
}

// Listener receives a snapshot after every public mutation.
type Listener func(Snapshot)

// Store is the process-wide reactive state container.
type Store struct {
	mu sync.RWMutex

	session      *auth.Session
	entitlements entitlement.Set
	profile      entitlement.Profile
	purchases    []entitlement.Purchase
	cart         *cart.Cart
	darkTheme    bool

	// Monotonic refresh sequence numbers; responses whose number is no
	// longer the latest issued are discarded (last-fetch-wins)
	entitlementSeq uint64
	profileSeq     uint64

	backend Backend
	carts   CartStore

	subMu     sync.RWMutex
	listeners map[string]Listener

	// In-flight guards for download affordances
	flightMu sync.Mutex
	inFlight map[string]struct{}
}

// New creates a store and rehydrates the cart from durable storage.
// A rehydration failure is logged and the cart starts empty; a broken
// persisted cart must not break the page.
func New(backend Backend, carts CartStore) *Store {
	s := &Store{
		entitlements: entitlement.NewSet(),
		cart:         cart.New(nil),
		backend:      backend,
		carts:        carts,
		listeners:    make(map[string]Listener),
		inFlight:     make(map[string]struct{}),
	}

	if carts != nil {
		items, err := carts.Load()
		if err != nil {
			zlog.Warn().Msgf("store: failed to rehydrate cart: %v", err)
		} else {
			s.cart = cart.New(items)
		}
	}
	return s
}

// Subscribe registers a listener and returns its subscription ID.
func (s *Store) Subscribe(l Listener) string {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := uuid.New().String()
	s.listeners[id] = l
	return id
}

// Unsubscribe removes a listener.
func (s *Store) Unsubscribe(id string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	delete(s.listeners, id)
}

// notify invokes every listener exactly once with a fresh snapshot.
// Called synchronously after each mutation, with no store lock held.
func (s *Store) notify() {
	snapshot := s.Snapshot()

	s.subMu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.subMu.RUnlock()

	for _, l := range listeners {
		l(snapshot)
	}
}

// Snapshot returns an immutable copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	purchases := make([]entitlement.Purchase, len(s.purchases))
	copy(purchases, s.purchases)

	return Snapshot{
		Session:      s.session,
		Entitlements: s.entitlements.Clone(),
		Profile:      s.profile,
		Purchases:    purchases,
		CartItems:    s.cart.Items(),
		CartTotal:    s.cart.Total(),
		DarkTheme:    s.darkTheme,
	}
}

// SetSession atomically replaces the stored session.
//
// A new session triggers entitlement and profile refreshes fire-and-forget;
// the caller never blocks on entitlement freshness. Clearing the session
// synchronously resets all derived state. Setting the identical session
// again is a no-op so duplicate auth notifications cannot stack refreshes.
func (s *Store) SetSession(session *auth.Session) {
	s.mu.Lock()
	if session.Equal(s.session) {
		s.mu.Unlock()
		return
	}

	s.session = session
	if session == nil {
		s.entitlements = entitlement.NewSet()
		s.profile = entitlement.Profile{}
		s.purchases = nil
	}
	s.mu.Unlock()

	s.notify()

	if session != nil {
		go func() {
			if err := s.RefreshEntitlements(context.Background()); err != nil {
				zlog.Warn().Msgf("store: entitlement refresh after sign-in failed: %v", err)
			}
		}()
		go func() {
			if err := s.RefreshSubscriptionProfile(context.Background()); err != nil {
				zlog.Warn().Msgf("store: profile refresh after sign-in failed: %v", err)
			}
		}()
	}
}

// RefreshEntitlements recomputes the entitlement set from the backend.
//
// The set is computed fully off to the side and swapped in one assignment;
// on any fetch error the previous set is kept (stale-but-consistent beats
// incorrect-but-fresh). Concurrent refreshes resolve last-fetch-wins via
// the sequence number taken at issue time.
func (s *Store) RefreshEntitlements(ctx context.Context) error {
	s.mu.Lock()
	session := s.session
	if session == nil {
		s.mu.Unlock()
		return nil
	}
	s.entitlementSeq++
	seq := s.entitlementSeq
	s.mu.Unlock()

	purchases, err := s.backend.PurchasesByUser(ctx, session.UserID)
	if err != nil {
		return errors.Wrap(err, "failed to fetch purchases")
	}

	fresh := entitlement.NewSet()
	for _, p := range purchases {
		if p.TrackID != "" {
			fresh[p.TrackID] = struct{}{}
		}
		if p.IsAlbum() {
			album, err := s.backend.Album(ctx, p.AlbumID)
			if err != nil {
				return errors.Wrapf(err, "failed to expand album %s", p.AlbumID)
			}
			for _, id := range album.TrackIDs() {
				fresh[id] = struct{}{}
			}
			zlog.Debug().Msgf("store: expanded album %s: %d tracks, %ds",
				album.ID, len(album.Tracks), album.TotalDuration())
		}
	}

	s.mu.Lock()
	if seq != s.entitlementSeq || !session.Equal(s.session) {
		// A newer refresh was issued or the session changed; discard
		s.mu.Unlock()
		zlog.Debug().Msgf("store: discarding stale entitlement refresh (seq=%d)", seq)
		return nil
	}
	s.entitlements = fresh
	s.purchases = purchases
	s.mu.Unlock()

	s.notify()
	return nil
}

// RefreshSubscriptionProfile refetches the subscription profile.
// Same stale-on-error and last-fetch-wins policies as RefreshEntitlements.
func (s *Store) RefreshSubscriptionProfile(ctx context.Context) error {
	s.mu.Lock()
	session := s.session
	if session == nil {
		s.mu.Unlock()
		return nil
	}
	s.profileSeq++
	seq := s.profileSeq
	s.mu.Unlock()

	profile, err := s.backend.Profile(ctx, session.UserID)
	if err != nil {
		return errors.Wrap(err, "failed to fetch profile")
	}

	s.mu.Lock()
	if seq != s.profileSeq || !session.Equal(s.session) {
		s.mu.Unlock()
		zlog.Debug().Msgf("store: discarding stale profile refresh (seq=%d)", seq)
		return nil
	}
	s.profile = profile
	s.mu.Unlock()

	s.notify()
	return nil
}

// AddToCart inserts the item unless its uniqueness key is already present.
// The resulting cart is persisted before the call returns.
func (s *Store) AddToCart(item cart.Item) error {
	if !item.License.Valid() {
		return errors.Wrapf(ErrInvalidLicense, "%q", item.License)
	}

	s.mu.Lock()
	if !s.cart.Add(item) {
		s.mu.Unlock()
		return nil
	}
	err := s.persistCartLocked()
	s.mu.Unlock()

	s.notify()
	return err
}

// RemoveFromCart removes the item matching catalog item ID and license type.
func (s *Store) RemoveFromCart(catalogItemID string, lt license.Type) error {
	s.mu.Lock()
	if !s.cart.Remove(catalogItemID, lt) {
		s.mu.Unlock()
		return nil
	}
	err := s.persistCartLocked()
	s.mu.Unlock()

	s.notify()
	return err
}

// ClearCart removes all cart items.
func (s *Store) ClearCart() error {
	s.mu.Lock()
	if !s.cart.Clear() {
		s.mu.Unlock()
		return nil
	}
	err := s.persistCartLocked()
	s.mu.Unlock()

	s.notify()
	return err
}

// persistCartLocked writes the cart through to durable storage.
// Must be called with the store lock held. The in-memory state is kept on
// error; the next successful mutation rewrites the full cart.
func (s *Store) persistCartLocked() error {
	if s.carts == nil {
		return nil
	}
	if err := s.carts.Save(s.cart.Items()); err != nil {
		zlog.Error().Msgf("store: failed to persist cart: %v", err)
		return errors.Wrap(err, "failed to persist cart")
	}
	return nil
}

// ToggleTheme flips the theme flag.
func (s *Store) ToggleTheme() {
	s.mu.Lock()
	s.darkTheme = !s.darkTheme
	s.mu.Unlock()

	s.notify()
}

// Session returns the current session, or nil when anonymous.
func (s *Store) Session() *auth.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// CartItems returns a copy of the cart items.
func (s *Store) CartItems() []cart.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Items()
}

// Entitlements returns a copy of the entitlement set.
func (s *Store) Entitlements() entitlement.Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entitlements.Clone()
}

// Profile returns the subscription profile.
func (s *Store) Profile() entitlement.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// IsEntitled reports whether the current session may download the track,
// either through ownership or through blanket subscriber access.
func (s *Store) IsEntitled(trackID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return false
	}
	return s.profile.IsSubscriber() || s.entitlements.Contains(trackID)
}

// TrackDownloadURL requests a time-limited download URL for an entitled
// track. Concurrent requests for the same track are rejected so a rapid
// double-click cannot issue duplicate download requests.
func (s *Store) TrackDownloadURL(ctx context.Context, trackID string) (string, error) {
	s.mu.RLock()
	session := s.session
	entitled := session != nil && (s.profile.IsSubscriber() || s.entitlements.Contains(trackID))
	s.mu.RUnlock()

	if session == nil {
		return "", ErrNoSession
	}
	if !entitled {
		return "", ErrNotEntitled
	}

	if !s.beginFlight("download:" + trackID) {
		return "", ErrRequestInFlight
	}
	defer s.endFlight("download:" + trackID)

	return s.backend.TrackDownloadURL(ctx, session.Token.AccessToken, trackID)
}

// LicenseCertificate fetches the PDF license certificate for a purchase.
// Same double-request guard as TrackDownloadURL.
func (s *Store) LicenseCertificate(ctx context.Context, purchaseID string) ([]byte, error) {
	s.mu.RLock()
	session := s.session
	s.mu.RUnlock()

	if session == nil {
		return nil, ErrNoSession
	}

	if !s.beginFlight("certificate:" + purchaseID) {
		return nil, ErrRequestInFlight
	}
	defer s.endFlight("certificate:" + purchaseID)

	return s.backend.LicenseCertificate(ctx, session.Token.AccessToken, purchaseID)
}

func (s *Store) beginFlight(key string) bool {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	if _, busy := s.inFlight[key]; busy {
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

func (s *Store) endFlight(key string) {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	delete(s.inFlight, key)
}
