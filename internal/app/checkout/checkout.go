// Package checkout provides the cart to merchant-of-record handoff.
package checkout

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/sonavia/sonavia/internal/app/store"
	"github.com/sonavia/sonavia/internal/domain/cart"
	"github.com/sonavia/sonavia/internal/infra/payment"
)

var (
	// ErrSignInRequired is an expected precondition, not a fault; callers
	// redirect to sign-in instead of showing an error. The cart is untouched.
	ErrSignInRequired = errors.New("sign-in required for checkout")

	ErrEmptyCart        = errors.New("cart is empty")
	ErrCheckoutInFlight = errors.New("checkout already in flight")
)

// Gateway is the slice of the payment collaborator the service consumes.
type Gateway interface {
	HostedCheckoutURL(ctx context.Context, req payment.Request) (string, error)
}

// Service hands the cart off to the hosted checkout.
// No local state changes as a result of a handoff; entitlement updates
// arrive later through the store's refresh operations, triggered by the
// checkout-completion webhook or the next sign-in.
type Service struct {
	mu       sync.Mutex
	inFlight bool

	gateway Gateway
	store   *store.Store
}

// New creates a checkout service.
func New(gateway Gateway, st *store.Store) *Service {
	return &Service{gateway: gateway, store: st}
}

// InitiateCheckout creates a hosted checkout session for the whole cart
// and returns the URL to open.
//
// The first cart item's license type is taken as authoritative for the
// whole multi-item checkout; per-item license tiers are a known limitation
// of the hosted checkout contract.
func (s *Service) InitiateCheckout(ctx context.Context) (string, error) {
	session := s.store.Session()
	if session == nil {
		return "", ErrSignInRequired
	}

	items := s.store.CartItems()
	if len(items) == 0 {
		return "", ErrEmptyCart
	}

	return s.handOff(ctx, session.UserID, items)
}

// InitiateItemCheckout creates a hosted checkout session for a single item
// (the "buy now" path), bypassing the cart.
func (s *Service) InitiateItemCheckout(ctx context.Context, item cart.Item) (string, error) {
	session := s.store.Session()
	if session == nil {
		return "", ErrSignInRequired
	}

	return s.handOff(ctx, session.UserID, []cart.Item{item})
}

// handOff guards against double invocation from rapid double-clicks and
// calls the gateway.
func (s *Service) handOff(ctx context.Context, userID string, items []cart.Item) (string, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return "", ErrCheckoutInFlight
	}
	s.inFlight = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.CatalogItemID
	}

	req := payment.Request{
		ItemIDs:   ids,
		UserID:    userID,
		License:   items[0].License,
		Quantity:  len(items),
		Reference: uuid.New().String(),
	}

	url, err := s.gateway.HostedCheckoutURL(ctx, req)
	if err != nil {
		return "", errors.Wrap(err, "failed to create hosted checkout")
	}

	zlog.Info().Msgf("checkout: hosted session created: items=%d license=%s ref=%s",
		len(items), req.License, req.Reference)
	return url, nil
}
