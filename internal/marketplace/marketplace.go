// Package marketplace implements the rental marketplace state machine:
// request and offer lifecycles, the decision engine, escrow withdrawal
// authorization and the interledger bridge dispatch. All operations are
// serialized behind one mutex so every entry point runs to completion
// against a consistent view, the way the source ledger executed calls.
package marketplace

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smaug-iot/marketplace/internal/accesstoken"
	"github.com/smaug-iot/marketplace/internal/escrow"
	"github.com/smaug-iot/marketplace/internal/interledger"
)

// OpSubmitRequest is the operation name access tokens must be issued
// for to create requests.
const OpSubmitRequest = "submitAuthorisedRequest"

var selSubmitRequest = accesstoken.OperationSelector(OpSubmitRequest)

type tokenAuthorizer interface {
	Authorize(ctx context.Context, tok accesstoken.Token, sel accesstoken.Selector, caller common.Address) error
	Reset(ctx context.Context, caller common.Address) error
	IsManager(addr common.Address) bool
}

type Config struct {
	Owner common.Address

	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

type Service struct {
	mu sync.Mutex

	cfg    Config
	auth   tokenAuthorizer
	ledger *escrow.Ledger
	sink   EventSink
	events interledger.Counter

	requests map[uint64]*Request
	offers   map[uint64]*Offer

	nextRequestID uint64
	nextOfferID   uint64
}

func New(cfg Config, auth *accesstoken.Authorizer, ledger *escrow.Ledger, sink EventSink) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if sink == nil {
		sink = NopSink{}
	}
	return &Service{
		cfg:      cfg,
		auth:     auth,
		ledger:   ledger,
		sink:     sink,
		requests: make(map[uint64]*Request),
		offers:   make(map[uint64]*Offer),
	}
}

// SubmitAuthorisedRequest creates a pending request for caller. The
// access token is consumed only if the request is actually created, so
// a rejected deadline does not burn the nonce.
func (s *Service) SubmitAuthorisedRequest(ctx context.Context, caller common.Address, tok accesstoken.Token, deadline time.Time) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !deadline.After(s.cfg.Now()) {
		return 0, ErrDeadlinePassed
	}
	if err := s.auth.Authorize(ctx, tok, selSubmitRequest, caller); err != nil {
		return 0, mapAuthErr(err)
	}

	id := s.nextRequestID
	s.nextRequestID++
	s.requests[id] = &Request{
		ID:       id,
		Creator:  caller,
		Deadline: deadline,
		Stage:    RequestPending,
	}

	s.sink.Emit(ctx, RequestAdded{RequestID: id, Creator: caller, Deadline: deadline})
	return id, nil
}

// SubmitRequestExtra attaches the rental advertisement and opens the
// request. Creator-only, pending-only, one shot.
func (s *Service) SubmitRequestExtra(ctx context.Context, caller common.Address, requestID uint64, extra RequestExtra) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return ErrUndefinedID
	}
	if req.Creator != caller {
		return ErrAccessDenied
	}
	if req.Stage != RequestPending {
		return ErrRequestNotPending
	}
	if extra.DurationMinutes == 0 {
		return ErrInvalidInput
	}
	if err := validateTiers(extra.Tiers, extra.DurationMinutes); err != nil {
		return err
	}

	e := extra
	e.Tiers = append([]PricingTier(nil), extra.Tiers...)
	req.Extra = &e
	req.Stage = RequestOpen

	s.sink.Emit(ctx, RequestExtraAdded{RequestID: requestID})
	return nil
}

// CloseRequest stops offer collection. Creator-only, open-only.
func (s *Service) CloseRequest(ctx context.Context, caller common.Address, requestID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return ErrUndefinedID
	}
	if req.Creator != caller {
		return ErrAccessDenied
	}
	if req.Stage != RequestOpen {
		return ErrRequestNotOpen
	}
	req.Stage = RequestClosed

	s.sink.Emit(ctx, RequestClosedEvent{RequestID: requestID})
	return nil
}

// DeleteRequest retires a closed request. The record stays queryable
// with its deleted stage; it never reverts to "not found".
func (s *Service) DeleteRequest(ctx context.Context, caller common.Address, requestID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return ErrUndefinedID
	}
	if req.Creator != caller {
		return ErrAccessDenied
	}
	if req.Stage != RequestClosed {
		return ErrRequestNotClosed
	}
	req.Stage = RequestDeleted

	s.sink.Emit(ctx, RequestDeletedEvent{RequestID: requestID})
	return nil
}

// SubmitOffer opens a pending offer against an open request whose
// deadline has not passed. A decided request no longer takes offers,
// even while its stage is still open: a late deposit could never be
// marked won or lost and would stay locked in escrow.
func (s *Service) SubmitOffer(ctx context.Context, caller common.Address, requestID uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return 0, ErrUndefinedID
	}
	if s.cfg.Now().After(req.Deadline) {
		return 0, ErrDeadlinePassed
	}
	if req.Stage != RequestOpen || req.Decided {
		return 0, ErrRequestNotOpen
	}

	id := s.nextOfferID
	s.nextOfferID++
	s.offers[id] = &Offer{
		ID:        id,
		RequestID: requestID,
		Creator:   caller,
		Stage:     OfferPending,
	}
	req.OfferIDs = append(req.OfferIDs, id)

	s.sink.Emit(ctx, OfferAdded{OfferID: id, RequestID: requestID, Creator: caller})
	return id, nil
}

// SubmitOfferExtra attaches terms and escrows the deposit. No funds
// move on any rejection path. The parent must be open and undecided;
// a qualifying instant-rent offer then decides it on the spot.
func (s *Service) SubmitOfferExtra(ctx context.Context, caller common.Address, offerID uint64, extra OfferExtra) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	offer, ok := s.offers[offerID]
	if !ok {
		return ErrUndefinedID
	}
	if offer.Creator != caller {
		return ErrAccessDenied
	}
	if offer.Extra != nil {
		return ErrOfferNotPending
	}
	req := s.requests[offer.RequestID]
	if req.Stage != RequestOpen || req.Decided {
		return ErrRequestNotOpen
	}
	if extra.DurationMinutes == 0 {
		return ErrInvalidInput
	}

	rentStart := req.Extra.StartOfRent
	rentEnd := rentStart.Add(time.Duration(req.Extra.DurationMinutes) * time.Minute)
	offerEnd := extra.StartOfRent.Add(time.Duration(extra.DurationMinutes) * time.Minute)
	if extra.StartOfRent.Before(rentStart) || offerEnd.After(rentEnd) {
		return ErrTimeRangeInvalid
	}

	switch extra.Type {
	case OfferAuction:
		if extra.Amount < extra.DurationMinutes*req.Extra.MinAuctionPricePerMinute {
			return ErrPriceTooLow
		}
	case OfferInstantRent:
		if len(req.Extra.Tiers) == 0 {
			return ErrTypeNotSupported
		}
		startMinute := uint64(extra.StartOfRent.Sub(rentStart) / time.Minute)
		if extra.Amount < instantRentPrice(req.Extra.Tiers, startMinute, extra.DurationMinutes) {
			return ErrPriceTooLow
		}
	default:
		return ErrInvalidInput
	}

	if err := s.ledger.Deposit(ctx, offerID, caller, extra.Amount); err != nil {
		if errors.Is(err, escrow.ErrInsufficientFunds) {
			return ErrPriceTooLow
		}
		return fmt.Errorf("escrow deposit: %w", err)
	}

	e := extra
	offer.Extra = &e
	s.sink.Emit(ctx, OfferExtraAdded{OfferID: offerID})

	if extra.Type == OfferInstantRent {
		s.resolve(ctx, req, []uint64{offerID})
	}
	return nil
}

// ResetAccessTokens clears the spent-token state. Manager-only.
func (s *Service) ResetAccessTokens(ctx context.Context, caller common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.auth.Reset(ctx, caller); err != nil {
		return mapAuthErr(err)
	}
	s.sink.Emit(ctx, AccessTokensReset{})
	return nil
}

func mapAuthErr(err error) error {
	switch {
	case errors.Is(err, accesstoken.ErrTokenReplayed):
		return ErrTokenReplayed
	case errors.Is(err, accesstoken.ErrAccessDenied):
		return ErrAccessDenied
	}
	return err
}

// Info reports the marketplace identity.
func (s *Service) Info() MarketInfo {
	return MarketInfo{Owner: s.cfg.Owner, Type: MarketplaceType}
}

// Request returns a copy of the request record, deleted ones included.
func (s *Service) Request(requestID uint64) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return Request{}, ErrUndefinedID
	}
	return copyRequest(req), nil
}

// Offer returns a copy of the offer record.
func (s *Service) Offer(offerID uint64) (Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	offer, ok := s.offers[offerID]
	if !ok {
		return Offer{}, ErrUndefinedID
	}
	return copyOffer(offer), nil
}

// RequestsByStage lists the IDs of requests currently in the given
// stage, in ascending order.
func (s *Service) RequestsByStage(stage RequestStage) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uint64
	for id, req := range s.requests {
		if req.Stage == stage {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RequestOffers lists the offer IDs submitted against a request, in
// submission order.
func (s *Service) RequestOffers(requestID uint64) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return nil, ErrUndefinedID
	}
	return append([]uint64(nil), req.OfferIDs...), nil
}

// Decision reports whether a request is decided and, if so, its
// winning offer IDs.
func (s *Service) Decision(requestID uint64) (bool, []uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return false, nil, ErrUndefinedID
	}
	if !req.Decided {
		return false, nil, nil
	}
	return true, append([]uint64(nil), req.Winners...), nil
}

func copyRequest(req *Request) Request {
	out := *req
	out.Winners = append([]uint64(nil), req.Winners...)
	out.OfferIDs = append([]uint64(nil), req.OfferIDs...)
	if req.Extra != nil {
		e := *req.Extra
		e.Tiers = append([]PricingTier(nil), req.Extra.Tiers...)
		out.Extra = &e
	}
	return out
}

func copyOffer(offer *Offer) Offer {
	out := *offer
	out.AccessToken = append([]byte(nil), offer.AccessToken...)
	if offer.Extra != nil {
		e := *offer.Extra
		if offer.Extra.AuthenticationKey != nil {
			k := *offer.Extra.AuthenticationKey
			e.AuthenticationKey = &k
		}
		out.Extra = &e
	}
	return out
}
