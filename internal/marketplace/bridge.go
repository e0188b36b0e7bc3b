package marketplace

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smaug-iot/marketplace/internal/interledger"
)

// InterledgerReceive ingests a fulfillment callback from the settlement
// peer. The payload is applied wholesale or not at all: any defect
// rejects the event with the peer's nonce echoed back and leaves every
// registry untouched. On acceptance the mentioned winners are marked
// fulfilled with their delivered token, the unmentioned winners and all
// losers become claimable, and the request unlocks winner withdrawals.
func (s *Service) InterledgerReceive(ctx context.Context, caller common.Address, nonce uint64, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reject := func(reason error) error {
		s.sink.Emit(ctx, InterledgerEventRejected{Nonce: nonce})
		return reason
	}

	if !s.auth.IsManager(caller) {
		return reject(ErrAccessDenied)
	}

	entries, err := interledger.DecodePayload(payload)
	if err != nil {
		return reject(ErrInvalidInput)
	}

	var req *Request
	tokens := make(map[uint64][]byte, len(entries))
	for _, e := range entries {
		offer, ok := s.offers[e.OfferID]
		if !ok {
			return reject(ErrUndefinedID)
		}
		parent := s.requests[offer.RequestID]
		if req != nil && parent != req {
			return reject(ErrInvalidInput)
		}
		req = parent
		tokens[e.OfferID] = e.Token
	}
	if !req.Decided {
		return reject(ErrPaymentNotResolved)
	}

	for _, id := range req.Winners {
		offer := s.offers[id]
		if token, ok := tokens[id]; ok {
			offer.Fulfillment = FulfillmentFulfilled
			offer.AccessToken = append([]byte(nil), token...)
			s.sink.Emit(ctx, OfferFulfilled{OfferID: id, Token: offer.AccessToken})
		} else {
			offer.Fulfillment = FulfillmentClaimable
			s.sink.Emit(ctx, OfferClaimable{OfferID: id})
		}
	}
	for _, id := range req.OfferIDs {
		if s.offers[id].Stage == OfferLost {
			s.sink.Emit(ctx, OfferClaimable{OfferID: id})
		}
	}

	req.Claimable = true
	s.sink.Emit(ctx, RequestClaimable{
		RequestID: req.ID,
		Winners:   append([]uint64(nil), req.Winners...),
	})
	s.sink.Emit(ctx, InterledgerEventAccepted{Nonce: nonce})
	return nil
}
