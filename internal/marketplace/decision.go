package marketplace

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smaug-iot/marketplace/internal/interledger"
)

// DecideRequest records the creator's explicit choice of winners.
// Decided requests reject further decisions, whether the first one was
// manual or an instant-rent auto match.
func (s *Service) DecideRequest(ctx context.Context, caller common.Address, requestID uint64, winners []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return ErrUndefinedID
	}
	if req.Creator != caller {
		return ErrAccessDenied
	}
	if req.Decided {
		return ErrAlreadySettled
	}
	for _, id := range winners {
		offer, ok := s.offers[id]
		if !ok || offer.RequestID != requestID || offer.Extra == nil {
			return ErrUndefinedID
		}
	}

	s.resolve(ctx, req, winners)
	return nil
}

// resolve is the single decision path shared by the manual and the
// instant-rent auto-match triggers. Callers must hold the lock and have
// checked req.Decided.
func (s *Service) resolve(ctx context.Context, req *Request, winners []uint64) {
	req.Decided = true
	req.Winners = append([]uint64(nil), winners...)

	winning := make(map[uint64]bool, len(winners))
	for _, id := range winners {
		winning[id] = true
	}
	for _, id := range req.OfferIDs {
		offer := s.offers[id]
		if offer.Extra == nil {
			continue
		}
		if winning[id] {
			offer.Stage = OfferWon
		} else {
			offer.Stage = OfferLost
		}
	}

	s.sink.Emit(ctx, RequestDecided{RequestID: req.ID, Winners: append([]uint64(nil), winners...)})
	s.emitDecisionNotification(ctx, req)
}

// SettleTrade is the offerer's acknowledgement that a won trade went
// through. It settles exactly once and does not gate withdrawal; the
// interledger round trip does that.
func (s *Service) SettleTrade(ctx context.Context, caller common.Address, requestID, offerID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return ErrUndefinedID
	}
	offer, ok := s.offers[offerID]
	if !ok || offer.RequestID != requestID {
		return ErrUndefinedID
	}
	if offer.Creator != caller {
		return ErrAccessDenied
	}
	if !req.Decided || offer.Stage != OfferWon {
		return ErrPaymentNotResolved
	}
	if offer.Settled {
		return ErrAlreadySettled
	}
	offer.Settled = true

	s.sink.Emit(ctx, TradeSettled{RequestID: requestID, OfferID: offerID})
	return nil
}

// Withdraw pays out the escrowed deposit behind an offer. Winning
// deposits go to the request creator once the interledger round trip
// resolved the offer; losing deposits refund to the offer creator as
// soon as the request is decided. Exactly-once: afterwards the payment
// reports not found.
func (s *Service) Withdraw(ctx context.Context, caller common.Address, offerID uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.ledger.Entry(offerID); err != nil {
		return 0, ErrPaymentNotFound
	}

	offer := s.offers[offerID]
	req := s.requests[offer.RequestID]
	if !req.Decided {
		return 0, ErrPaymentNotResolved
	}

	switch offer.Stage {
	case OfferWon:
		if offer.Fulfillment == FulfillmentNone {
			return 0, ErrPaymentNotResolved
		}
		if caller != req.Creator {
			return 0, ErrAccessDenied
		}
	case OfferLost:
		if caller != offer.Creator {
			return 0, ErrAccessDenied
		}
	default:
		return 0, ErrPaymentNotResolved
	}

	amount, err := s.ledger.Withdraw(ctx, offerID, caller)
	if err != nil {
		return 0, err
	}

	s.sink.Emit(ctx, PaymentCashedOut{OfferID: offerID, To: caller, Amount: amount})
	return amount, nil
}

func (s *Service) emitDecisionNotification(ctx context.Context, req *Request) {
	winners := make([]interledger.Winner, 0, len(req.Winners))
	for _, id := range req.Winners {
		offer := s.offers[id]
		w := interledger.Winner{
			OfferID: id,
			DID:     offer.Extra.EncryptionKey,
		}
		if offer.Extra.AuthenticationKey != nil {
			k := *offer.Extra.AuthenticationKey
			w.AuthenticationKey = &k
		}
		winners = append(winners, w)
	}

	s.sink.Emit(ctx, InterledgerEventSending{
		ID:      s.events.Next(),
		Payload: interledger.EncodeDecision(winners),
	})
}
