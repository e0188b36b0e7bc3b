package marketplace

import (
	"context"
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smaug-iot/marketplace/internal/accesstoken"
	"github.com/smaug-iot/marketplace/internal/escrow"
	"github.com/smaug-iot/marketplace/internal/interledger"
)

var (
	owner = common.HexToAddress("0x1000")
	vault = common.HexToAddress("0x01")
	alice = common.HexToAddress("0xaa")
	bob   = common.HexToAddress("0xbb")
	carl  = common.HexToAddress("0xcc")
)

type fixture struct {
	t          *testing.T
	svc        *Service
	bank       *escrow.MemoryBank
	sink       *Collector
	managerKey *ecdsa.PrivateKey
	manager    common.Address
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	managerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	manager := crypto.PubkeyToAddress(managerKey.PublicKey)

	bank := escrow.NewMemoryBank(map[common.Address]uint64{
		alice: 1000,
		bob:   1000,
		carl:  1000,
	})

	f := &fixture{
		t:          t,
		bank:       bank,
		sink:       &Collector{},
		managerKey: managerKey,
		manager:    manager,
		now:        time.Date(2023, 8, 1, 12, 0, 0, 0, time.UTC),
	}

	auth := accesstoken.New(owner, []common.Address{manager}, accesstoken.NewMemoryNonceStore())
	f.svc = New(Config{
		Owner: owner,
		Now:   func() time.Time { return f.now },
	}, auth, escrow.New(bank, vault), f.sink)

	return f
}

func (f *fixture) token(caller common.Address) accesstoken.Token {
	tok, err := accesstoken.Issue(f.managerKey, selSubmitRequest, caller, owner)
	require.NoError(f.t, err)
	return tok
}

func (f *fixture) newRequest(creator common.Address) uint64 {
	id, err := f.svc.SubmitAuthorisedRequest(context.Background(), creator, f.token(creator), f.now.Add(time.Hour))
	require.NoError(f.t, err)
	return id
}

// newOpenRequest creates a request renting a locker for an hour starting
// two hours from the fixture clock.
func (f *fixture) newOpenRequest(creator common.Address, minPrice uint64, tiers []PricingTier) uint64 {
	id := f.newRequest(creator)
	err := f.svc.SubmitRequestExtra(context.Background(), creator, id, RequestExtra{
		StartOfRent:              f.rentStart(),
		DurationMinutes:          60,
		MinAuctionPricePerMinute: minPrice,
		Tiers:                    tiers,
		LockerID:                 common.HexToHash("0x10c4e4"),
	})
	require.NoError(f.t, err)
	return id
}

func (f *fixture) rentStart() time.Time {
	return f.now.Add(2 * time.Hour)
}

// newOffer submits an offer plus auction terms covering the full window.
func (f *fixture) newOffer(creator common.Address, requestID, amount uint64) uint64 {
	id, err := f.svc.SubmitOffer(context.Background(), creator, requestID)
	require.NoError(f.t, err)
	err = f.svc.SubmitOfferExtra(context.Background(), creator, id, OfferExtra{
		StartOfRent:     f.rentStart(),
		DurationMinutes: 60,
		Type:            OfferAuction,
		Amount:          amount,
		EncryptionKey:   common.BytesToHash([]byte{byte(id) + 1}),
	})
	require.NoError(f.t, err)
	return id
}

func TestSubmitAuthorisedRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a pending request", func(t *testing.T) {
		f := newFixture(t)
		id := f.newRequest(alice)

		req, err := f.svc.Request(id)
		assert.NoError(t, err)
		assert.Equal(t, alice, req.Creator)
		assert.Equal(t, RequestPending, req.Stage)
		assert.Len(t, f.sink.ByKind("request_added"), 1)
	})

	t.Run("past deadline rejected without burning the token", func(t *testing.T) {
		f := newFixture(t)
		tok := f.token(alice)

		_, err := f.svc.SubmitAuthorisedRequest(ctx, alice, tok, f.now.Add(-time.Minute))
		assert.ErrorIs(t, err, ErrDeadlinePassed)

		_, err = f.svc.SubmitAuthorisedRequest(ctx, alice, tok, f.now.Add(time.Hour))
		assert.NoError(t, err)
	})

	t.Run("token replay rejected", func(t *testing.T) {
		f := newFixture(t)
		tok := f.token(alice)

		_, err := f.svc.SubmitAuthorisedRequest(ctx, alice, tok, f.now.Add(time.Hour))
		require.NoError(t, err)
		_, err = f.svc.SubmitAuthorisedRequest(ctx, alice, tok, f.now.Add(time.Hour))
		assert.ErrorIs(t, err, ErrTokenReplayed)
	})

	t.Run("token bound to another caller rejected", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.SubmitAuthorisedRequest(ctx, bob, f.token(alice), f.now.Add(time.Hour))
		assert.ErrorIs(t, err, ErrAccessDenied)
	})

	t.Run("reset makes a spent token valid again", func(t *testing.T) {
		f := newFixture(t)
		tok := f.token(alice)

		_, err := f.svc.SubmitAuthorisedRequest(ctx, alice, tok, f.now.Add(time.Hour))
		require.NoError(t, err)

		assert.ErrorIs(t, f.svc.ResetAccessTokens(ctx, alice), ErrAccessDenied)
		assert.NoError(t, f.svc.ResetAccessTokens(ctx, f.manager))

		_, err = f.svc.SubmitAuthorisedRequest(ctx, alice, tok, f.now.Add(time.Hour))
		assert.NoError(t, err)
	})
}

func TestRequestLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("pending to open to closed to deleted", func(t *testing.T) {
		f := newFixture(t)
		id := f.newOpenRequest(alice, 5, nil)

		req, _ := f.svc.Request(id)
		assert.Equal(t, RequestOpen, req.Stage)
		assert.Equal(t, []uint64{id}, f.svc.RequestsByStage(RequestOpen))

		assert.NoError(t, f.svc.CloseRequest(ctx, alice, id))
		assert.Equal(t, []uint64{id}, f.svc.RequestsByStage(RequestClosed))

		assert.NoError(t, f.svc.DeleteRequest(ctx, alice, id))
		req, err := f.svc.Request(id)
		assert.NoError(t, err)
		assert.Equal(t, RequestDeleted, req.Stage)

		assert.Len(t, f.sink.ByKind("request_closed"), 1)
		assert.Len(t, f.sink.ByKind("request_deleted"), 1)
	})

	t.Run("only the creator advances the lifecycle", func(t *testing.T) {
		f := newFixture(t)
		id := f.newRequest(alice)

		extra := RequestExtra{StartOfRent: f.rentStart(), DurationMinutes: 60}
		assert.ErrorIs(t, f.svc.SubmitRequestExtra(ctx, bob, id, extra), ErrAccessDenied)
		require.NoError(t, f.svc.SubmitRequestExtra(ctx, alice, id, extra))

		assert.ErrorIs(t, f.svc.CloseRequest(ctx, bob, id), ErrAccessDenied)
		require.NoError(t, f.svc.CloseRequest(ctx, alice, id))

		assert.ErrorIs(t, f.svc.DeleteRequest(ctx, bob, id), ErrAccessDenied)
	})

	t.Run("stage guards", func(t *testing.T) {
		f := newFixture(t)
		id := f.newOpenRequest(alice, 5, nil)

		extra := RequestExtra{StartOfRent: f.rentStart(), DurationMinutes: 60}
		assert.ErrorIs(t, f.svc.SubmitRequestExtra(ctx, alice, id, extra), ErrRequestNotPending)
		assert.ErrorIs(t, f.svc.DeleteRequest(ctx, alice, id), ErrRequestNotClosed)

		require.NoError(t, f.svc.CloseRequest(ctx, alice, id))
		assert.ErrorIs(t, f.svc.CloseRequest(ctx, alice, id), ErrRequestNotOpen)
	})

	t.Run("unknown ids", func(t *testing.T) {
		f := newFixture(t)

		assert.ErrorIs(t, f.svc.CloseRequest(ctx, alice, 42), ErrUndefinedID)
		_, err := f.svc.Request(42)
		assert.ErrorIs(t, err, ErrUndefinedID)
		_, err = f.svc.SubmitOffer(ctx, bob, 42)
		assert.ErrorIs(t, err, ErrUndefinedID)
	})

	t.Run("zero duration rejected", func(t *testing.T) {
		f := newFixture(t)
		id := f.newRequest(alice)

		err := f.svc.SubmitRequestExtra(ctx, alice, id, RequestExtra{StartOfRent: f.rentStart()})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestSubmitOffer(t *testing.T) {
	ctx := context.Background()

	t.Run("requires an open request before the deadline", func(t *testing.T) {
		f := newFixture(t)
		pending := f.newRequest(alice)
		open := f.newOpenRequest(alice, 5, nil)

		_, err := f.svc.SubmitOffer(ctx, bob, pending)
		assert.ErrorIs(t, err, ErrRequestNotOpen)

		_, err = f.svc.SubmitOffer(ctx, bob, open)
		assert.NoError(t, err)

		f.now = f.now.Add(2 * time.Hour)
		_, err = f.svc.SubmitOffer(ctx, bob, open)
		assert.ErrorIs(t, err, ErrDeadlinePassed)
	})

	t.Run("offer terms validation", func(t *testing.T) {
		f := newFixture(t)
		reqID := f.newOpenRequest(alice, 5, nil)

		offerID, err := f.svc.SubmitOffer(ctx, bob, reqID)
		require.NoError(t, err)

		base := OfferExtra{
			StartOfRent:     f.rentStart(),
			DurationMinutes: 30,
			Type:            OfferAuction,
			Amount:          150,
			EncryptionKey:   common.HexToHash("0x02"),
		}

		var tests = []struct {
			name   string
			caller common.Address
			mutate func(*OfferExtra)
			err    error
		}{
			{"not the offer creator", carl, func(e *OfferExtra) {}, ErrAccessDenied},
			{"zero duration", bob, func(e *OfferExtra) { e.DurationMinutes = 0 }, ErrInvalidInput},
			{"starts before the window", bob, func(e *OfferExtra) { e.StartOfRent = f.rentStart().Add(-time.Minute) }, ErrTimeRangeInvalid},
			{"ends past the window", bob, func(e *OfferExtra) { e.DurationMinutes = 61 }, ErrTimeRangeInvalid},
			{"below the auction floor", bob, func(e *OfferExtra) { e.Amount = 149 }, ErrPriceTooLow},
			{"instant rent on auction-only request", bob, func(e *OfferExtra) { e.Type = OfferInstantRent }, ErrTypeNotSupported},
			{"unknown offer type", bob, func(e *OfferExtra) { e.Type = OfferType(9) }, ErrInvalidInput},
			{"deposit exceeds balance", bob, func(e *OfferExtra) { e.Amount = 2000 }, ErrPriceTooLow},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				extra := base
				tt.mutate(&extra)
				assert.ErrorIs(t, f.svc.SubmitOfferExtra(ctx, tt.caller, offerID, extra), tt.err)
			})
		}

		// No rejection moved any money.
		assert.Equal(t, uint64(1000), f.bank.Balance(bob))

		require.NoError(t, f.svc.SubmitOfferExtra(ctx, bob, offerID, base))
		assert.Equal(t, uint64(850), f.bank.Balance(bob))
		assert.ErrorIs(t, f.svc.SubmitOfferExtra(ctx, bob, offerID, base), ErrOfferNotPending)
	})

	t.Run("instant rent auto decides", func(t *testing.T) {
		f := newFixture(t)
		tiers := []PricingTier{{0, 5}, {30, 3}}
		reqID := f.newOpenRequest(alice, 5, tiers)

		offerID, err := f.svc.SubmitOffer(ctx, bob, reqID)
		require.NoError(t, err)

		// 30 min at 5 plus 30 min at 3.
		err = f.svc.SubmitOfferExtra(ctx, bob, offerID, OfferExtra{
			StartOfRent:     f.rentStart(),
			DurationMinutes: 60,
			Type:            OfferInstantRent,
			Amount:          240,
			EncryptionKey:   common.HexToHash("0x02"),
		})
		assert.NoError(t, err)

		decided, winners, err := f.svc.Decision(reqID)
		assert.NoError(t, err)
		assert.True(t, decided)
		assert.Equal(t, []uint64{offerID}, winners)

		offer, _ := f.svc.Offer(offerID)
		assert.Equal(t, OfferWon, offer.Stage)
		assert.Len(t, f.sink.ByKind("interledger_event_sending"), 1)
	})

	t.Run("decided request takes no more offers", func(t *testing.T) {
		f := newFixture(t)
		reqID := f.newOpenRequest(alice, 5, nil)
		won := f.newOffer(bob, reqID, 400)

		// A pending offer opened before the decision.
		pending, err := f.svc.SubmitOffer(ctx, carl, reqID)
		require.NoError(t, err)

		require.NoError(t, f.svc.DecideRequest(ctx, alice, reqID, []uint64{won}))

		_, err = f.svc.SubmitOffer(ctx, carl, reqID)
		assert.ErrorIs(t, err, ErrRequestNotOpen)

		err = f.svc.SubmitOfferExtra(ctx, carl, pending, OfferExtra{
			StartOfRent:     f.rentStart(),
			DurationMinutes: 60,
			Type:            OfferAuction,
			Amount:          300,
			EncryptionKey:   common.HexToHash("0x03"),
		})
		assert.ErrorIs(t, err, ErrRequestNotOpen)

		// Nothing was escrowed after the decision.
		assert.Equal(t, uint64(1000), f.bank.Balance(carl))
	})

	t.Run("underpriced instant rent rejected", func(t *testing.T) {
		f := newFixture(t)
		reqID := f.newOpenRequest(alice, 5, []PricingTier{{0, 5}})

		offerID, err := f.svc.SubmitOffer(ctx, bob, reqID)
		require.NoError(t, err)

		err = f.svc.SubmitOfferExtra(ctx, bob, offerID, OfferExtra{
			StartOfRent:     f.rentStart(),
			DurationMinutes: 60,
			Type:            OfferInstantRent,
			Amount:          299,
			EncryptionKey:   common.HexToHash("0x02"),
		})
		assert.ErrorIs(t, err, ErrPriceTooLow)
	})
}

func TestDecideRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("marks winners and losers", func(t *testing.T) {
		f := newFixture(t)
		reqID := f.newOpenRequest(alice, 5, nil)
		won := f.newOffer(bob, reqID, 400)
		lost := f.newOffer(carl, reqID, 300)

		require.NoError(t, f.svc.DecideRequest(ctx, alice, reqID, []uint64{won}))

		w, _ := f.svc.Offer(won)
		l, _ := f.svc.Offer(lost)
		assert.Equal(t, OfferWon, w.Stage)
		assert.Equal(t, OfferLost, l.Stage)

		sending := f.sink.ByKind("interledger_event_sending")
		require.Len(t, sending, 1)
		ev := sending[0].(InterledgerEventSending)
		assert.Equal(t, uint64(0), ev.ID)

		winners, err := interledger.DecodeDecision(ev.Payload)
		assert.NoError(t, err)
		require.Len(t, winners, 1)
		assert.Equal(t, won, winners[0].OfferID)
	})

	t.Run("second decision rejected", func(t *testing.T) {
		f := newFixture(t)
		reqID := f.newOpenRequest(alice, 5, nil)
		won := f.newOffer(bob, reqID, 400)

		require.NoError(t, f.svc.DecideRequest(ctx, alice, reqID, []uint64{won}))
		assert.ErrorIs(t, f.svc.DecideRequest(ctx, alice, reqID, nil), ErrAlreadySettled)
	})

	t.Run("only the creator decides", func(t *testing.T) {
		f := newFixture(t)
		reqID := f.newOpenRequest(alice, 5, nil)

		assert.ErrorIs(t, f.svc.DecideRequest(ctx, bob, reqID, nil), ErrAccessDenied)
	})

	t.Run("winners must be complete offers of this request", func(t *testing.T) {
		f := newFixture(t)
		reqID := f.newOpenRequest(alice, 5, nil)
		otherReq := f.newOpenRequest(bob, 5, nil)
		foreign := f.newOffer(carl, otherReq, 400)

		assert.ErrorIs(t, f.svc.DecideRequest(ctx, alice, reqID, []uint64{99}), ErrUndefinedID)
		assert.ErrorIs(t, f.svc.DecideRequest(ctx, alice, reqID, []uint64{foreign}), ErrUndefinedID)

		bare, err := f.svc.SubmitOffer(ctx, carl, reqID)
		require.NoError(t, err)
		assert.ErrorIs(t, f.svc.DecideRequest(ctx, alice, reqID, []uint64{bare}), ErrUndefinedID)
	})

	t.Run("zero winners is a valid decision", func(t *testing.T) {
		f := newFixture(t)
		reqID := f.newOpenRequest(alice, 5, nil)
		offerID := f.newOffer(bob, reqID, 400)

		require.NoError(t, f.svc.DecideRequest(ctx, alice, reqID, nil))

		decided, winners, err := f.svc.Decision(reqID)
		assert.NoError(t, err)
		assert.True(t, decided)
		assert.Empty(t, winners)

		offer, _ := f.svc.Offer(offerID)
		assert.Equal(t, OfferLost, offer.Stage)
	})
}

func TestInterledgerReceive(t *testing.T) {
	ctx := context.Background()

	decide := func(f *fixture, reqID uint64, winners ...uint64) {
		require.NoError(f.t, f.svc.DecideRequest(ctx, alice, reqID, winners))
	}
	payload := func(ids ...uint64) []byte {
		var entries []interledger.Entry
		for _, id := range ids {
			entries = append(entries, interledger.Entry{OfferID: id, Token: []byte("grant")})
		}
		return interledger.EncodePayload(entries)
	}

	t.Run("fulfills mentioned winners and frees the rest", func(t *testing.T) {
		f := newFixture(t)
		reqID := f.newOpenRequest(alice, 5, nil)
		won1 := f.newOffer(bob, reqID, 400)
		won2 := f.newOffer(bob, reqID, 350)
		lost := f.newOffer(carl, reqID, 300)
		decide(f, reqID, won1, won2)

		require.NoError(t, f.svc.InterledgerReceive(ctx, f.manager, 7, payload(won1)))

		o1, _ := f.svc.Offer(won1)
		assert.Equal(t, FulfillmentFulfilled, o1.Fulfillment)
		assert.Equal(t, []byte("grant"), o1.AccessToken)

		o2, _ := f.svc.Offer(won2)
		assert.Equal(t, FulfillmentClaimable, o2.Fulfillment)

		req, _ := f.svc.Request(reqID)
		assert.True(t, req.Claimable)

		// The loser shows up in the claimable notifications.
		claimable := f.sink.ByKind("offer_claimable")
		ids := make(map[uint64]bool)
		for _, ev := range claimable {
			ids[ev.(OfferClaimable).OfferID] = true
		}
		assert.True(t, ids[won2])
		assert.True(t, ids[lost])

		accepted := f.sink.ByKind("interledger_event_accepted")
		require.Len(t, accepted, 1)
		assert.Equal(t, uint64(7), accepted[0].(InterledgerEventAccepted).Nonce)
	})

	t.Run("rejections leave state untouched", func(t *testing.T) {
		f := newFixture(t)
		reqID := f.newOpenRequest(alice, 5, nil)
		otherReq := f.newOpenRequest(alice, 5, nil)
		won := f.newOffer(bob, reqID, 400)
		foreign := f.newOffer(carl, otherReq, 300)
		undecided := f.newOffer(carl, otherReq, 300)
		decide(f, reqID, won)

		var tests = []struct {
			name    string
			caller  common.Address
			payload []byte
			err     error
		}{
			{"not a manager", bob, payload(won), ErrAccessDenied},
			{"empty payload", f.manager, nil, ErrInvalidInput},
			{"unknown offer", f.manager, payload(99), ErrUndefinedID},
			{"offers of two requests", f.manager, payload(won, foreign), ErrInvalidInput},
			{"undecided request", f.manager, payload(undecided), ErrPaymentNotResolved},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				before := len(f.sink.ByKind("interledger_event_rejected"))
				assert.ErrorIs(t, f.svc.InterledgerReceive(ctx, tt.caller, 1, tt.payload), tt.err)
				assert.Len(t, f.sink.ByKind("interledger_event_rejected"), before+1)
			})
		}

		offer, _ := f.svc.Offer(won)
		assert.Equal(t, FulfillmentNone, offer.Fulfillment)
		req, _ := f.svc.Request(reqID)
		assert.False(t, req.Claimable)
	})
}

func TestSettleTrade(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t)
	reqID := f.newOpenRequest(alice, 5, nil)
	won := f.newOffer(bob, reqID, 400)
	lost := f.newOffer(carl, reqID, 300)

	t.Run("requires a decided winning offer", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.SettleTrade(ctx, bob, reqID, won), ErrPaymentNotResolved)

		require.NoError(t, f.svc.DecideRequest(ctx, alice, reqID, []uint64{won}))
		assert.ErrorIs(t, f.svc.SettleTrade(ctx, carl, reqID, lost), ErrPaymentNotResolved)
	})

	t.Run("only the offer creator settles", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.SettleTrade(ctx, carl, reqID, won), ErrAccessDenied)
	})

	t.Run("settles exactly once", func(t *testing.T) {
		assert.NoError(t, f.svc.SettleTrade(ctx, bob, reqID, won))
		assert.ErrorIs(t, f.svc.SettleTrade(ctx, bob, reqID, won), ErrAlreadySettled)
		assert.Len(t, f.sink.ByKind("trade_settled"), 1)
	})

	t.Run("unknown ids", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.SettleTrade(ctx, bob, 99, won), ErrUndefinedID)
		assert.ErrorIs(t, f.svc.SettleTrade(ctx, bob, reqID, 99), ErrUndefinedID)
	})
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()

	t.Run("full trade round trip", func(t *testing.T) {
		f := newFixture(t)
		reqID := f.newOpenRequest(alice, 5, nil)
		won := f.newOffer(bob, reqID, 400)
		lost := f.newOffer(carl, reqID, 300)

		// Deposits are locked in the vault.
		assert.Equal(t, uint64(600), f.bank.Balance(bob))
		assert.Equal(t, uint64(700), f.bank.Balance(carl))

		_, err := f.svc.Withdraw(ctx, bob, won)
		assert.ErrorIs(t, err, ErrPaymentNotResolved)

		require.NoError(t, f.svc.DecideRequest(ctx, alice, reqID, []uint64{won}))

		// The loser's deposit refunds to its creator right away.
		_, err = f.svc.Withdraw(ctx, bob, lost)
		assert.ErrorIs(t, err, ErrAccessDenied)
		amount, err := f.svc.Withdraw(ctx, carl, lost)
		assert.NoError(t, err)
		assert.Equal(t, uint64(300), amount)
		assert.Equal(t, uint64(1000), f.bank.Balance(carl))

		// The winning deposit stays locked until fulfillment is known.
		_, err = f.svc.Withdraw(ctx, alice, won)
		assert.ErrorIs(t, err, ErrPaymentNotResolved)

		grant := interledger.EncodePayload([]interledger.Entry{{OfferID: won, Token: []byte("grant")}})
		require.NoError(t, f.svc.InterledgerReceive(ctx, f.manager, 1, grant))

		_, err = f.svc.Withdraw(ctx, bob, won)
		assert.ErrorIs(t, err, ErrAccessDenied)
		amount, err = f.svc.Withdraw(ctx, alice, won)
		assert.NoError(t, err)
		assert.Equal(t, uint64(400), amount)
		assert.Equal(t, uint64(1400), f.bank.Balance(alice))

		// Exactly once.
		_, err = f.svc.Withdraw(ctx, alice, won)
		assert.ErrorIs(t, err, ErrPaymentNotFound)
		_, err = f.svc.Withdraw(ctx, carl, lost)
		assert.ErrorIs(t, err, ErrPaymentNotFound)

		assert.Equal(t, uint64(0), f.bank.Balance(vault))
		assert.Len(t, f.sink.ByKind("payment_cashed_out"), 2)
	})

	t.Run("unknown payment", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Withdraw(ctx, alice, 42)
		assert.ErrorIs(t, err, ErrPaymentNotFound)
	})

	t.Run("claimable winner refunds through the request creator", func(t *testing.T) {
		f := newFixture(t)
		reqID := f.newOpenRequest(alice, 5, nil)
		won1 := f.newOffer(bob, reqID, 400)
		won2 := f.newOffer(carl, reqID, 300)
		require.NoError(t, f.svc.DecideRequest(ctx, alice, reqID, []uint64{won1, won2}))

		// Only won1 got its token delivered; won2 is claimable.
		grant := interledger.EncodePayload([]interledger.Entry{{OfferID: won1, Token: []byte("grant")}})
		require.NoError(t, f.svc.InterledgerReceive(ctx, f.manager, 1, grant))

		amount, err := f.svc.Withdraw(ctx, alice, won2)
		assert.NoError(t, err)
		assert.Equal(t, uint64(300), amount)
	})
}

func TestInfo(t *testing.T) {
	f := newFixture(t)

	info := f.svc.Info()
	assert.Equal(t, owner, info.Owner)
	assert.Equal(t, "eu.sofie-iot.smaug-marketplace", info.Type)
}
