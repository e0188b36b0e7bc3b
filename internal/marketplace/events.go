package marketplace

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Event is anything the marketplace announces to the outside world:
// state transitions, interledger traffic and settlement milestones.
type Event interface {
	Kind() string
}

// EventSink receives every event emitted by the service, in emission
// order. Sinks must not block for long; slow consumers should buffer.
type EventSink interface {
	Emit(ctx context.Context, ev Event)
}

type RequestAdded struct {
	RequestID uint64         `json:"request_id"`
	Creator   common.Address `json:"creator"`
	Deadline  time.Time      `json:"deadline"`
}

type RequestExtraAdded struct {
	RequestID uint64 `json:"request_id"`
}

type RequestClosedEvent struct {
	RequestID uint64 `json:"request_id"`
}

type RequestDeletedEvent struct {
	RequestID uint64 `json:"request_id"`
}

type RequestDecided struct {
	RequestID uint64   `json:"request_id"`
	Winners   []uint64 `json:"winners"`
}

type OfferAdded struct {
	OfferID   uint64         `json:"offer_id"`
	RequestID uint64         `json:"request_id"`
	Creator   common.Address `json:"creator"`
}

type OfferExtraAdded struct {
	OfferID uint64 `json:"offer_id"`
}

// InterledgerEventSending carries the outbound decision notification for
// the interledger peer. ID is process-monotonic.
type InterledgerEventSending struct {
	ID      uint64 `json:"id"`
	Payload []byte `json:"payload"`
}

type InterledgerEventAccepted struct {
	Nonce uint64 `json:"nonce"`
}

type InterledgerEventRejected struct {
	Nonce uint64 `json:"nonce"`
}

type OfferFulfilled struct {
	OfferID uint64 `json:"offer_id"`
	Token   []byte `json:"token"`
}

type OfferClaimable struct {
	OfferID uint64 `json:"offer_id"`
}

type RequestClaimable struct {
	RequestID uint64   `json:"request_id"`
	Winners   []uint64 `json:"winners"`
}

type TradeSettled struct {
	RequestID uint64 `json:"request_id"`
	OfferID   uint64 `json:"offer_id"`
}

type PaymentCashedOut struct {
	OfferID uint64         `json:"offer_id"`
	To      common.Address `json:"to"`
	Amount  uint64         `json:"amount"`
}

type AccessTokensReset struct{}

func (RequestAdded) Kind() string             { return "request_added" }
func (RequestExtraAdded) Kind() string        { return "request_extra_added" }
func (RequestClosedEvent) Kind() string       { return "request_closed" }
func (RequestDeletedEvent) Kind() string      { return "request_deleted" }
func (RequestDecided) Kind() string           { return "request_decided" }
func (OfferAdded) Kind() string               { return "offer_added" }
func (OfferExtraAdded) Kind() string          { return "offer_extra_added" }
func (InterledgerEventSending) Kind() string  { return "interledger_event_sending" }
func (InterledgerEventAccepted) Kind() string { return "interledger_event_accepted" }
func (InterledgerEventRejected) Kind() string { return "interledger_event_rejected" }
func (OfferFulfilled) Kind() string           { return "offer_fulfilled" }
func (OfferClaimable) Kind() string           { return "offer_claimable" }
func (RequestClaimable) Kind() string         { return "request_claimable" }
func (TradeSettled) Kind() string             { return "trade_settled" }
func (PaymentCashedOut) Kind() string         { return "payment_cashed_out" }
func (AccessTokensReset) Kind() string        { return "access_tokens_reset" }

// MultiSink fans an event out to several sinks in order.
type MultiSink []EventSink

func (m MultiSink) Emit(ctx context.Context, ev Event) {
	for _, s := range m {
		s.Emit(ctx, ev)
	}
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) {}

// Collector is an EventSink that records events for inspection. Used by
// tests and by the in-process interledger peer of the demo tooling.
type Collector struct {
	Events []Event
}

func (c *Collector) Emit(_ context.Context, ev Event) {
	c.Events = append(c.Events, ev)
}

// ByKind returns the recorded events with the given kind.
func (c *Collector) ByKind(kind string) []Event {
	var out []Event
	for _, ev := range c.Events {
		if ev.Kind() == kind {
			out = append(out, ev)
		}
	}
	return out
}
