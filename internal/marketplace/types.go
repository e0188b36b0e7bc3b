package marketplace

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MarketplaceType identifies this marketplace flavor to external peers.
const MarketplaceType = "eu.sofie-iot.smaug-marketplace"

type RequestStage int

const (
	RequestPending RequestStage = iota
	RequestOpen
	RequestClosed
	RequestDeleted
)

func (s RequestStage) String() string {
	switch s {
	case RequestPending:
		return "pending"
	case RequestOpen:
		return "open"
	case RequestClosed:
		return "closed"
	case RequestDeleted:
		return "deleted"
	}
	return "unknown"
}

// PricingTier is one instant-rent price band. StartMinute is the offset,
// in minutes from the start of the rental window, at which PricePerMinute
// starts to apply.
type PricingTier struct {
	StartMinute    uint64 `json:"start_minute"`
	PricePerMinute uint64 `json:"price_per_minute"`
}

// RequestExtra is the rental advertisement attached to a request when it
// moves from pending to open. An empty Tiers list means the request is
// auction-only.
type RequestExtra struct {
	StartOfRent              time.Time     `json:"start_of_rent"`
	DurationMinutes          uint64        `json:"duration_minutes"`
	MinAuctionPricePerMinute uint64        `json:"min_auction_price_per_minute"`
	Tiers                    []PricingTier `json:"tiers,omitempty"`
	LockerID                 common.Hash   `json:"locker_id"`
}

type Request struct {
	ID       uint64         `json:"id"`
	Creator  common.Address `json:"creator"`
	Deadline time.Time      `json:"deadline"`
	Stage    RequestStage   `json:"stage"`
	Extra    *RequestExtra  `json:"extra,omitempty"`

	// Decision holds the accepted offer IDs once the request is decided.
	// A nil slice means undecided; a decided request may have zero winners.
	Decided  bool     `json:"decided"`
	Winners  []uint64 `json:"winners,omitempty"`
	OfferIDs []uint64 `json:"offer_ids,omitempty"`

	// Claimable is set by the interledger fulfillment round trip and
	// unlocks withdrawal of the winning deposits.
	Claimable bool `json:"claimable"`
}

type OfferType int

const (
	OfferAuction OfferType = iota
	OfferInstantRent
)

func (t OfferType) String() string {
	if t == OfferInstantRent {
		return "instant-rent"
	}
	return "auction"
}

type OfferStage int

const (
	OfferPending OfferStage = iota
	OfferWon
	OfferLost
)

func (s OfferStage) String() string {
	switch s {
	case OfferWon:
		return "won"
	case OfferLost:
		return "lost"
	}
	return "pending"
}

// Fulfillment tracks what the external settlement system reported for a
// winning offer: fulfilled offers got their access token delivered,
// claimable offers did not and their deposit becomes refundable.
type Fulfillment int

const (
	FulfillmentNone Fulfillment = iota
	FulfillmentFulfilled
	FulfillmentClaimable
)

func (f Fulfillment) String() string {
	switch f {
	case FulfillmentFulfilled:
		return "fulfilled"
	case FulfillmentClaimable:
		return "claimable"
	}
	return "none"
}

// OfferExtra is the terms attached to an offer. EncryptionKey doubles as
// the offerer's destination identifier (DID) in outbound interledger
// notifications; AuthenticationKey is optional.
type OfferExtra struct {
	StartOfRent       time.Time    `json:"start_of_rent"`
	DurationMinutes   uint64       `json:"duration_minutes"`
	Type              OfferType    `json:"type"`
	Amount            uint64       `json:"amount"`
	EncryptionKey     common.Hash  `json:"encryption_key"`
	AuthenticationKey *common.Hash `json:"authentication_key,omitempty"`
}

type Offer struct {
	ID        uint64         `json:"id"`
	RequestID uint64         `json:"request_id"`
	Creator   common.Address `json:"creator"`
	Stage     OfferStage     `json:"stage"`
	Extra     *OfferExtra    `json:"extra,omitempty"`

	Fulfillment Fulfillment `json:"fulfillment"`
	// AccessToken is the opaque credential delivered by the settlement
	// system when the offer is fulfilled.
	AccessToken []byte `json:"access_token,omitempty"`
	Settled     bool   `json:"settled"`
}

// MarketInfo is the static identity of the marketplace instance.
type MarketInfo struct {
	Owner common.Address `json:"owner"`
	Type  string         `json:"type"`
}
