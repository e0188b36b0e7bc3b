// Package notifier announces marketplace milestones on nostr so locker
// operators can follow trade progress without polling the API.
package notifier

import (
	"context"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/smaug-iot/marketplace/internal/marketplace"
)

func New(nsec string, relayURLs []string) *Notifier {
	_, sk, err := nip19.Decode(nsec)
	if err != nil {
		panic(fmt.Errorf("nip19 decode: %w", err))
	}
	privateKey := sk.(string)

	pubkey, err := nostr.GetPublicKey(privateKey)
	if err != nil {
		panic(fmt.Errorf("get pubkey: %w", err))
	}

	npub, err := nip19.EncodePublicKey(pubkey)
	if err != nil {
		panic(fmt.Errorf("encode pubkey: %w", err))
	}

	return &Notifier{
		relayURLs:  relayURLs,
		npub:       npub,
		pubkey:     pubkey,
		privateKey: privateKey,
	}
}

type Notifier struct {
	relayURLs                []string
	npub, pubkey, privateKey string
}

// Emit posts a note for the externally interesting milestones and
// ignores the bookkeeping events.
func (n *Notifier) Emit(ctx context.Context, ev marketplace.Event) {
	var content string
	switch e := ev.(type) {
	case marketplace.RequestExtraAdded:
		content = fmt.Sprintf("new locker rental request #%d is open for offers", e.RequestID)
	case marketplace.RequestDecided:
		content = fmt.Sprintf("rental request #%d decided with %d winning offer(s)", e.RequestID, len(e.Winners))
	case marketplace.RequestClaimable:
		content = fmt.Sprintf("rental request #%d fulfilled, deposits are claimable", e.RequestID)
	case marketplace.TradeSettled:
		content = fmt.Sprintf("trade settled for offer #%d on request #%d", e.OfferID, e.RequestID)
	default:
		return
	}

	n.Send(ctx, content)
}

func (n *Notifier) Send(ctx context.Context, content string) {
	event := n.newEvent(content)
	n.connectAndSend(ctx, event)
}

func (n *Notifier) newEvent(content string) nostr.Event {
	event := nostr.Event{
		PubKey:    n.pubkey,
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindTextNote,
		Tags:      nil,
		Content:   content,
	}
	event.Sign(n.privateKey)

	return event
}

func (n *Notifier) connectAndSend(ctx context.Context, event nostr.Event) {
	for _, url := range n.relayURLs {
		relay, err := nostr.RelayConnect(ctx, url)
		if err != nil {
			fmt.Println(err)
			continue
		}
		defer relay.Close()

		_, err = relay.Publish(ctx, event)
		if err != nil {
			fmt.Println(err)
			continue
		}
	}
}
