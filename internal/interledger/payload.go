// Package interledger implements the wire formats of the cross-ledger
// event protocol: the outbound decision notification and the inbound
// fulfillment payload. Encoding and decoding are pure; dispatching the
// decoded content is the marketplace service's job.
package interledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// wordSize is the width of every fixed field on the wire: length
// prefixes, offer IDs and key material are all 32-byte big-endian words.
const wordSize = 32

var (
	ErrEmptyPayload     = errors.New("interledger payload is empty")
	ErrMalformedPayload = errors.New("interledger payload is malformed")
)

// Entry is one (offer, access token) pair of an inbound fulfillment
// payload.
type Entry struct {
	OfferID uint64
	Token   []byte
}

// DecodePayload parses an inbound payload: per entry, a 32-byte
// big-endian length followed by that many bytes of a big-endian offer
// ID, then a 32-byte length followed by the opaque token bytes. Entries
// concatenate with no separator; trailing bytes are an error.
func DecodePayload(payload []byte) ([]Entry, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}

	var entries []Entry
	rest := payload
	for len(rest) > 0 {
		idBytes, tail, err := readField(rest)
		if err != nil {
			return nil, err
		}
		tokenBytes, tail, err := readField(tail)
		if err != nil {
			return nil, err
		}

		id := new(big.Int).SetBytes(idBytes)
		if !id.IsUint64() {
			return nil, fmt.Errorf("%w: offer id out of range", ErrMalformedPayload)
		}
		entries = append(entries, Entry{
			OfferID: id.Uint64(),
			Token:   tokenBytes,
		})
		rest = tail
	}
	return entries, nil
}

func readField(b []byte) ([]byte, []byte, error) {
	if len(b) < wordSize {
		return nil, nil, fmt.Errorf("%w: truncated length prefix", ErrMalformedPayload)
	}
	length := new(big.Int).SetBytes(b[:wordSize])
	if !length.IsUint64() || length.Uint64() > uint64(len(b)-wordSize) {
		return nil, nil, fmt.Errorf("%w: field length exceeds payload", ErrMalformedPayload)
	}
	n := int(length.Uint64())
	return b[wordSize : wordSize+n], b[wordSize+n:], nil
}

// EncodePayload builds an inbound-style payload from entries. The
// settlement peer uses the same framing; this side of the codec exists
// for the demo peer and for round-trip tests.
func EncodePayload(entries []Entry) []byte {
	var out []byte
	for _, e := range entries {
		id := make([]byte, wordSize)
		binary.BigEndian.PutUint64(id[wordSize-8:], e.OfferID)
		out = appendField(out, id)
		out = appendField(out, e.Token)
	}
	return out
}

func appendField(out, field []byte) []byte {
	length := make([]byte, wordSize)
	binary.BigEndian.PutUint64(length[wordSize-8:], uint64(len(field)))
	out = append(out, length...)
	return append(out, field...)
}

// Winner is one accepted offer in an outbound decision notification.
// DID is the offerer's destination identifier; AuthenticationKey is
// carried only when the offerer supplied one.
type Winner struct {
	OfferID           uint64
	DID               common.Hash
	AuthenticationKey *common.Hash
}

// EncodeDecision serializes the winners of a decided request: per
// winner, a presence flag byte for the authentication key, the offer ID
// as a 32-byte word, the DID word and, when flagged, the key word.
func EncodeDecision(winners []Winner) []byte {
	var out []byte
	for _, w := range winners {
		flag := byte(0)
		if w.AuthenticationKey != nil {
			flag = 1
		}
		out = append(out, flag)

		id := make([]byte, wordSize)
		binary.BigEndian.PutUint64(id[wordSize-8:], w.OfferID)
		out = append(out, id...)
		out = append(out, w.DID.Bytes()...)
		if w.AuthenticationKey != nil {
			out = append(out, w.AuthenticationKey.Bytes()...)
		}
	}
	return out
}

// DecodeDecision is the inverse of EncodeDecision, used by the demo
// settlement peer to act on outbound notifications.
func DecodeDecision(payload []byte) ([]Winner, error) {
	var winners []Winner
	rest := payload
	for len(rest) > 0 {
		if len(rest) < 1+2*wordSize {
			return nil, fmt.Errorf("%w: truncated winner entry", ErrMalformedPayload)
		}
		flag := rest[0]
		if flag > 1 {
			return nil, fmt.Errorf("%w: bad presence flag %d", ErrMalformedPayload, flag)
		}

		id := new(big.Int).SetBytes(rest[1 : 1+wordSize])
		if !id.IsUint64() {
			return nil, fmt.Errorf("%w: offer id out of range", ErrMalformedPayload)
		}
		w := Winner{
			OfferID: id.Uint64(),
			DID:     common.BytesToHash(rest[1+wordSize : 1+2*wordSize]),
		}
		rest = rest[1+2*wordSize:]

		if flag == 1 {
			if len(rest) < wordSize {
				return nil, fmt.Errorf("%w: truncated authentication key", ErrMalformedPayload)
			}
			key := common.BytesToHash(rest[:wordSize])
			w.AuthenticationKey = &key
			rest = rest[wordSize:]
		}
		winners = append(winners, w)
	}
	return winners, nil
}
