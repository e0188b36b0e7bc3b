// Package accesstoken verifies the one-time authorization tokens that
// gate request creation. A token binds (operation, caller, marketplace)
// together with a random nonce, signed off-band by a marketplace
// manager; the digest scheme matches the ledger platform's signed
// message convention so existing issuer tooling keeps working.
package accesstoken

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrAccessDenied  = errors.New("access token invalid")
	ErrTokenReplayed = errors.New("access token already used")
)

// messagePrefix is prepended before hashing. 76 is the byte length of
// nonce(32) + selector(4) + caller(20) + target(20).
const messagePrefix = "\x19Ethereum Signed Message:\n76"

// Selector identifies the gated operation, as the first four bytes of
// the keccak hash of its name.
type Selector [4]byte

func OperationSelector(name string) Selector {
	var sel Selector
	copy(sel[:], crypto.Keccak256([]byte(name)))
	return sel
}

// Token is a single-use credential. Nonce is the replay guard; Digest
// must equal the hash of the signed message; Signature is a 65-byte
// recoverable ECDSA signature over that digest.
type Token struct {
	Digest    common.Hash
	Signature []byte
	Nonce     [32]byte
}

// NonceStore records spent nonces. Spend returns false when the nonce
// was already present. Reset clears the whole set.
type NonceStore interface {
	Spend(ctx context.Context, nonce [32]byte) (bool, error)
	Reset(ctx context.Context) error
}

// Authorizer validates tokens against the manager set of one
// marketplace instance. The spent-nonce store is passed in by handle so
// deployments can choose durable or in-memory replay state.
type Authorizer struct {
	target   common.Address
	managers map[common.Address]bool
	nonces   NonceStore
}

func New(target common.Address, managers []common.Address, nonces NonceStore) *Authorizer {
	set := make(map[common.Address]bool, len(managers))
	for _, m := range managers {
		set[m] = true
	}
	return &Authorizer{
		target:   target,
		managers: set,
		nonces:   nonces,
	}
}

func (a *Authorizer) IsManager(addr common.Address) bool {
	return a.managers[addr]
}

// Authorize accepts the token iff its digest matches the expected
// message for (selector, caller, target), the signature recovers to a
// manager, and the nonce is unspent. The nonce is spent on acceptance.
func (a *Authorizer) Authorize(ctx context.Context, tok Token, sel Selector, caller common.Address) error {
	digest := messageDigest(tok.Nonce, sel, caller, a.target)
	if digest != tok.Digest {
		return ErrAccessDenied
	}

	signer, err := recoverSigner(digest, tok.Signature)
	if err != nil {
		return ErrAccessDenied
	}
	if !a.managers[signer] {
		return ErrAccessDenied
	}

	fresh, err := a.nonces.Spend(ctx, tok.Nonce)
	if err != nil {
		return fmt.Errorf("nonce store: %w", err)
	}
	if !fresh {
		return ErrTokenReplayed
	}
	return nil
}

// Reset clears the spent-nonce set. Manager-only: issued tokens become
// valid again, so this is for key rotation and test environments.
func (a *Authorizer) Reset(ctx context.Context, caller common.Address) error {
	if !a.managers[caller] {
		return ErrAccessDenied
	}
	if err := a.nonces.Reset(ctx); err != nil {
		return fmt.Errorf("nonce store: %w", err)
	}
	return nil
}

func messageDigest(nonce [32]byte, sel Selector, caller, target common.Address) common.Hash {
	return common.BytesToHash(crypto.Keccak256(
		[]byte(messagePrefix),
		nonce[:],
		sel[:],
		caller.Bytes(),
		target.Bytes(),
	))
}

func recoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes", crypto.SignatureLength)
	}
	// Issuers may use either the raw recovery id or the legacy 27/28.
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Issue builds a token for caller to invoke the operation identified by
// sel on the marketplace at target. The signer must be a manager for
// the token to be accepted. Used by the demo issuer and tests; the
// production authorization backend signs with the same scheme.
func Issue(signer *ecdsa.PrivateKey, sel Selector, caller, target common.Address) (Token, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return Token{}, fmt.Errorf("nonce: %w", err)
	}

	digest := messageDigest(nonce, sel, caller, target)
	sig, err := crypto.Sign(digest.Bytes(), signer)
	if err != nil {
		return Token{}, fmt.Errorf("sign: %w", err)
	}
	sig[64] += 27

	return Token{
		Digest:    digest,
		Signature: sig,
		Nonce:     nonce,
	}, nil
}
