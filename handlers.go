package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/smaug-iot/marketplace/internal/accesstoken"
	"github.com/smaug-iot/marketplace/internal/marketplace"
)

type handlers struct {
	config Config
	svc    *marketplace.Service
}

var ErrLogin = fmt.Errorf("must provide X-Account header with a hex address")

// callerAccount reads the calling account from the X-Account header.
// Demo-grade: the deployment in front of this API is expected to have
// authenticated the caller already.
func callerAccount(r *http.Request) (common.Address, error) {
	acct := r.Header.Get("X-Account")
	if !common.IsHexAddress(acct) {
		return common.Address{}, ErrLogin
	}
	return common.HexToAddress(acct), nil
}

func statusToHTTP(s marketplace.Status) int {
	switch s {
	case marketplace.StatusAccessDenied:
		return http.StatusForbidden
	case marketplace.StatusUndefinedID, marketplace.StatusPaymentNotFound:
		return http.StatusNotFound
	case marketplace.StatusRequestNotOpen,
		marketplace.StatusRequestNotPending,
		marketplace.StatusOfferNotPending,
		marketplace.StatusRequestNotClosed,
		marketplace.StatusPaymentNotResolved,
		marketplace.StatusAlreadySettled,
		marketplace.StatusTokenReplayed:
		return http.StatusConflict
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	jsonb, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal resp: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(jsonb)
}

// writeOpError renders a marketplace rejection as its numeric status
// code plus text. Errors that are not marketplace rejections are
// internal.
func writeOpError(w http.ResponseWriter, err error) {
	var me *marketplace.Error
	if !errors.As(err, &me) {
		log.Printf("err: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, statusToHTTP(me.Status), map[string]any{
		"status": int(me.Status),
		"error":  me.Status.String(),
	})
}

func pathID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
}

// handleCreateRequest creates a pending request from an access token.
func (h *handlers) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, err := callerAccount(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var body struct {
		Deadline int64 `json:"deadline"` // unix seconds
		Token    struct {
			Digest    string `json:"digest"`
			Signature string `json:"signature"`
			Nonce     string `json:"nonce"`
		} `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "expected JSON payload", http.StatusBadRequest)
		return
	}

	tok := accesstoken.Token{
		Digest:    common.HexToHash(body.Token.Digest),
		Signature: common.FromHex(body.Token.Signature),
		Nonce:     common.HexToHash(body.Token.Nonce),
	}

	id, err := h.svc.SubmitAuthorisedRequest(ctx, caller, tok, time.Unix(body.Deadline, 0))
	if err != nil {
		log.Printf("err: svc.SubmitAuthorisedRequest: %v", err)
		writeOpError(w, err)
		return
	}

	requestCounter.Inc()
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": 0})
}

// handleSubmitRequestExtra attaches the rental terms and opens the
// request for offers.
func (h *handlers) handleSubmitRequestExtra(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, err := callerAccount(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return
	}

	var body struct {
		StartOfRent              int64                     `json:"start_of_rent"` // unix seconds
		DurationMinutes          uint64                    `json:"duration_minutes"`
		MinAuctionPricePerMinute uint64                    `json:"min_auction_price_per_minute"`
		Tiers                    []marketplace.PricingTier `json:"tiers"`
		LockerID                 string                    `json:"locker_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "expected JSON payload", http.StatusBadRequest)
		return
	}

	extra := marketplace.RequestExtra{
		StartOfRent:              time.Unix(body.StartOfRent, 0),
		DurationMinutes:          body.DurationMinutes,
		MinAuctionPricePerMinute: body.MinAuctionPricePerMinute,
		Tiers:                    body.Tiers,
		LockerID:                 common.HexToHash(body.LockerID),
	}
	if err := h.svc.SubmitRequestExtra(ctx, caller, id, extra); err != nil {
		log.Printf("err: svc.SubmitRequestExtra: %v", err)
		writeOpError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": 0})
}

func (h *handlers) handleCloseRequest(w http.ResponseWriter, r *http.Request) {
	h.requestLifecycle(w, r, h.svc.CloseRequest)
}

func (h *handlers) handleDeleteRequest(w http.ResponseWriter, r *http.Request) {
	h.requestLifecycle(w, r, h.svc.DeleteRequest)
}

func (h *handlers) requestLifecycle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, caller common.Address, requestID uint64) error) {
	ctx := r.Context()

	caller, err := callerAccount(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return
	}

	if err := op(ctx, caller, id); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": 0})
}

// handleDecideRequest records the creator's choice of winning offers.
func (h *handlers) handleDecideRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, err := callerAccount(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return
	}

	var body struct {
		Winners []uint64 `json:"winners"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "expected JSON payload", http.StatusBadRequest)
		return
	}

	if err := h.svc.DecideRequest(ctx, caller, id, body.Winners); err != nil {
		log.Printf("err: svc.DecideRequest: %v", err)
		writeOpError(w, err)
		return
	}

	decisionCounter.Inc()
	writeJSON(w, http.StatusOK, map[string]any{"status": 0})
}

func (h *handlers) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return
	}

	req, err := h.svc.Request(id)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *handlers) handleGetRequestExtra(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return
	}

	req, err := h.svc.Request(id)
	if err != nil {
		writeOpError(w, err)
		return
	}
	if req.Extra == nil {
		writeOpError(w, marketplace.ErrRequestNotOpen)
		return
	}
	writeJSON(w, http.StatusOK, req.Extra)
}

func (h *handlers) handleOpenRequests(w http.ResponseWriter, r *http.Request) {
	ids := h.svc.RequestsByStage(marketplace.RequestOpen)
	writeJSON(w, http.StatusOK, map[string]any{"ids": ids})
}

func (h *handlers) handleClosedRequests(w http.ResponseWriter, r *http.Request) {
	ids := h.svc.RequestsByStage(marketplace.RequestClosed)
	writeJSON(w, http.StatusOK, map[string]any{"ids": ids})
}

func (h *handlers) handleRequestOffers(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return
	}

	ids, err := h.svc.RequestOffers(id)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ids": ids})
}

func (h *handlers) handleRequestDecision(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return
	}

	decided, winners, err := h.svc.Decision(id)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"decided": decided, "winners": winners})
}

// handleSubmitOffer opens a pending offer against a request.
func (h *handlers) handleSubmitOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, err := callerAccount(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return
	}

	offerID, err := h.svc.SubmitOffer(ctx, caller, id)
	if err != nil {
		log.Printf("err: svc.SubmitOffer: %v", err)
		writeOpError(w, err)
		return
	}

	offerCounter.Inc()
	writeJSON(w, http.StatusOK, map[string]any{"id": offerID, "status": 0})
}

// handleSubmitOfferExtra attaches terms to an offer and escrows its
// deposit.
func (h *handlers) handleSubmitOfferExtra(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, err := callerAccount(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid offer id", http.StatusBadRequest)
		return
	}

	var body struct {
		StartOfRent       int64  `json:"start_of_rent"` // unix seconds
		DurationMinutes   uint64 `json:"duration_minutes"`
		Type              int    `json:"type"` // 0 auction, 1 instant rent
		Amount            uint64 `json:"amount"`
		EncryptionKey     string `json:"encryption_key"`
		AuthenticationKey string `json:"authentication_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "expected JSON payload", http.StatusBadRequest)
		return
	}

	extra := marketplace.OfferExtra{
		StartOfRent:     time.Unix(body.StartOfRent, 0),
		DurationMinutes: body.DurationMinutes,
		Type:            marketplace.OfferType(body.Type),
		Amount:          body.Amount,
		EncryptionKey:   common.HexToHash(body.EncryptionKey),
	}
	if body.AuthenticationKey != "" {
		k := common.HexToHash(body.AuthenticationKey)
		extra.AuthenticationKey = &k
	}

	if err := h.svc.SubmitOfferExtra(ctx, caller, id, extra); err != nil {
		log.Printf("err: svc.SubmitOfferExtra: %v", err)
		writeOpError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": 0})
}

func (h *handlers) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid offer id", http.StatusBadRequest)
		return
	}

	offer, err := h.svc.Offer(id)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

func (h *handlers) handleGetOfferExtra(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid offer id", http.StatusBadRequest)
		return
	}

	offer, err := h.svc.Offer(id)
	if err != nil {
		writeOpError(w, err)
		return
	}
	if offer.Extra == nil {
		writeOpError(w, marketplace.ErrOfferNotPending)
		return
	}
	writeJSON(w, http.StatusOK, offer.Extra)
}

// handleWithdraw pays out the escrowed deposit behind an offer.
func (h *handlers) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, err := callerAccount(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid offer id", http.StatusBadRequest)
		return
	}

	amount, err := h.svc.Withdraw(ctx, caller, id)
	if err != nil {
		log.Printf("err: svc.Withdraw: %v", err)
		writeOpError(w, err)
		return
	}

	withdrawalCounter.Inc()
	writeJSON(w, http.StatusOK, map[string]any{"amount": amount, "status": 0})
}

// handleSettleTrade records the offerer's settlement acknowledgement.
func (h *handlers) handleSettleTrade(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, err := callerAccount(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var body struct {
		RequestID uint64 `json:"request_id"`
		OfferID   uint64 `json:"offer_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "expected JSON payload", http.StatusBadRequest)
		return
	}

	if err := h.svc.SettleTrade(ctx, caller, body.RequestID, body.OfferID); err != nil {
		log.Printf("err: svc.SettleTrade: %v", err)
		writeOpError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": 0})
}

// handleInterledgerReceive ingests a fulfillment callback from the
// settlement peer. The payload is the peer's binary framing, hex
// encoded.
func (h *handlers) handleInterledgerReceive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, err := callerAccount(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var body struct {
		Nonce uint64 `json:"nonce"`
		Data  string `json:"data"` // hex
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "expected JSON payload", http.StatusBadRequest)
		return
	}

	if err := h.svc.InterledgerReceive(ctx, caller, body.Nonce, common.FromHex(body.Data)); err != nil {
		log.Printf("err: svc.InterledgerReceive: nonce=%v err=%v", body.Nonce, err)
		interledgerCounter.WithLabelValues("rejected").Inc()
		writeOpError(w, err)
		return
	}

	interledgerCounter.WithLabelValues("accepted").Inc()
	writeJSON(w, http.StatusOK, map[string]any{"status": 0})
}

// handleResetAccessTokens clears the spent-token state. Manager-only.
func (h *handlers) handleResetAccessTokens(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, err := callerAccount(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	if err := h.svc.ResetAccessTokens(ctx, caller); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": 0})
}

func (h *handlers) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Info())
}
