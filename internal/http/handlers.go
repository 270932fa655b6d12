package http

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/toshi-app/toshi-client/internal/contacts"
	"github.com/toshi-app/toshi-client/internal/exchangerate"
	"github.com/toshi-app/toshi-client/internal/kvstore"
	"github.com/toshi-app/toshi-client/internal/messaging"
	"github.com/toshi-app/toshi-client/internal/profile"
	"github.com/toshi-app/toshi-client/internal/scanner"
	"github.com/toshi-app/toshi-client/internal/sound"
	"github.com/toshi-app/toshi-client/internal/token"
	"github.com/toshi-app/toshi-client/internal/txservice"
)

type Deps struct {
	WalletAddress string
	Balances      token.Fetcher
	Rates         exchangerate.Source
	Contacts      kvstore.Store
	Messaging     *messaging.Storage
	Sounds        *sound.Recorder
	Flow          *scanner.Flow
	Events        *Events
}

// maxScreens bounds the profile screens kept between requests.
const maxScreens = 64

type Handler struct {
	deps Deps

	mu      sync.Mutex
	screens map[string]*profile.Screen
	order   []string // screen addresses, oldest first
}

func NewHandler(deps Deps) (*Handler, error) {
	if deps.Contacts == nil || deps.Messaging == nil || deps.Flow == nil || deps.Events == nil {
		return nil, errors.New("http: contacts, messaging, flow and events are required")
	}
	if deps.Sounds == nil {
		deps.Sounds = &sound.Recorder{}
	}
	return &Handler{deps: deps, screens: map[string]*profile.Screen{}}, nil
}

// -------- DTOs --------

type tokenRes struct {
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	Kind            string `json:"kind"`
	Value           string `json:"value"`
	Display         string `json:"display_value"`
	Decimals        int    `json:"decimals"`
	ContractAddress string `json:"contract_address"`
	Icon            string `json:"icon,omitempty"`
	Fiat            string `json:"fiat,omitempty"`
}

type captureReq struct {
	Payload string `json:"payload" binding:"required"`
}

type paymentFailedReq struct {
	Error  string             `json:"error"`
	Result txservice.Response `json:"result"`
}

type outcomeRes struct {
	Status   string             `json:"status"`
	State    string             `json:"state"`
	Request  *scanner.Request   `json:"request,omitempty"`
	Response txservice.Response `json:"response,omitempty"`
	Error    string             `json:"error,omitempty"`
}

type stateRes struct {
	State   string           `json:"state"`
	Pending *scanner.Request `json:"pending,omitempty"`
}

type eventsRes struct {
	Events []Event      `json:"events"`
	Sounds []sound.Type `json:"sounds"`
}

func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// GET /api/wallet/tokens
func (h *Handler) WalletTokens(c *gin.Context) {
	if h.deps.Balances == nil || h.deps.WalletAddress == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "wallet not configured"})
		return
	}

	list, err := token.Portfolio(c.Request.Context(), h.deps.Balances, h.deps.WalletAddress)
	if err != nil {
		log.Error("load tokens failed", "address", h.deps.WalletAddress, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	items := list.Items()
	out := make([]tokenRes, 0, len(items))
	for _, t := range items {
		r := tokenRes{
			Name:            t.Name,
			Symbol:          t.Symbol,
			Kind:            t.Kind().String(),
			Value:           t.RawValue(),
			Display:         t.DisplayValue(),
			Decimals:        t.Decimals,
			ContractAddress: t.ContractAddress,
			Icon:            t.Icon,
		}
		if h.deps.Rates != nil {
			if fiat, ok := t.ConvertToFiat(h.deps.Rates); ok {
				r.Fiat = fiat
			}
		}
		out = append(out, r)
	}
	c.JSON(http.StatusOK, gin.H{"tokens": out})
}

// GET /api/contacts
func (h *Handler) ListContacts(c *gin.Context) {
	ctx := c.Request.Context()
	keys, err := h.deps.Contacts.Keys(ctx, contacts.CollectionKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]contacts.Contact, 0, len(keys))
	for _, k := range keys {
		b, ok, err := h.deps.Contacts.Object(ctx, k, contacts.CollectionKey)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !ok {
			continue
		}
		ct, err := contacts.Decode(b)
		if err != nil {
			log.Warn("skipping undecodable contact", "key", k, "error", err)
			continue
		}
		out = append(out, ct)
	}
	c.JSON(http.StatusOK, gin.H{"contacts": out})
}

// GET /api/threads
func (h *Handler) ListThreads(c *gin.Context) {
	threads, err := h.deps.Messaging.Threads(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if threads == nil {
		threads = []messaging.Thread{}
	}
	c.JSON(http.StatusOK, gin.H{"threads": threads})
}

// POST /api/profile
func (h *Handler) ShowProfile(c *gin.Context) {
	s, ok := h.bindScreen(c)
	if !ok {
		return
	}
	v, err := s.Appear(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, v)
}

// POST /api/profile/add
func (h *Handler) AddContact(c *gin.Context) {
	s, ok := h.bindScreen(c)
	if !ok {
		return
	}
	btn, err := s.AddContact(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"button": btn})
}

// POST /api/profile/message
func (h *Handler) MessageContact(c *gin.Context) {
	s, ok := h.bindScreen(c)
	if !ok {
		return
	}
	if err := s.MessageContact(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": s.Contact().Address})
}

// GET /api/profile/:address/qr
func (h *Handler) ProfileQRCode(c *gin.Context) {
	s, ok, err := h.storedScreen(c.Request.Context(), c.Param("address"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown contact"})
		return
	}

	png, err := s.QRCode()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.DisplayQRCode()
	c.Data(http.StatusOK, "image/png", png)
}

// bindScreen decodes a contact body and returns the screen showing it.
func (h *Handler) bindScreen(c *gin.Context) (*profile.Screen, bool) {
	var ct contacts.Contact
	if err := c.ShouldBindJSON(&ct); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	s, err := h.screen(ct)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return s, true
}

func (h *Handler) screen(ct contacts.Contact) (*profile.Screen, error) {
	ct = ct.Normalized()
	if err := ct.Validate(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.screens[ct.Address]; ok {
		return s, s.Load(ct)
	}
	s, err := profile.NewScreen(ct, profile.Deps{
		Contacts:   h.deps.Contacts,
		Recipients: h.deps.Messaging,
		Sounds:     h.deps.Sounds,
		Navigator:  h.deps.Events,
	})
	if err != nil {
		return nil, err
	}
	if len(h.order) >= maxScreens {
		delete(h.screens, h.order[0])
		h.order = h.order[1:]
	}
	h.screens[ct.Address] = s
	h.order = append(h.order, ct.Address)
	return s, nil
}

// storedScreen opens a screen for a contact already in the store.
func (h *Handler) storedScreen(ctx context.Context, address string) (*profile.Screen, bool, error) {
	address = contacts.NormalizeAddress(address)
	h.mu.Lock()
	s, ok := h.screens[address]
	h.mu.Unlock()
	if ok {
		return s, true, nil
	}

	b, found, err := h.deps.Contacts.Object(ctx, address, contacts.CollectionKey)
	if err != nil || !found {
		return nil, false, err
	}
	ct, err := contacts.Decode(b)
	if err != nil {
		return nil, false, err
	}
	s, err = h.screen(ct)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// POST /api/scanner/capture
func (h *Handler) ScannerCapture(c *gin.Context) {
	var req captureReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.deps.Flow.Capture(req.Payload)
	h.writeOutcome(c, out, err)
}

// POST /api/scanner/approve
func (h *Handler) ScannerApprove(c *gin.Context) {
	// The submission outlives the request: the flow cannot be aborted once
	// a transaction is in flight.
	out, err := h.deps.Flow.Approve(context.WithoutCancel(c.Request.Context()))
	h.writeOutcome(c, out, err)
}

// POST /api/scanner/decline
func (h *Handler) ScannerDecline(c *gin.Context) {
	out, err := h.deps.Flow.Decline()
	h.writeOutcome(c, out, err)
}

// POST /api/scanner/dismiss
func (h *Handler) ScannerDismiss(c *gin.Context) {
	if err := h.deps.Flow.Dismiss(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	h.ScannerState(c)
}

// POST /api/scanner/failed
func (h *Handler) ScannerPaymentFailed(c *gin.Context) {
	var req paymentFailedReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var err error
	if req.Error != "" {
		err = errors.New(req.Error)
	}
	h.deps.Flow.PaymentFailed(err, req.Result)
	h.ScannerState(c)
}

// GET /api/scanner/state
func (h *Handler) ScannerState(c *gin.Context) {
	res := stateRes{State: h.deps.Flow.State().String()}
	if p, ok := h.deps.Flow.Pending(); ok {
		res.Pending = &p
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) writeOutcome(c *gin.Context, out scanner.Outcome, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, scanner.ErrBusy) || errors.Is(err, scanner.ErrNothingPending) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error(), "state": h.deps.Flow.State().String()})
		return
	}

	res := outcomeRes{
		Status:   out.Status.String(),
		State:    h.deps.Flow.State().String(),
		Request:  out.Request,
		Response: out.Response,
	}
	if out.Err != nil {
		res.Error = out.Err.Error()
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/events
func (h *Handler) Events(c *gin.Context) {
	c.JSON(http.StatusOK, eventsRes{
		Events: h.deps.Events.Drain(),
		Sounds: append([]sound.Type{}, h.deps.Sounds.Drain()...),
	})
}
