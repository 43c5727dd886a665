package transport

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	apperrors "github.com/louisbranch/matchwarden/internal/platform/errors"
	"github.com/louisbranch/matchwarden/internal/services/relay/consensus"
	"github.com/louisbranch/matchwarden/internal/services/relay/loadout"
	"github.com/louisbranch/matchwarden/internal/services/relay/match"
)

// DefaultMinParticipants is the smallest match the create endpoint accepts.
const DefaultMinParticipants = 2

// Config wires a hub.
type Config struct {
	Registry *match.Registry
	// SharedSecret guards match creation. It is required.
	SharedSecret string
	// DefaultFraction applies to created matches that name no fraction. It is
	// also the lowest fraction a request may ask for.
	DefaultFraction float64
	// MinParticipants is the smallest participant count a request may ask for.
	MinParticipants int
	// AllowTestMode admits fixed minimums and test-mode matches.
	AllowTestMode bool
	Logf          func(string, ...any)
}

// Hub maps matches to their connected sockets.
type Hub struct {
	registry        *match.Registry
	secret          string
	defaultFraction float64
	minParticipants int
	allowTestMode   bool
	logf            func(string, ...any)
	upgrader        websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]*room
}

// NewHub validates cfg and returns a hub.
func NewHub(cfg Config) (*Hub, error) {
	if cfg.Registry == nil {
		return nil, errors.New("match registry is required")
	}
	if strings.TrimSpace(cfg.SharedSecret) == "" {
		return nil, errors.New("shared secret is required")
	}
	if cfg.DefaultFraction == 0 {
		cfg.DefaultFraction = match.DefaultConsensusFraction
	}
	if cfg.MinParticipants <= 0 {
		cfg.MinParticipants = DefaultMinParticipants
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	return &Hub{
		registry:        cfg.Registry,
		secret:          cfg.SharedSecret,
		defaultFraction: cfg.DefaultFraction,
		minParticipants: cfg.MinParticipants,
		allowTestMode:   cfg.AllowTestMode,
		logf:            cfg.Logf,
		upgrader: websocket.Upgrader{
			// Match clients are game binaries, not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		rooms: map[string]*room{},
	}, nil
}

// CreateMatch starts a session and the room that relays its events. The
// policy must stay within the hub's configured bounds.
func (h *Hub) CreateMatch(matchID string, policy match.Policy) (*match.Session, error) {
	if policy.ConsensusFraction == 0 && policy.FixedMinimum == 0 {
		policy.ConsensusFraction = h.defaultFraction
	}
	if err := h.admitPolicy(policy); err != nil {
		return nil, err
	}
	rm := &room{hub: h, clients: map[*client]struct{}{}}
	session, err := h.registry.Create(matchID, policy, rm)
	if err != nil {
		return nil, err
	}
	rm.session = session

	h.mu.Lock()
	h.rooms[session.ID] = rm
	h.mu.Unlock()
	h.logf("match created match_id=%s participants=%d minimum_agreeing=%d", session.ID, policy.Participants, session.Policy.MinimumAgreeing())
	return session, nil
}

func (h *Hub) admitPolicy(policy match.Policy) error {
	if policy.Participants < h.minParticipants {
		return fmt.Errorf("%w: at least %d participants required", match.ErrInvalidPolicy, h.minParticipants)
	}
	if !h.allowTestMode && (policy.TestMode || policy.FixedMinimum > 0) {
		return fmt.Errorf("%w: test mode and fixed minimums are disabled", match.ErrInvalidPolicy)
	}
	if policy.FixedMinimum == 0 && policy.ConsensusFraction < h.defaultFraction {
		return fmt.Errorf("%w: consensus fraction below %v", match.ErrInvalidPolicy, h.defaultFraction)
	}
	return nil
}

func (h *Hub) room(matchID string) (*room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rm, ok := h.rooms[matchID]
	if !ok {
		return nil, apperrors.New(apperrors.CodeNotFound, "match not found")
	}
	return rm, nil
}

// Session returns the running session for matchID.
func (h *Hub) Session(matchID string) (*match.Session, error) {
	rm, err := h.room(matchID)
	if err != nil {
		return nil, err
	}
	return rm.session, nil
}

// Len returns the number of running matches.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// retire forgets a finalized match. Connected sockets stay open until the
// clients hang up.
func (h *Hub) retire(matchID string) {
	h.mu.Lock()
	delete(h.rooms, matchID)
	h.mu.Unlock()
	h.registry.Remove(matchID)
}

// Close disconnects every socket and closes every session.
func (h *Hub) Close() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = map[string]*room{}
	h.mu.Unlock()
	for _, rm := range rooms {
		rm.closeClients()
	}
	h.registry.Close()
}

// room relays one session's events to its sockets.
type room struct {
	hub     *Hub
	session *match.Session

	mu      sync.Mutex
	clients map[*client]struct{}
}

var _ match.Events = (*room)(nil)

func (r *room) add(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c] = struct{}{}
}

func (r *room) remove(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c)
}

func (r *room) snapshot() []*client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*client, 0, len(r.clients))
	for c := range r.clients {
		out = append(out, c)
	}
	return out
}

func (r *room) broadcast(msg ServerMessage) {
	for _, c := range r.snapshot() {
		if err := c.send(msg); err != nil {
			r.hub.logf("websocket send failed match_id=%s type=%s err=%v", r.session.ID, msg.Type, err)
		}
	}
}

func (r *room) sendToSlot(slot int, msg ServerMessage) {
	for _, c := range r.snapshot() {
		if joined, ok := c.joinedSlot(); ok && joined == slot {
			if err := c.send(msg); err != nil {
				r.hub.logf("websocket send failed match_id=%s slot=%d type=%s err=%v", r.session.ID, slot, msg.Type, err)
			}
		}
	}
}

// Admit publishes the admitted loadout to every peer's simulation input.
func (r *room) Admit(slot int, playerID string, items []string) {
	r.broadcast(ServerMessage{Type: MessageAdmitted, MatchID: r.session.ID, Slot: slotRef(slot), PlayerID: playerID, Items: items})
}

// Reject tells the slot's socket why its loadout was refused.
func (r *room) Reject(slot int, playerID string, reason error) {
	msg := ServerMessage{Type: MessageRejected, MatchID: r.session.ID, Slot: slotRef(slot), PlayerID: playerID, Code: errorCode(reason)}
	if reason != nil {
		msg.Error = reason.Error()
	}
	var domainErr *apperrors.Error
	if errors.As(reason, &domainErr) {
		if unowned := domainErr.Metadata["unowned_items"]; unowned != "" {
			msg.UnownedItems = strings.Split(unowned, ",")
		}
	}
	r.sendToSlot(slot, msg)
}

// Finalized publishes the outcome and retires the match.
func (r *room) Finalized(outcome match.Outcome) {
	r.broadcast(ServerMessage{Type: MessageFinalized, MatchID: r.session.ID, Outcome: &outcome})
	go r.hub.retire(r.session.ID)
}

func (r *room) closeClients() {
	for _, c := range r.snapshot() {
		c.close()
	}
}

// errorCode names err for clients. Sentinels from the relay packages count as
// validation failures.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		return string(domainErr.Code)
	}
	switch {
	case errors.Is(err, match.ErrMatchNotFound):
		return string(apperrors.CodeNotFound)
	case errors.Is(err, match.ErrUnauthorized):
		return string(apperrors.CodePermissionDenied)
	case errors.Is(err, match.ErrSlotOutOfRange),
		errors.Is(err, match.ErrSlotTaken),
		errors.Is(err, match.ErrAlreadyJoined),
		errors.Is(err, match.ErrNotJoined),
		errors.Is(err, match.ErrInvalidPolicy),
		errors.Is(err, match.ErrMatchExists),
		errors.Is(err, loadout.ErrInvalidLoadout),
		errors.Is(err, loadout.ErrPastCutoff),
		errors.Is(err, loadout.ErrValidatorClosed),
		errors.Is(err, consensus.ErrInvalidSubmission),
		errors.Is(err, consensus.ErrAlreadySubmitted),
		errors.Is(err, consensus.ErrFinalized):
		return string(apperrors.CodeValidationFailed)
	default:
		return string(apperrors.CodeUnknown)
	}
}
