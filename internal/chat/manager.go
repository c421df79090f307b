package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glesp/smart-auto-trader/internal/domain"
	"github.com/glesp/smart-auto-trader/internal/store"
	"github.com/google/uuid"
)

// ManagerConfig holds the dialogue orchestration knobs.
type ManagerConfig struct {
	// SessionWindow is how long a session stays reusable after its last
	// interaction. An older session is never reloaded.
	SessionWindow time.Duration
	// MaxResults caps how many vehicles one recommendation turn returns.
	MaxResults int
	// HistoryTurns is how many prior exchanges accompany each extraction
	// call for disambiguation.
	HistoryTurns int
}

// DefaultManagerConfig returns default orchestration settings.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		SessionWindow: 30 * time.Minute,
		MaxResults:    5,
		HistoryTurns:  5,
	}
}

// DialogueManager is the public entry point of the negotiation engine. One
// call to ProcessMessage is one turn: load session, extract, merge, decide,
// respond, persist. Turns from the same user are serialized; turns from
// different users run in parallel.
type DialogueManager struct {
	repo     store.Repository
	extract  Extractor
	gateway  RecommendationGateway
	merger   CriteriaMerger
	policy   *ClarificationPolicy
	codec    ContextCodec
	composer ResponseComposer
	cfg      ManagerConfig
	logger   *slog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewDialogueManager wires the engine together.
func NewDialogueManager(repo store.Repository, extract Extractor, gateway RecommendationGateway, policy *ClarificationPolicy, cfg ManagerConfig, logger *slog.Logger) *DialogueManager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SessionWindow <= 0 {
		cfg.SessionWindow = DefaultManagerConfig().SessionWindow
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultManagerConfig().MaxResults
	}
	if policy == nil {
		policy = NewClarificationPolicy(0)
	}
	return &DialogueManager{
		repo:    repo,
		extract: extract,
		gateway: gateway,
		policy:  policy,
		cfg:     cfg,
		logger:  logger,
		locks:   make(map[string]*sync.Mutex),
	}
}

// userLock returns the per-user mutex guarding the session
// read-merge-write critical section.
func (m *DialogueManager) userLock(userID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	mu, ok := m.locks[userID]
	if !ok {
		mu = &sync.Mutex{}
		m.locks[userID] = mu
	}
	return mu
}

// ProcessMessage runs one chat turn. It never returns an error to the
// transport layer: every failure mode degrades to a polite response, and a
// failed turn leaves the persisted state untouched.
func (m *DialogueManager) ProcessMessage(ctx context.Context, userID, message string) (resp *ChatResponse) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("chat turn panicked", "user_id", userID, "panic", r)
			resp = &ChatResponse{
				Message:             apologyExtraction,
				RecommendedVehicles: []domain.Vehicle{},
				Parameters:          domain.SearchCriteria{},
			}
		}
	}()

	if userID == "" {
		return &ChatResponse{
			Message:             apologyUnknownUser,
			RecommendedVehicles: []domain.Vehicle{},
			Parameters:          domain.SearchCriteria{},
		}
	}

	mu := m.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	return m.processTurn(ctx, userID, message)
}

func (m *DialogueManager) processTurn(ctx context.Context, userID, message string) *ChatResponse {
	session, state := m.loadOrCreateSession(ctx, userID)
	expectedInteraction := session.LastInteractionAt

	history := m.recentHistory(ctx, session.ID)

	extraction, err := m.extract.Extract(ctx, message, history)
	if err != nil {
		// The turn is a no-op against state: respond apologetically, record
		// the exchange, persist nothing.
		m.logger.Warn("extraction failed, turn dropped", "user_id", userID, "error", err)
		resp := &ChatResponse{
			Message:             apologyExtraction,
			RecommendedVehicles: []domain.Vehicle{},
			Parameters:          state.Working(),
			ConversationID:      session.ID,
		}
		m.appendTurn(ctx, session, userID, message, resp.Message)
		return resp
	}

	merged, added := m.merger.Merge(state, extraction)
	merged.MessageCount++

	decision := m.policy.Decide(merged, extraction, added)

	var resp *ChatResponse
	switch decision.Kind {
	case DecideOffTopic:
		resp = &ChatResponse{
			Message:             m.composer.OffTopic(decision.Message),
			RecommendedVehicles: []domain.Vehicle{},
			Parameters:          merged.Working(),
			ConversationID:      session.ID,
		}
	case DecideClarify:
		resp = &ChatResponse{
			Message:             m.composer.Clarification(decision.Question),
			RecommendedVehicles: []domain.Vehicle{},
			Parameters:          merged.Working(),
			ClarificationNeeded: true,
			ConversationID:      session.ID,
		}
	case DecideRecommend:
		resp = m.recommend(ctx, userID, session.ID, merged, message)
	}

	m.persistState(ctx, session, merged, expectedInteraction)
	m.appendTurn(ctx, session, userID, message, resp.Message)
	return resp
}

// recommend runs the gateway leg of a Recommend decision, folding newly
// shown vehicles into the exclusion set.
func (m *DialogueManager) recommend(ctx context.Context, userID, sessionID string, state *domain.DialogueState, message string) *ChatResponse {
	criteria := state.Working()

	// Exclusion of already-shown vehicles is skipped when the user asked to
	// see more or something else.
	var exclude []int
	if !state.Topic.WantsMore && !wantsMorePhrase(message) {
		exclude = state.ShownVehicleIDs.Values()
	}

	vehicles, err := m.gateway.GetRecommendations(ctx, userID, criteria, exclude, m.cfg.MaxResults)
	if err != nil {
		m.logger.Error("recommendation gateway failed", "user_id", userID, "error", err)
		return &ChatResponse{
			Message:             apologyGateway,
			RecommendedVehicles: []domain.Vehicle{},
			Parameters:          criteria,
			ConversationID:      sessionID,
		}
	}

	for _, v := range vehicles {
		state.ShownVehicleIDs.Add(v.ID)
	}

	conflict := state.Topic.RangeConflict
	state.Topic.RangeConflict = nil // surfaced below, don't repeat next turn

	if vehicles == nil {
		vehicles = []domain.Vehicle{}
	}
	return &ChatResponse{
		Message:             m.composer.Recommendation(criteria, vehicles, conflict),
		RecommendedVehicles: vehicles,
		Parameters:          criteria,
		ConversationID:      sessionID,
	}
}

// loadOrCreateSession returns a fresh or windowed session plus its decoded
// state. Store failures degrade to an unpersisted in-memory session so the
// turn can still answer.
func (m *DialogueManager) loadOrCreateSession(ctx context.Context, userID string) (*domain.ChatSession, *domain.DialogueState) {
	session, err := m.repo.GetRecentSession(ctx, userID, m.cfg.SessionWindow)
	if err != nil {
		m.logger.Error("session lookup failed", "user_id", userID, "error", err)
	}
	if session != nil {
		return session, m.codec.Decode(session.StateJSON)
	}

	state := domain.NewDialogueState()
	blob, err := m.codec.Encode(state)
	if err != nil {
		m.logger.Error("failed to encode fresh dialogue state", "error", err)
		blob = ""
	}

	session, err = m.repo.CreateSession(ctx, userID, blob)
	if err != nil {
		m.logger.Error("session create failed, continuing unpersisted", "user_id", userID, "error", err)
		now := time.Now()
		session = &domain.ChatSession{
			ID:                uuid.NewString(),
			UserID:            userID,
			StateJSON:         blob,
			CreatedAt:         now,
			LastInteractionAt: now,
		}
	}
	return session, state
}

func (m *DialogueManager) recentHistory(ctx context.Context, sessionID string) []HistoryTurn {
	if m.cfg.HistoryTurns <= 0 {
		return nil
	}
	turns, err := m.repo.SessionTurns(ctx, sessionID, m.cfg.HistoryTurns)
	if err != nil {
		m.logger.Warn("failed to load session history", "session_id", sessionID, "error", err)
		return nil
	}
	history := make([]HistoryTurn, 0, len(turns))
	for _, t := range turns {
		history = append(history, HistoryTurn{User: t.UserMessage, Assistant: t.Reply})
	}
	return history
}

// persistState writes the merged state back with the optimistic
// last-interaction check. Failure is logged, never surfaced: the user still
// gets their response.
func (m *DialogueManager) persistState(ctx context.Context, session *domain.ChatSession, state *domain.DialogueState, expected time.Time) {
	now := time.Now()
	state.LastInteractionAt = now

	blob, err := m.codec.Encode(state)
	if err != nil {
		m.logger.Error("failed to encode dialogue state", "session_id", session.ID, "error", err)
		return
	}

	session.StateJSON = blob
	session.LastInteractionAt = now

	if err := m.repo.UpdateSession(ctx, session, expected); err != nil {
		m.logger.Error("failed to persist dialogue state", "session_id", session.ID, "error", err)
	}
}

// appendTurn records the exchange in the append-only history. Exactly one
// record per ProcessMessage call, regardless of outcome.
func (m *DialogueManager) appendTurn(ctx context.Context, session *domain.ChatSession, userID, message, reply string) {
	turn := &domain.Turn{
		SessionID:   session.ID,
		UserID:      userID,
		UserMessage: message,
		Reply:       reply,
		CreatedAt:   time.Now(),
	}
	if err := m.repo.AppendTurn(ctx, turn); err != nil {
		m.logger.Warn("failed to append chat history", "session_id", session.ID, "error", err)
	}
}

// ResetSession abandons the user's current session so the next message
// starts with a fresh dialogue state.
func (m *DialogueManager) ResetSession(ctx context.Context, userID string) error {
	mu := m.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	session, err := m.repo.GetRecentSession(ctx, userID, m.cfg.SessionWindow)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}
	return m.repo.ExpireSession(ctx, session.ID)
}

func wantsMorePhrase(message string) bool {
	msg := strings.ToLower(message)
	for _, phrase := range []string{"show me more", "show more", "more options", "something else", "see more", "anything else"} {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
