package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eliamaps/elia/internal/config"
	"github.com/eliamaps/elia/internal/domain"
	"github.com/eliamaps/elia/internal/llm"
	"github.com/eliamaps/elia/internal/tools"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Deterministic answers for turns that cannot complete normally. These are
// persisted like any other assistant message.
const (
	fallbackLoopAnswer = "I wasn't able to finish working on that within the allowed number of steps. Could you try asking for a smaller piece of it?"
	fallbackLLMAnswer  = "I'm having trouble reaching the language model right now. Please try again in a moment."
	fallbackEmptyReply = "I don't have anything to add."
)

// turnState models the orchestration pass explicitly so the round-trip cap
// and failure paths are plain control flow rather than recursion.
type turnState int

const (
	stateAwaitingLLM turnState = iota
	stateExecutingTools
	stateDone
	stateAborted
)

// ErrAccessDenied is returned when a user touches a session they do not own
var ErrAccessDenied = errors.New("access denied")

// ChatService drives the LLM tool-calling loop for chat turns
type ChatService struct {
	llmRouter   *llm.Router
	registry    *tools.Registry
	messageRepo domain.MessageRepository
	sessionRepo domain.SessionRepository
	cfg         config.ChatConfig

	defaultServerURL string

	// locks serializes turns per session: the history read and the turn
	// write of one HandleTurn call form a single critical section.
	locks sync.Map // uuid.UUID -> *sync.Mutex
}

// NewChatService creates a new chat service
func NewChatService(
	llmRouter *llm.Router,
	registry *tools.Registry,
	messageRepo domain.MessageRepository,
	sessionRepo domain.SessionRepository,
	cfg config.ChatConfig,
	defaultServerURL string,
) *ChatService {
	return &ChatService{
		llmRouter:        llmRouter,
		registry:         registry,
		messageRepo:      messageRepo,
		sessionRepo:      sessionRepo,
		cfg:              cfg,
		defaultServerURL: defaultServerURL,
	}
}

func (s *ChatService) sessionLock(id uuid.UUID) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// HandleTurn processes one user message to completion: it loads the bounded
// conversation window, drives LLM round trips and tool calls until the model
// produces a final answer, persists the whole turn atomically and returns the
// answer.
func (s *ChatService) HandleTurn(ctx context.Context, userID uuid.UUID, req domain.TurnRequest) (*domain.TurnResponse, error) {
	startTime := time.Now()

	session, err := s.resolveSession(ctx, userID, req.SessionID, req.Message)
	if err != nil {
		return nil, err
	}

	lock := s.sessionLock(session.ID)
	lock.Lock()
	defer lock.Unlock()

	window, err := s.messageRepo.RecentBySession(ctx, session.ID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load conversation window: %v", domain.ErrHistoryPersistence, err)
	}

	userMsg := newMessage(session.ID, domain.RoleUser, req.Message)
	pending := []*domain.Message{userMsg}
	window = append(window, *userMsg)

	serverURL := req.MapServerURL
	if serverURL == "" {
		serverURL = s.defaultServerURL
	}
	inv := tools.Invocation{
		ServerURL: serverURL,
		MapData:   req.MapData,
	}

	provider, err := s.llmRouter.GetProvider("")
	if err != nil {
		return nil, fmt.Errorf("failed to get LLM provider: %w", err)
	}
	model := req.LLMModel
	if model == "" {
		model = provider.DefaultModel()
	}

	systemPrompt := llm.BuildSystemPrompt(serverURL, req.MapData != "")
	catalog := s.registry.Catalog()

	var (
		state      = stateAwaitingLLM
		calls      []llm.ToolCall
		final      string
		mapActions []domain.MapAction
		rounds     int
		toolCalls  int
		llmLatency int64
		tokens     int
	)

	for state != stateDone && state != stateAborted {
		switch state {
		case stateAwaitingLLM:
			if rounds >= s.cfg.MaxToolRounds {
				log.Warn().
					Err(domain.ErrLoopBoundExceeded).
					Str("session_id", session.ID.String()).
					Int("rounds", rounds).
					Msg("aborting turn")
				state = stateAborted
				continue
			}
			rounds++

			llmCtx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
			resp, err := provider.Complete(llmCtx, llm.Request{
				SystemPrompt: systemPrompt,
				History:      window,
				Tools:        catalog,
			}, model)
			cancel()

			if err != nil {
				log.Error().Err(err).
					Str("session_id", session.ID.String()).
					Msg("LLM completion failed, degrading to fallback answer")
				final = fallbackLLMAnswer
				state = stateDone
				continue
			}

			llmLatency += resp.LatencyMs
			tokens += resp.TokensUsed

			if resp.IsFinal() {
				final = resp.Text
				state = stateDone
				continue
			}

			calls = resp.ToolCalls
			state = stateExecutingTools

		case stateExecutingTools:
			for _, call := range calls {
				toolCalls++

				result, toolErr := s.executeTool(ctx, inv, call)

				var payload map[string]any
				if toolErr != nil {
					log.Warn().Err(toolErr).
						Str("session_id", session.ID.String()).
						Str("tool", call.Name).
						Msg("tool call failed, feeding error back to the model")
					payload = toolErr.Payload()
				} else {
					payload = result
					if tool, ok := s.registry.Resolve(call.Name); ok && tool.ClientSide {
						mapActions = append(mapActions, domain.MapAction{
							Name:    call.Name,
							Payload: result,
						})
					}
				}

				toolMsg := newMessage(session.ID, domain.RoleTool, compactJSON(payload))
				toolMsg.ToolName = call.Name
				toolMsg.ToolPayload = map[string]any{
					"args":   call.Args,
					"result": payload,
				}

				pending = append(pending, toolMsg)
				window = append(window, *toolMsg)
			}
			calls = nil
			state = stateAwaitingLLM
		}
	}

	if state == stateAborted {
		final = fallbackLoopAnswer
	}
	if final == "" {
		final = fallbackEmptyReply
	}

	assistantMsg := newMessage(session.ID, domain.RoleAssistant, final)
	pending = append(pending, assistantMsg)

	if err := s.messageRepo.AppendTurn(ctx, session.ID, pending); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrHistoryPersistence, err)
	}

	s.touchSession(ctx, session, req.Message)

	return &domain.TurnResponse{
		SessionID:  session.ID,
		Reply:      final,
		MapActions: mapActions,
		Metadata: &domain.TurnMetadata{
			LLMProvider:     provider.Name(),
			LLMModel:        model,
			ToolRounds:      rounds,
			ToolCalls:       toolCalls,
			ExecutionTimeMs: time.Since(startTime).Milliseconds(),
			LLMLatencyMs:    llmLatency,
			TokensUsed:      tokens,
		},
	}, nil
}

// executeTool dispatches one tool call with a per-call timeout. Upstream
// failures are retried a bounded number of times with backoff; every other
// failure is final.
func (s *ChatService) executeTool(ctx context.Context, inv tools.Invocation, call llm.ToolCall) (map[string]any, *domain.ToolError) {
	attempts := 1 + s.cfg.ToolRetries
	for attempt := 0; ; attempt++ {
		toolCtx, cancel := context.WithTimeout(ctx, s.cfg.ToolTimeout)
		result, toolErr := s.registry.Dispatch(toolCtx, inv, call)
		cancel()

		if toolErr == nil {
			return result, nil
		}
		if attempt >= attempts-1 || !errors.Is(toolErr, domain.ErrUpstreamUnavailable) {
			return nil, toolErr
		}

		log.Debug().
			Str("tool", call.Name).
			Int("attempt", attempt+1).
			Msg("retrying tool call after upstream failure")
		time.Sleep(s.cfg.ToolRetryBackoff)
	}
}

// resolveSession loads the session for a turn, creating one on first contact
func (s *ChatService) resolveSession(ctx context.Context, userID, sessionID uuid.UUID, question string) (*domain.ChatSession, error) {
	if sessionID != uuid.Nil {
		session, err := s.sessionRepo.Get(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to get session: %w", err)
		}
		if session == nil {
			return nil, fmt.Errorf("session not found: %s", sessionID)
		}
		if session.UserID != userID {
			return nil, ErrAccessDenied
		}
		return session, nil
	}

	now := time.Now()
	session := &domain.ChatSession{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     sessionTitle(question),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// touchSession bumps the session's activity timestamp after a turn
func (s *ChatService) touchSession(ctx context.Context, session *domain.ChatSession, question string) {
	session.UpdatedAt = time.Now()
	if session.Title == "" {
		session.Title = sessionTitle(question)
	}
	if err := s.sessionRepo.Update(ctx, session); err != nil {
		log.Error().Err(err).
			Str("session_id", session.ID.String()).
			Msg("failed to update session timestamp")
	}
}

// ListSessions lists the user's chat sessions
func (s *ChatService) ListSessions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.ChatSession, error) {
	return s.sessionRepo.ListByUser(ctx, userID, limit, offset)
}

// SessionHistory retrieves chat history for a session owned by the user
func (s *ChatService) SessionHistory(ctx context.Context, userID, sessionID uuid.UUID, limit int) ([]domain.Message, error) {
	if err := s.checkOwnership(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.messageRepo.ListBySession(ctx, sessionID, limit)
}

// DeleteSession deletes a chat session owned by the user
func (s *ChatService) DeleteSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	if err := s.checkOwnership(ctx, userID, sessionID); err != nil {
		return err
	}
	return s.sessionRepo.Delete(ctx, sessionID)
}

// SuggestedQuestions retrieves the user's most frequent prior questions
func (s *ChatService) SuggestedQuestions(ctx context.Context, userID uuid.UUID) ([]string, error) {
	return s.messageRepo.MostFrequentQuestions(ctx, userID, 5)
}

func (s *ChatService) checkOwnership(ctx context.Context, userID, sessionID uuid.UUID) error {
	session, err := s.sessionRepo.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	if session.UserID != userID {
		return ErrAccessDenied
	}
	return nil
}

func newMessage(sessionID uuid.UUID, role domain.MessageRole, content string) *domain.Message {
	return &domain.Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

func sessionTitle(question string) string {
	runes := []rune(question)
	if len(runes) > 30 {
		return string(runes[:30]) + "..."
	}
	return question
}

func compactJSON(payload map[string]any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(data)
}
