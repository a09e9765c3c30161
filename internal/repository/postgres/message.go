package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/eliamaps/elia/internal/domain"
	"github.com/google/uuid"
)

// MessageRepository implements domain.MessageRepository
type MessageRepository struct {
	db *DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// AppendTurn writes the messages of one chat turn inside a single transaction.
// Sequence numbers continue from the session's current maximum with no gaps.
// The session row is locked for the duration of the transaction so two
// concurrent appends can never be assigned the same number.
func (r *MessageRepository) AppendTurn(ctx context.Context, sessionID uuid.UUID, messages []*domain.Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT 1 FROM chat_sessions WHERE id = $1 FOR UPDATE`, sessionID); err != nil {
		return fmt.Errorf("failed to lock session: %w", err)
	}

	var nextSeq int
	row := tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence_no), 0) + 1
		FROM chat_messages
		WHERE session_id = $1
	`, sessionID)
	if err := row.Scan(&nextSeq); err != nil {
		return fmt.Errorf("failed to read sequence counter: %w", err)
	}

	insert := `
		INSERT INTO chat_messages (id, session_id, role, content, tool_name, tool_payload, sequence_no, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for i, m := range messages {
		var payloadJSON []byte
		if m.ToolPayload != nil {
			payloadJSON, err = json.Marshal(m.ToolPayload)
			if err != nil {
				return fmt.Errorf("failed to marshal tool payload: %w", err)
			}
		}

		m.SessionID = sessionID
		m.SequenceNo = nextSeq + i

		if _, err := tx.Exec(ctx, insert,
			m.ID,
			m.SessionID,
			m.Role,
			m.Content,
			m.ToolName,
			payloadJSON,
			m.SequenceNo,
			m.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit turn: %w", err)
	}

	return nil
}

// RecentBySession retrieves the latest messages for a session, oldest first
func (r *MessageRepository) RecentBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]domain.Message, error) {
	query := `
		SELECT id, session_id, role, content, tool_name, tool_payload, sequence_no, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY sequence_no DESC
		LIMIT $2
	`

	messages, err := r.queryMessages(ctx, query, sessionID, limit)
	if err != nil {
		return nil, err
	}

	// Reverse to return chronological order (oldest first) because we
	// ordered by DESC to get the latest N messages.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// ListBySession retrieves session history, oldest first. A limit of zero
// returns the whole session.
func (r *MessageRepository) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]domain.Message, error) {
	query := `
		SELECT id, session_id, role, content, tool_name, tool_payload, sequence_no, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY sequence_no ASC
		LIMIT NULLIF($2, 0)
	`
	return r.queryMessages(ctx, query, sessionID, limit)
}

func (r *MessageRepository) queryMessages(ctx context.Context, query string, sessionID uuid.UUID, limit int) ([]domain.Message, error) {
	rows, err := r.db.Pool.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		var roleStr string
		var payloadJSON []byte

		if err := rows.Scan(
			&m.ID,
			&m.SessionID,
			&roleStr,
			&m.Content,
			&m.ToolName,
			&payloadJSON,
			&m.SequenceNo,
			&m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = domain.MessageRole(roleStr)

		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &m.ToolPayload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tool payload: %w", err)
			}
		}

		messages = append(messages, m)
	}

	return messages, nil
}

// MostFrequentQuestions retrieves the most repeated user questions across the
// user's sessions, used for chat suggestions.
func (r *MessageRepository) MostFrequentQuestions(ctx context.Context, userID uuid.UUID, limit int) ([]string, error) {
	query := `
		SELECT m.content
		FROM chat_messages m
		INNER JOIN chat_sessions s ON s.id = m.session_id
		WHERE s.user_id = $1 AND m.role = 'user'
		GROUP BY m.content
		ORDER BY COUNT(*) DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query frequent questions: %w", err)
	}
	defer rows.Close()

	var questions []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, q)
	}

	return questions, nil
}
