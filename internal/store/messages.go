package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Raw message processing states.
const (
	MessageReceived  = "received"
	MessageProcessed = "processed"
	MessageFailed    = "failed"
)

// RawMessage is an inbound field report as delivered by the gateway.
type RawMessage struct {
	ID               uuid.UUID
	MessageID        string // gateway-assigned, unique
	Sender           string
	Body             string
	MediaURL         string
	State            string
	ReceivedAt       time.Time
	LinkedActivityID *uuid.UUID
}

// InsertRawMessage stores an inbound message. Redelivery of the same gateway
// message id hits the unique constraint and is ignored; created reports
// whether a new row was written, state is the stored processing state either
// way. A returned MessageFailed state tells the caller the earlier attempt hit
// a storage fault and the message should be run through the pipeline again.
func (s *Store) InsertRawMessage(ctx context.Context, m RawMessage) (uuid.UUID, bool, string, error) {
	id := uuid.New()
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO raw_messages (id, message_id, sender, body, media_url, state, received_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, now())
		ON CONFLICT (message_id) DO NOTHING`,
		id, m.MessageID, m.Sender, m.Body, m.MediaURL, MessageReceived,
	)
	if err != nil {
		return uuid.Nil, false, "", fmt.Errorf("insert raw message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var existing uuid.UUID
		var state string
		if err := s.pool.QueryRow(ctx,
			`SELECT id, state FROM raw_messages WHERE message_id = $1`, m.MessageID,
		).Scan(&existing, &state); err != nil {
			return uuid.Nil, false, "", fmt.Errorf("lookup duplicate message: %w", err)
		}
		return existing, false, state, nil
	}
	return id, true, MessageReceived, nil
}

// MarkMessageProcessed records the extraction outcome. extracted is the
// structured payload as JSON, or nil when nothing was extracted.
func (s *Store) MarkMessageProcessed(ctx context.Context, id uuid.UUID, extracted []byte) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE raw_messages
		SET state = $1, processed_at = now(), extracted_data = $2
		WHERE id = $3`,
		MessageProcessed, extracted, id,
	)
	if err != nil {
		return fmt.Errorf("mark message processed: %w", err)
	}
	return nil
}

// MarkMessageFailed returns a message to a retryable state after a storage
// fault during materialization.
func (s *Store) MarkMessageFailed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE raw_messages SET state = $1 WHERE id = $2`, MessageFailed, id,
	)
	if err != nil {
		return fmt.Errorf("mark message failed: %w", err)
	}
	return nil
}

// AttachImageAnalysis stores the photo analysis for a message's media.
func (s *Store) AttachImageAnalysis(ctx context.Context, id uuid.UUID, analysis []byte) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE raw_messages SET image_analysis = $1 WHERE id = $2`, analysis, id,
	)
	if err != nil {
		return fmt.Errorf("attach image analysis: %w", err)
	}
	return nil
}

// LinkActivity records which activity a message materialized into.
func (s *Store) LinkActivity(ctx context.Context, messageID, activityID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE raw_messages SET linked_activity_id = $1 WHERE id = $2`, activityID, messageID,
	)
	if err != nil {
		return fmt.Errorf("link activity: %w", err)
	}
	return nil
}
