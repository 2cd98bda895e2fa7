package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store wraps the SQLite database behind the collaborator interfaces the
// responder and relay consume.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the SQLite database at path and migrates
// the schema. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Message{}, &Contact{}, &LLMRequestLog{}, &GuardrailLog{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveMessage persists one message and returns its row ID.
func (s *Store) SaveMessage(ctx context.Context, msg *Message) (uint, error) {
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return 0, fmt.Errorf("save message: %w", err)
	}
	return msg.ID, nil
}

// HasMessageWithExtID reports whether a transport message id was already
// stored, the relay's cross-restart dedup check.
func (s *Store) HasMessageWithExtID(ctx context.Context, extID string) (bool, error) {
	if extID == "" {
		return false, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&Message{}).Where("ext_id = ?", extID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check message ext id: %w", err)
	}
	return count > 0, nil
}

// ConversationContext returns up to max most recent messages with the
// recipient, oldest first, for prompt assembly.
func (s *Store) ConversationContext(ctx context.Context, recipient string, max int) ([]ContextMessage, error) {
	if max < 1 {
		return nil, nil
	}
	var rows []Message
	err := s.db.WithContext(ctx).
		Where("phone_number = ?", recipient).
		Order("created_at DESC, id DESC").
		Limit(max).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load conversation context: %w", err)
	}

	// Reverse into chronological order.
	history := make([]ContextMessage, len(rows))
	for i, row := range rows {
		history[len(rows)-1-i] = ContextMessage{Direction: row.Direction, Body: row.Body}
	}
	return history, nil
}

// Contact returns the contact record for a recipient, or nil when unknown.
func (s *Store) Contact(ctx context.Context, recipient string) (*Contact, error) {
	var contact Contact
	err := s.db.WithContext(ctx).Where("phone_number = ?", recipient).First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load contact: %w", err)
	}
	return &contact, nil
}

// SaveContact inserts or updates the contact keyed by phone number.
func (s *Store) SaveContact(ctx context.Context, contact *Contact) error {
	var existing Contact
	err := s.db.WithContext(ctx).Where("phone_number = ?", contact.PhoneNumber).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := s.db.WithContext(ctx).Create(contact).Error; err != nil {
			return fmt.Errorf("create contact: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("load contact: %w", err)
	default:
		contact.ID = existing.ID
		contact.CreatedAt = existing.CreatedAt
		if err := s.db.WithContext(ctx).Save(contact).Error; err != nil {
			return fmt.Errorf("update contact: %w", err)
		}
		return nil
	}
}

// LogLLMRequest records one provider call for audit.
func (s *Store) LogLLMRequest(ctx context.Context, entry *LLMRequestLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("log llm request: %w", err)
	}
	return nil
}

// LogGuardrailViolation records one guardrail intervention for audit.
func (s *Store) LogGuardrailViolation(ctx context.Context, entry *GuardrailLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("log guardrail violation: %w", err)
	}
	return nil
}

// RecentMessages returns the latest messages in either direction, newest
// first, for operator inspection.
func (s *Store) RecentMessages(ctx context.Context, limit int) ([]Message, error) {
	var rows []Message
	err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load recent messages: %w", err)
	}
	return rows, nil
}

// Statistics summarizes stored traffic for the operator.
type Statistics struct {
	IncomingMessages int64 `json:"incoming_messages"`
	OutgoingMessages int64 `json:"outgoing_messages"`
	LLMRequests      int64 `json:"llm_requests"`
	LLMErrors        int64 `json:"llm_errors"`
	GuardrailEvents  int64 `json:"guardrail_events"`
	Contacts         int64 `json:"contacts"`
}

// Stats counts the audit tables.
func (s *Store) Stats(ctx context.Context) (Statistics, error) {
	var stats Statistics
	db := s.db.WithContext(ctx)

	counts := []struct {
		dest  *int64
		query *gorm.DB
	}{
		{&stats.IncomingMessages, db.Model(&Message{}).Where("direction = ?", DirectionIncoming)},
		{&stats.OutgoingMessages, db.Model(&Message{}).Where("direction = ?", DirectionOutgoing)},
		{&stats.LLMRequests, db.Model(&LLMRequestLog{})},
		{&stats.LLMErrors, db.Model(&LLMRequestLog{}).Where("status = ?", "error")},
		{&stats.GuardrailEvents, db.Model(&GuardrailLog{})},
		{&stats.Contacts, db.Model(&Contact{})},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dest).Error; err != nil {
			return Statistics{}, fmt.Errorf("count stats: %w", err)
		}
	}
	return stats, nil
}

// PruneMessages deletes messages older than the retention cutoff and returns
// how many were removed.
func (s *Store) PruneMessages(ctx context.Context, olderThan time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("created_at < ?", olderThan).Delete(&Message{})
	if result.Error != nil {
		return 0, fmt.Errorf("prune messages: %w", result.Error)
	}
	return result.RowsAffected, nil
}
