package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crm_chat/internal/domain"
	apperrors "crm_chat/pkg/errors"
	"crm_chat/pkg/logger"
)

type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) error
	List(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*domain.Message, error)
	GetByID(ctx context.Context, messageID int64) (*domain.Message, error)
	Delete(ctx context.Context, messageID int64) error
	MarkRead(ctx context.Context, conversationID, readerID uuid.UUID) error
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

type messageRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMessageRepository(db *pgxpool.Pool, log logger.Logger) MessageRepository {
	return &messageRepository{db: db, log: log}
}

func (r *messageRepository) Create(ctx context.Context, message *domain.Message) error {
	query := `
		INSERT INTO messages (conversation_id, sender_id, content, attachment_url, is_read, is_urgent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		message.ConversationID, message.SenderID, message.Content,
		message.AttachmentURL, message.IsRead, message.IsUrgent, message.CreatedAt,
	).Scan(&message.ID, &message.CreatedAt)

	if err != nil {
		r.log.Error("Failed to create message", "error", err)
		return err
	}

	return nil
}

// List возвращает сообщения от старых к новым; клиент сам разворачивает
// порядок для отображения снизу вверх
func (r *messageRepository) List(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	query := `
		SELECT m.id, m.conversation_id, m.sender_id, m.content, m.attachment_url,
			m.is_read, m.is_urgent, m.created_at, u.username, u.full_name
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id = $1
		ORDER BY m.created_at ASC, m.id ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, conversationID, limit, offset)
	if err != nil {
		r.log.Error("Failed to list messages", "error", err, "conversation_id", conversationID)
		return nil, err
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0)
	for rows.Next() {
		message := &domain.Message{}
		err := rows.Scan(
			&message.ID, &message.ConversationID, &message.SenderID,
			&message.Content, &message.AttachmentURL,
			&message.IsRead, &message.IsUrgent, &message.CreatedAt,
			&message.SenderUsername, &message.SenderFullName,
		)
		if err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, err
		}
		messages = append(messages, message)
	}

	return messages, rows.Err()
}

func (r *messageRepository) GetByID(ctx context.Context, messageID int64) (*domain.Message, error) {
	query := `
		SELECT m.id, m.conversation_id, m.sender_id, m.content, m.attachment_url,
			m.is_read, m.is_urgent, m.created_at, u.username, u.full_name
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.id = $1
	`

	message := &domain.Message{}
	err := r.db.QueryRow(ctx, query, messageID).Scan(
		&message.ID, &message.ConversationID, &message.SenderID,
		&message.Content, &message.AttachmentURL,
		&message.IsRead, &message.IsUrgent, &message.CreatedAt,
		&message.SenderUsername, &message.SenderFullName,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		r.log.Error("Failed to get message", "error", err, "message_id", messageID)
		return nil, err
	}

	return message, nil
}

// Delete - жесткое удаление; рассылки о нем нет, клиенты узнают при
// следующей загрузке истории
func (r *messageRepository) Delete(ctx context.Context, messageID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM messages WHERE id = $1`, messageID)
	if err != nil {
		r.log.Error("Failed to delete message", "error", err, "message_id", messageID)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *messageRepository) MarkRead(ctx context.Context, conversationID, readerID uuid.UUID) error {
	query := `
		UPDATE messages SET is_read = TRUE
		WHERE conversation_id = $1 AND sender_id <> $2 AND is_read = FALSE
	`

	_, err := r.db.Exec(ctx, query, conversationID, readerID)
	if err != nil {
		r.log.Error("Failed to mark messages read", "error", err, "conversation_id", conversationID)
		return err
	}

	return nil
}

// UnreadCount считает чужие сообщения новее отметки прочтения. Для участника
// без last_read_at горизонт - момент вступления в беседу (created_at строки
// участника), чтобы счетчик не рос на всю историю при первом входе.
func (r *messageRepository) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM messages m
		JOIN participants p ON p.conversation_id = m.conversation_id
		WHERE p.user_id = $1
			AND m.sender_id <> $1
			AND m.created_at > GREATEST(COALESCE(p.last_read_at, 'epoch'::timestamptz), p.created_at)
	`

	var count int64
	if err := r.db.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		r.log.Error("Failed to count unread messages", "error", err, "user_id", userID)
		return 0, err
	}

	return count, nil
}
