package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"crm_chat/internal/domain"
	apperrors "crm_chat/pkg/errors"
	"crm_chat/pkg/logger"
)

type ConversationRepository interface {
	Create(ctx context.Context, conversation *domain.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Conversation, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Touch(ctx context.Context, id uuid.UUID) error

	AddParticipant(ctx context.Context, participant *domain.Participant) error
	RemoveParticipant(ctx context.Context, conversationID, userID uuid.UUID) error
	GetParticipant(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Participant, error)
	ListParticipants(ctx context.Context, conversationID uuid.UUID) ([]*domain.Participant, error)
	SetLastRead(ctx context.Context, conversationID, userID uuid.UUID, readAt time.Time) error
}

type conversationRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewConversationRepository(db *pgxpool.Pool, log logger.Logger) ConversationRepository {
	return &conversationRepository{db: db, log: log}
}

func (r *conversationRepository) Create(ctx context.Context, conversation *domain.Conversation) error {
	query := `
		INSERT INTO conversations (id, name, team_id, is_team_channel, is_channel_type,
			channel_tag, is_public, creator_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Exec(ctx, query,
		conversation.ID, conversation.Name, conversation.TeamID,
		conversation.IsTeamChannel, conversation.IsChannelType,
		conversation.ChannelTag, conversation.IsPublic, conversation.CreatorID,
		conversation.CreatedAt, conversation.UpdatedAt,
	)

	if err != nil {
		r.log.Error("Failed to create conversation", "error", err)
		return err
	}

	return nil
}

func (r *conversationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	query := `
		SELECT id, name, team_id, is_team_channel, is_channel_type,
			channel_tag, is_public, creator_id, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`

	conversation := &domain.Conversation{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&conversation.ID, &conversation.Name, &conversation.TeamID,
		&conversation.IsTeamChannel, &conversation.IsChannelType,
		&conversation.ChannelTag, &conversation.IsPublic, &conversation.CreatorID,
		&conversation.CreatedAt, &conversation.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		r.log.Error("Failed to get conversation", "error", err, "conversation_id", id)
		return nil, err
	}

	return conversation, nil
}

// ListForUser возвращает беседы, где пользователь участник, плюс публичные
// каналы, отсортированные по последней активности
func (r *conversationRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Conversation, error) {
	query := `
		SELECT DISTINCT c.id, c.name, c.team_id, c.is_team_channel, c.is_channel_type,
			c.channel_tag, c.is_public, c.creator_id, c.created_at, c.updated_at
		FROM conversations c
		LEFT JOIN participants p ON p.conversation_id = c.id AND p.user_id = $1
		WHERE p.id IS NOT NULL OR (c.is_channel_type AND c.is_public)
		ORDER BY c.updated_at DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		r.log.Error("Failed to list conversations", "error", err, "user_id", userID)
		return nil, err
	}
	defer rows.Close()

	var conversations []*domain.Conversation
	for rows.Next() {
		conversation := &domain.Conversation{}
		err := rows.Scan(
			&conversation.ID, &conversation.Name, &conversation.TeamID,
			&conversation.IsTeamChannel, &conversation.IsChannelType,
			&conversation.ChannelTag, &conversation.IsPublic, &conversation.CreatorID,
			&conversation.CreatedAt, &conversation.UpdatedAt,
		)
		if err != nil {
			r.log.Error("Failed to scan conversation", "error", err)
			return nil, err
		}
		conversations = append(conversations, conversation)
	}

	return conversations, rows.Err()
}

// Delete удаляет беседу вместе с участниками и сообщениями (ON DELETE CASCADE)
func (r *conversationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		r.log.Error("Failed to delete conversation", "error", err, "conversation_id", id)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *conversationRepository) Touch(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE conversations SET updated_at = $2 WHERE id = $1`, id, time.Now())
	if err != nil {
		r.log.Error("Failed to touch conversation", "error", err, "conversation_id", id)
	}
	return err
}

func (r *conversationRepository) AddParticipant(ctx context.Context, participant *domain.Participant) error {
	query := `
		INSERT INTO participants (id, conversation_id, user_id, is_admin, last_read_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Exec(ctx, query,
		participant.ID, participant.ConversationID, participant.UserID,
		participant.IsAdmin, participant.LastReadAt, participant.CreatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505": // duplicate (conversation_id, user_id)
				return apperrors.ErrConflict
			case "23503": // беседа или пользователь не существуют
				return apperrors.ErrNotFound
			}
		}
		r.log.Error("Failed to add participant", "error", err,
			"conversation_id", participant.ConversationID, "user_id", participant.UserID)
		return err
	}

	return nil
}

func (r *conversationRepository) RemoveParticipant(ctx context.Context, conversationID, userID uuid.UUID) error {
	query := `DELETE FROM participants WHERE conversation_id = $1 AND user_id = $2`

	tag, err := r.db.Exec(ctx, query, conversationID, userID)
	if err != nil {
		r.log.Error("Failed to remove participant", "error", err,
			"conversation_id", conversationID, "user_id", userID)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *conversationRepository) GetParticipant(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Participant, error) {
	query := `
		SELECT p.id, p.conversation_id, p.user_id, p.is_admin, p.last_read_at, p.created_at,
			u.username, u.full_name, u.is_manager
		FROM participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.conversation_id = $1 AND p.user_id = $2
	`

	participant := &domain.Participant{}
	err := r.db.QueryRow(ctx, query, conversationID, userID).Scan(
		&participant.ID, &participant.ConversationID, &participant.UserID,
		&participant.IsAdmin, &participant.LastReadAt, &participant.CreatedAt,
		&participant.Username, &participant.FullName, &participant.IsManager,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		r.log.Error("Failed to get participant", "error", err)
		return nil, err
	}

	return participant, nil
}

func (r *conversationRepository) ListParticipants(ctx context.Context, conversationID uuid.UUID) ([]*domain.Participant, error) {
	query := `
		SELECT p.id, p.conversation_id, p.user_id, p.is_admin, p.last_read_at, p.created_at,
			u.username, u.full_name, u.is_manager
		FROM participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.conversation_id = $1
		ORDER BY p.created_at ASC
	`

	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		r.log.Error("Failed to list participants", "error", err, "conversation_id", conversationID)
		return nil, err
	}
	defer rows.Close()

	var participants []*domain.Participant
	for rows.Next() {
		participant := &domain.Participant{}
		err := rows.Scan(
			&participant.ID, &participant.ConversationID, &participant.UserID,
			&participant.IsAdmin, &participant.LastReadAt, &participant.CreatedAt,
			&participant.Username, &participant.FullName, &participant.IsManager,
		)
		if err != nil {
			r.log.Error("Failed to scan participant", "error", err)
			return nil, err
		}
		participants = append(participants, participant)
	}

	return participants, rows.Err()
}

func (r *conversationRepository) SetLastRead(ctx context.Context, conversationID, userID uuid.UUID, readAt time.Time) error {
	query := `UPDATE participants SET last_read_at = $3 WHERE conversation_id = $1 AND user_id = $2`

	tag, err := r.db.Exec(ctx, query, conversationID, userID, readAt)
	if err != nil {
		r.log.Error("Failed to set last read", "error", err,
			"conversation_id", conversationID, "user_id", userID)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}
