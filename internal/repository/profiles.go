package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Blackhoodiez/sipcoin/internal/common"
	"github.com/Blackhoodiez/sipcoin/internal/entity"
)

type ProfileRepository interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*entity.Profile, error)

	// CreditBalance adds points to the user's balance, creating the profile
	// with the award as initial balance when it does not exist yet. The
	// read-modify-write is NOT atomic at the storage layer; callers must
	// serialize credits per user (see pipeline.Processor).
	CreditBalance(ctx context.Context, userID uuid.UUID, points int64) (*entity.Profile, error)
}

type profileRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewProfileRepository(pool *pgxpool.Pool, logger *slog.Logger) ProfileRepository {
	return &profileRepository{pool: pool, logger: logger}
}

func (p *profileRepository) GetByID(ctx context.Context, userID uuid.UUID) (*entity.Profile, error) {
	var (
		prof  entity.Profile
		idStr string
	)
	err := p.pool.QueryRow(ctx, `
		SELECT id::text, sipcoins_balance, created_at, updated_at
		FROM profiles
		WHERE id = $1`,
		userID.String(),
	).Scan(&idStr, &prof.SipcoinsBalance, &prof.CreatedAt, &prof.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		p.logger.Error("failed to load profile", "user_id", userID, "error", err)
		return nil, common.WrapError(err, "get profile")
	}
	if prof.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("parse profile id: %w", err)
	}
	return &prof, nil
}

func (p *profileRepository) CreditBalance(ctx context.Context, userID uuid.UUID, points int64) (*entity.Profile, error) {
	current, err := p.GetByID(ctx, userID)
	if errors.Is(err, common.ErrNotFound) {
		return p.insertProfile(ctx, userID, points)
	}
	if err != nil {
		return nil, err
	}

	newBalance := current.SipcoinsBalance + points
	tag, err := p.pool.Exec(ctx, `
		UPDATE profiles
		SET sipcoins_balance = $2, updated_at = now()
		WHERE id = $1`,
		userID.String(), newBalance,
	)
	if err != nil {
		p.logger.Error("failed to update balance", "user_id", userID, "error", err)
		return nil, common.WrapError(err, "update balance")
	}
	if tag.RowsAffected() == 0 {
		return nil, common.NewAppError("BALANCE_UPDATE", "profile disappeared during credit", common.ErrDatabase)
	}

	current.SipcoinsBalance = newBalance
	return current, nil
}

func (p *profileRepository) insertProfile(ctx context.Context, userID uuid.UUID, initialBalance int64) (*entity.Profile, error) {
	var (
		prof  entity.Profile
		idStr string
	)
	err := p.pool.QueryRow(ctx, `
		INSERT INTO profiles (id, sipcoins_balance)
		VALUES ($1, $2)
		RETURNING id::text, sipcoins_balance, created_at, updated_at`,
		userID.String(), initialBalance,
	).Scan(&idStr, &prof.SipcoinsBalance, &prof.CreatedAt, &prof.UpdatedAt)
	if err != nil {
		p.logger.Error("failed to create profile", "user_id", userID, "error", err)
		return nil, common.WrapError(err, "create profile")
	}
	if prof.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("parse profile id: %w", err)
	}
	return &prof, nil
}
