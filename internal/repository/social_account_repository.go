package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/conscious-collective/relay-social/internal/models"
)

type SocialAccountRepository interface {
	Create(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.SocialAccount, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error)
	ListExpiringBetween(ctx context.Context, initialTime, finalTime time.Time) ([]*models.SocialAccount, error)
	CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error)
	SetToken(ctx context.Context, accountID int64, sa *models.SocialAccount) error
	SetStatus(ctx context.Context, accountID int64, status string) error
	Remove(ctx context.Context, id int64) error
}

type socialAccountRepository struct {
	db *sql.DB
}

func NewSocialAccountRepository(db *sql.DB) SocialAccountRepository {
	return &socialAccountRepository{db: db}
}

const socialAccountColumns = `id, user_id, platform, account_id, account_name, account_username, profile_picture_url, access_token, refresh_token, token_expires_at, account_status, created_at, updated_at`

func scanSocialAccount(row interface{ Scan(...interface{}) error }) (*models.SocialAccount, error) {
	var sa models.SocialAccount
	err := row.Scan(&sa.ID, &sa.UserID, &sa.Platform, &sa.AccountID, &sa.AccountName,
		&sa.AccountUsername, &sa.ProfilePicture, &sa.AccessToken, &sa.RefreshToken,
		&sa.TokenExpiresAt, &sa.AccountStatus, &sa.CreatedAt, &sa.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sa, nil
}

func (r *socialAccountRepository) Create(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error) {
	var insertQuery = `
		INSERT INTO social_accounts(
			user_id,
			platform,
			account_id,
			account_name,
			account_username,
			profile_picture_url,
			access_token,
			refresh_token,
			token_expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	args := []interface{}{
		sa.UserID,
		sa.Platform,
		sa.AccountID,
		sa.AccountName,
		sa.AccountUsername,
		sa.ProfilePicture,
		sa.AccessToken,
		sa.RefreshToken,
		sa.TokenExpiresAt,
	}

	var id int64
	var err error

	if tx != nil {
		err = tx.QueryRowContext(ctx, insertQuery, args...).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, insertQuery, args...).Scan(&id)
	}

	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *socialAccountRepository) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	query := `SELECT ` + socialAccountColumns + ` FROM social_accounts WHERE id = $1`

	sa, err := scanSocialAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return sa, nil
}

func (r *socialAccountRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	query := `SELECT ` + socialAccountColumns + ` FROM social_accounts WHERE user_id = $1`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.SocialAccount
	for rows.Next() {
		sa, err := scanSocialAccount(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, sa)
	}
	return accounts, rows.Err()
}

func (r *socialAccountRepository) ListExpiringBetween(ctx context.Context, initialTime, finalTime time.Time) ([]*models.SocialAccount, error) {
	query := `SELECT ` + socialAccountColumns + ` FROM social_accounts WHERE token_expires_at BETWEEN $1 AND $2 AND account_status = $3`

	rows, err := r.db.QueryContext(ctx, query, initialTime, finalTime, models.AccountStatusActive)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.SocialAccount
	for rows.Next() {
		sa, err := scanSocialAccount(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, sa)
	}
	return accounts, rows.Err()
}

func (r *socialAccountRepository) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	query := "SELECT 1 FROM social_accounts WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, accountID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *socialAccountRepository) SetToken(ctx context.Context, accountID int64, sa *models.SocialAccount) error {
	query := `
		UPDATE social_accounts
		SET access_token = $1, refresh_token = $2, token_expires_at = $3, updated_at = $4
		WHERE id = $5
	`
	_, err := r.db.ExecContext(ctx, query, sa.AccessToken, sa.RefreshToken, sa.TokenExpiresAt, time.Now(), accountID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *socialAccountRepository) SetStatus(ctx context.Context, accountID int64, status string) error {
	query := `UPDATE social_accounts SET account_status = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, status, time.Now(), accountID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *socialAccountRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM social_accounts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
