package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/conscious-collective/relay-social/internal/models"
	"github.com/conscious-collective/relay-social/internal/repository"
	"github.com/conscious-collective/relay-social/internal/service"
	"github.com/conscious-collective/relay-social/internal/transfer"
)

// TokenRefreshJob keeps platform credentials alive. Accounts whose
// tokens are about to expire get refreshed where the platform supports
// it; the rest are marked expired and their owners notified, so the
// publisher fails them cleanly instead of hitting the platform with a
// dead token.
type TokenRefreshJob struct {
	sr       repository.SocialAccountRepository
	accounts service.AccountService
	notifier service.Notifier
}

func NewTokenRefreshJob(
	sr repository.SocialAccountRepository,
	accounts service.AccountService,
	notifier service.Notifier) *TokenRefreshJob {
	return &TokenRefreshJob{
		sr:       sr,
		accounts: accounts,
		notifier: notifier,
	}
}

func (c *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	currentTime := time.Now()
	timeIn30Minutes := currentTime.Add(30 * time.Minute)

	accounts, err := c.sr.ListExpiringBetween(ctx, currentTime, timeIn30Minutes)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.SocialAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			switch acc.Platform {
			case "instagram":
				if err := c.accounts.RefreshInstagramToken(ctx, acc); err != nil {
					slog.Info("unable to refresh instagram token", "account_id", acc.ID)
					c.markExpired(ctx, acc)
				}
			default:
				// Twitter and LinkedIn tokens are refreshed lazily via
				// oauth2.TokenSource on use. A token still expiring here
				// means the refresh token itself is gone.
				c.markExpired(ctx, acc)
			}
		}(acc)
	}

	wg.Wait()
}

func (c *TokenRefreshJob) markExpired(ctx context.Context, acc *models.SocialAccount) {
	if err := c.sr.SetStatus(ctx, acc.ID, models.AccountStatusExpired); err != nil {
		slog.Info(err.Error())
		return
	}

	if c.notifier != nil {
		c.notifier.Notify(ctx, acc.UserID, models.EventAccountExpired, transfer.AccountEvent{
			AccountID: acc.ID,
			Platform:  acc.Platform,
			Username:  acc.AccountUsername,
			Status:    models.AccountStatusExpired,
		})
	}
}
