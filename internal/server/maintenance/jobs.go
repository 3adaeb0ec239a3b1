package maintenance

import (
	"context"

	"github.com/dmitrijs2005/fitcoach/internal/logging"
)

// ResetTokenPurger clears password reset tokens past their expiry.
// *services.AdminService implements it.
type ResetTokenPurger interface {
	PurgeExpiredResetTokens(ctx context.Context) (int64, error)
}

// Cleaner drops expired state. *ratelimit.MemoryLimiter implements it.
type Cleaner interface {
	Cleanup() int
}

func PurgeResetTokens(p ResetTokenPurger, l logging.Logger) Job {
	return func(ctx context.Context) error {
		n, err := p.PurgeExpiredResetTokens(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			l.Info(ctx, "expired reset tokens purged", "count", n)
		}
		return nil
	}
}

func CleanupLimiters(cleaners ...Cleaner) Job {
	return func(context.Context) error {
		for _, c := range cleaners {
			c.Cleanup()
		}
		return nil
	}
}
