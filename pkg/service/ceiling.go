package service

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"study_ledger_back/pkg/cache"
)

// CeilingResolver returns the maximum bonus balance a profile may hold.
type CeilingResolver interface {
	BonusCeiling(ctx context.Context, profileID int64) (decimal.Decimal, error)
}

type CeilingFunc func(ctx context.Context, profileID int64) (decimal.Decimal, error)

func (f CeilingFunc) BonusCeiling(ctx context.Context, profileID int64) (decimal.Decimal, error) {
	return f(ctx, profileID)
}

// StaticCeiling gives every profile the same limit.
func StaticCeiling(limit decimal.Decimal) CeilingResolver {
	return CeilingFunc(func(context.Context, int64) (decimal.Decimal, error) {
		return limit, nil
	})
}

// CachedCeiling keeps resolved limits for ttl. Cache failures are logged and fall through
// to the wrapped resolver; resolver failures are never cached.
type CachedCeiling struct {
	next  CeilingResolver
	cache cache.Cache
	ttl   time.Duration
	log   logrus.FieldLogger
}

func NewCachedCeiling(next CeilingResolver, c cache.Cache, ttl time.Duration, log logrus.FieldLogger) *CachedCeiling {
	return &CachedCeiling{next: next, cache: c, ttl: ttl, log: log}
}

func ceilingKey(profileID int64) string {
	return "bonus_ceiling:" + strconv.FormatInt(profileID, 10)
}

func (c *CachedCeiling) BonusCeiling(ctx context.Context, profileID int64) (decimal.Decimal, error) {
	key := ceilingKey(profileID)

	raw, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.WithError(err).WithField("profile_id", profileID).Warn("ceiling cache read failed")
	}
	if ok {
		limit, err := decimal.NewFromString(raw)
		if err == nil {
			return limit, nil
		}
		c.log.WithError(err).WithField("profile_id", profileID).Warn("ceiling cache holds garbage")
	}

	limit, err := c.next.BonusCeiling(ctx, profileID)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "resolve bonus ceiling for profile %d", profileID)
	}

	if err := c.cache.Set(ctx, key, limit.String(), c.ttl); err != nil {
		c.log.WithError(err).WithField("profile_id", profileID).Warn("ceiling cache write failed")
	}
	return limit, nil
}
