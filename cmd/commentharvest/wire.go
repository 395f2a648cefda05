package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"commentharvest/pkg/auth"
	"commentharvest/pkg/config"
	"commentharvest/pkg/dedup"
	"commentharvest/pkg/harvest"
	"commentharvest/pkg/instagram"
	"commentharvest/pkg/logger"
	"commentharvest/pkg/models"
	"commentharvest/pkg/ratelimit"
	"commentharvest/pkg/report"
	"commentharvest/pkg/retry"
	"commentharvest/pkg/sink"
	"commentharvest/pkg/sink/csvfile"
	"commentharvest/pkg/sink/sqlite"
	"commentharvest/pkg/tiktok"

	"github.com/redis/go-redis/v9"
)

// checkpointLister is implemented by both sink backends
type checkpointLister interface {
	Checkpoints(ctx context.Context, platform models.Platform) ([]models.Checkpoint, error)
}

// openSink opens the configured output backend
func openSink(ctx context.Context, cfg *config.Config, log logger.Logger) (sink.Sink, error) {
	switch cfg.Sink.Backend {
	case "csv":
		s, err := csvfile.NewStore(cfg.Sink.Directory, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.Sink.DatabasePath(), log)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown sink backend %q", cfg.Sink.Backend)
	}
}

// openDedup opens the configured dedup backend and checks it is reachable
func openDedup(ctx context.Context, cfg *config.Config) (dedup.Store, error) {
	switch cfg.Dedup.Backend {
	case "memory":
		return dedup.NewMemoryStore(), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Dedup.RedisAddr,
			Password: cfg.Dedup.RedisPassword,
			DB:       cfg.Dedup.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Dedup.RedisAddr, err)
		}
		return dedup.NewRedisStore(rdb, cfg.Dedup.TTL), nil
	default:
		return nil, fmt.Errorf("unknown dedup backend %q", cfg.Dedup.Backend)
	}
}

// newLimiter builds the shared per-host limiter
func newLimiter(cfg *config.Config) *ratelimit.HostLimiter {
	return ratelimit.NewHostLimiter(ratelimit.Config{
		MinInterval:       cfg.RateLimit.MinInterval,
		Hosts:             cfg.RateLimit.Hosts,
		Jitter:            cfg.RateLimit.Jitter,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		BurstSize:         cfg.RateLimit.BurstSize,
	})
}

// newRetryConfig maps the retry section onto a retry policy
func newRetryConfig(cfg *config.Config, log logger.Logger) *retry.Config {
	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.Retry.MaxAttempts
	rc.Backoff = &retry.ExponentialBackoff{
		BaseDelay:    cfg.Retry.BaseDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Multiplier:   2.0,
		JitterFactor: cfg.Retry.Jitter,
	}
	rc.MaxRetryAfter = cfg.Retry.MaxRetryAfter
	rc.Logger = log
	return rc
}

// newSource builds the comment source for platform. The Instagram session
// is looked up in config first and then the OS keyring. A missing session
// is not an error here: it fails session validation, which only runs when
// Instagram posts are still pending.
func newSource(cfg *config.Config, platform models.Platform, log logger.Logger) (harvest.Source, error) {
	switch platform {
	case models.PlatformTikTok:
		src, err := tiktok.NewSource(tiktok.Config{
			BaseURL:   cfg.TikTok.BaseURL,
			AID:       cfg.TikTok.AID,
			PageSize:  cfg.Harvest.PageSize,
			UserAgent: cfg.HTTP.UserAgent,
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	case models.PlatformInstagram:
		session, err := auth.Resolve(
			auth.StaticSource{Session: sessionFromConfig(cfg)},
			auth.KeyringSource{Account: cfg.Instagram.KeyringAccount},
		)
		if err != nil {
			if !errors.Is(err, auth.ErrCredentialsNotFound) {
				log.WithError(err).Warn("keyring lookup failed")
			}
			session = &auth.Session{}
		}
		userAgent := cfg.Instagram.UserAgent
		if userAgent == "" {
			userAgent = cfg.HTTP.UserAgent
		}
		src, err := instagram.NewSource(instagram.Config{
			BaseURL:   cfg.Instagram.BaseURL,
			AppID:     cfg.Instagram.AppID,
			UserAgent: userAgent,
			PageSize:  cfg.Harvest.PageSize,
		}, *session, log)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unsupported platform %q", platform)
	}
}

func sessionFromConfig(cfg *config.Config) auth.Session {
	return auth.Session{
		SessionID: strings.TrimSpace(cfg.Instagram.SessionID),
		UserID:    strings.TrimSpace(cfg.Instagram.UserID),
		CSRFToken: strings.TrimSpace(cfg.Instagram.CSRFToken),
		ClientID:  strings.TrimSpace(cfg.Instagram.ClientID),
	}
}

// newPublisher builds the summary publishers the report section asks for.
// It returns nil when none are configured.
func newPublisher(cfg *config.Config, log logger.Logger) (report.Publisher, error) {
	var pubs report.Multi
	if cfg.Report.SummaryFile != "" {
		pubs = append(pubs, &report.FilePublisher{Path: cfg.Report.SummaryFile})
	}
	if cfg.Report.NATSURL != "" {
		np, err := report.NewNATSPublisher(cfg.Report.NATSURL, cfg.Report.NATSSubject, log)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, np)
	}
	if len(pubs) == 0 {
		return nil, nil
	}
	return pubs, nil
}
