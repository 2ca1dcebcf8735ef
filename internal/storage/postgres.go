package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"offerwall-engine/internal/config"
	"offerwall-engine/internal/engine"
)

// Store is the durable side of the engine: offer snapshots, click records,
// click counts and blocked-access audit rows, all on one pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// ClickRecord is the persisted form of one resolved click.
type ClickRecord struct {
	ID             string
	OfferID        string
	RuleID         string // empty for fallback results
	RuleType       string
	Label          string
	DestinationURL string
	IsFallback     bool
	IP             string
	SubID          string
	CountryCode    string
	UserAgent      string
	Referrer       string
	ClickedAt      time.Time
}

func New(ctx context.Context, cfg config.Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Postgres.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.Postgres.MaxIdleConns)
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// GetOffer loads one offer with its smart rules. Returns nil when the offer
// does not exist; callers decide resolvability from the loaded flags.
func (s *Store) GetOffer(ctx context.Context, offerID string) (*engine.Offer, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT o.id, o.active, o.status, o.allowed_countries,
		       COALESCE(o.non_access_url, ''), COALESCE(o.fallback_url, ''),
		       r.id, r.type, r.geo, r.url, r.priority, r.active,
		       r.percentage, r.daily_cap, r.start_hour, r.end_hour
		FROM offers o
		LEFT JOIN smart_rules r ON r.offer_id = o.id
		WHERE o.id = $1
	`, offerID)
	if err != nil {
		return nil, fmt.Errorf("query offer %s: %w", offerID, err)
	}
	defer rows.Close()

	var offer *engine.Offer
	for rows.Next() {
		var (
			id, status                string
			active                    bool
			countries                 []string
			nonAccessURL, fallbackURL string
			ruleID, ruleType, ruleURL sql.NullString
			rulePriority, rulePct     sql.NullInt32
			ruleCap                   sql.NullInt32
			ruleActive                sql.NullBool
			ruleGeo                   []string
			startHour, endHour        sql.NullInt32
		)
		if err := rows.Scan(&id, &active, &status, &countries,
			&nonAccessURL, &fallbackURL,
			&ruleID, &ruleType, &ruleGeo, &ruleURL, &rulePriority, &ruleActive,
			&rulePct, &ruleCap, &startHour, &endHour); err != nil {
			return nil, fmt.Errorf("scan offer row: %w", err)
		}

		if offer == nil {
			offer = &engine.Offer{
				ID:               id,
				Active:           active,
				Status:           status,
				AllowedCountries: countries,
				NonAccessURL:     nonAccessURL,
				FallbackURL:      fallbackURL,
			}
		}

		if !ruleID.Valid {
			continue
		}
		rule := engine.SmartRule{
			ID:         ruleID.String,
			Type:       engine.RuleType(ruleType.String),
			Geo:        ruleGeo,
			URL:        ruleURL.String,
			Priority:   int(rulePriority.Int32),
			Active:     ruleActive.Bool,
			Percentage: int(rulePct.Int32),
			DailyCap:   int(ruleCap.Int32),
		}
		if startHour.Valid && endHour.Valid {
			rule.Window = &engine.TimeWindow{
				StartHour: int(startHour.Int32),
				EndHour:   int(endHour.Int32),
			}
		}
		offer.Rules = append(offer.Rules, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return offer, nil
}

// CountClicksToday counts clicks for (offer, rule) within the current UTC
// calendar day.
func (s *Store) CountClicksToday(ctx context.Context, offerID, ruleID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM clicks
		WHERE offer_id = $1 AND rule_id = $2
		  AND clicked_at >= $3 AND clicked_at < $4
	`, offerID, ruleID, dayStart, dayStart.Add(24*time.Hour)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count clicks: %w", err)
	}
	return n, nil
}

// InsertClick persists one resolved click.
func (s *Store) InsertClick(ctx context.Context, rec ClickRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO clicks (
			id, offer_id, rule_id, rule_type, label, destination_url,
			is_fallback, ip, subid, country_code, user_agent, referrer, clicked_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.OfferID, nullable(rec.RuleID), nullable(rec.RuleType),
		rec.Label, rec.DestinationURL, rec.IsFallback, rec.IP, rec.SubID,
		rec.CountryCode, nullable(rec.UserAgent), nullable(rec.Referrer), rec.ClickedAt)
	if err != nil {
		return fmt.Errorf("insert click: %w", err)
	}
	return nil
}

// RecordBlockedAccess persists a geo-gate denial for fraud review.
func (s *Store) RecordBlockedAccess(ctx context.Context, entry engine.BlockedAccess) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO blocked_access_log (
			offer_id, ip, country_code, country_name, allowed_countries,
			isp, proxy, subid, user_agent, blocked_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, entry.OfferID, entry.IP, entry.CountryCode, entry.CountryName,
		entry.AllowedCountries, nullable(entry.ISP), entry.Proxy,
		entry.SubID, nullable(entry.UserAgent), entry.Timestamp)
	if err != nil {
		return fmt.Errorf("insert blocked access: %w", err)
	}
	return nil
}

func (s *Store) ListenChannel() string {
	return "offer_change"
}

func (s *Store) PgxPool() *pgxpool.Pool {
	return s.pool
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
