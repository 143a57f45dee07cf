package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ShippingRecord tracks one campaign message to one destination number and
// whether it has been confirmed by a reply.
type ShippingRecord struct {
	ID           int64
	TenantID     int64
	CampaignID   int64
	Number       string
	MessageID    *string
	TicketID     *int64
	Confirmation *bool
	ConfirmedAt  *time.Time
	RequestedAt  *time.Time
}

// CampaignStore persists campaign shipping confirmation state.
type CampaignStore struct {
	pool PgxPool
}

func NewCampaignStore(pool PgxPool) *CampaignStore {
	if pool == nil {
		panic("store: pgx pool cannot be nil")
	}
	return &CampaignStore{pool: pool}
}

const shippingColumns = `id, tenant_id, campaign_id, number, message_id, ticket_id, confirmation, confirmed_at, confirmation_requested_at`

// GetByID fetches one shipping row scoped to the tenant.
func (s *CampaignStore) GetByID(ctx context.Context, tenantID, id int64) (*ShippingRecord, error) {
	query := `
		SELECT ` + shippingColumns + `
		FROM campaign_shippings
		WHERE tenant_id = $1 AND id = $2
	`
	rec, err := scanShipping(s.pool.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get shipping: %w", err)
	}
	return rec, nil
}

// FindByMessageID locates the shipping row whose outbound message carries
// the given wire identifier, scoped to the tenant.
func (s *CampaignStore) FindByMessageID(ctx context.Context, tenantID int64, messageID string) (*ShippingRecord, error) {
	query := `
		SELECT ` + shippingColumns + `
		FROM campaign_shippings
		WHERE tenant_id = $1 AND message_id = $2
		LIMIT 1
	`
	rec, err := scanShipping(s.pool.QueryRow(ctx, query, tenantID, messageID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: find shipping by message: %w", err)
	}
	return rec, nil
}

// FindPendingByNumber finds an in-flight confirmation-required shipping for
// the destination number: confirmation still unset and a confirmation
// request already sent.
func (s *CampaignStore) FindPendingByNumber(ctx context.Context, tenantID int64, number string) (*ShippingRecord, error) {
	query := `
		SELECT ` + shippingColumns + `
		FROM campaign_shippings
		WHERE tenant_id = $1 AND number = $2
			AND confirmation IS NULL
			AND confirmation_requested_at IS NOT NULL
		ORDER BY confirmation_requested_at DESC
		LIMIT 1
	`
	rec, err := scanShipping(s.pool.QueryRow(ctx, query, tenantID, number))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: find pending shipping: %w", err)
	}
	return rec, nil
}

// Confirm flips the tri-state confirmation from unset to true exactly once.
// Replays and re-sends never revert the flag.
func (s *CampaignStore) Confirm(ctx context.Context, q Querier, tenantID, shippingID int64, at time.Time) error {
	if q == nil {
		q = s.pool
	}
	query := `
		UPDATE campaign_shippings
		SET confirmation = TRUE, confirmed_at = $3
		WHERE tenant_id = $1 AND id = $2 AND confirmation IS NULL
	`
	_, err := q.Exec(ctx, query, tenantID, shippingID, at)
	if err != nil {
		return fmt.Errorf("store: confirm shipping: %w", err)
	}
	return nil
}

func scanShipping(row pgx.Row) (*ShippingRecord, error) {
	var rec ShippingRecord
	err := row.Scan(&rec.ID, &rec.TenantID, &rec.CampaignID, &rec.Number, &rec.MessageID, &rec.TicketID,
		&rec.Confirmation, &rec.ConfirmedAt, &rec.RequestedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
