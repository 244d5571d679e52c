package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/Gideonite22/clarity-trend-vault/shared/models"
)

// PostgresClient wraps the PostgreSQL database connection
type PostgresClient struct {
	db *sqlx.DB
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(connStr string) (*PostgresClient, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresClient{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS vault_events (
	event_id VARCHAR(64) PRIMARY KEY,
	kind VARCHAR(64) NOT NULL,
	block_height BIGINT NOT NULL,
	tx_index INTEGER NOT NULL,
	principal VARCHAR(128) NOT NULL,
	counterparty VARCHAR(128) NOT NULL DEFAULT '',
	product_id BIGINT NOT NULL DEFAULT 0,
	auction_id BIGINT NOT NULL DEFAULT 0,
	amount BIGINT NOT NULL DEFAULT 0,
	previous_amount BIGINT NOT NULL DEFAULT 0,
	rating SMALLINT NOT NULL DEFAULT 0,
	name VARCHAR(50) NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL,
	archived_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_vault_events_kind ON vault_events(kind);
CREATE INDEX IF NOT EXISTS idx_vault_events_height ON vault_events(block_height, tx_index);

CREATE TABLE IF NOT EXISTS bids (
	event_id VARCHAR(64) PRIMARY KEY REFERENCES vault_events(event_id) ON DELETE CASCADE,
	auction_id BIGINT NOT NULL,
	bidder VARCHAR(128) NOT NULL,
	amount BIGINT NOT NULL,
	previous_bid BIGINT NOT NULL DEFAULT 0,
	block_height BIGINT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bids_auction_id ON bids(auction_id);
CREATE INDEX IF NOT EXISTS idx_bids_bidder ON bids(bidder);
`

// InitSchema creates the necessary database tables
func (c *PostgresClient) InitSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// eventRow is the vault_events row of an event.
type eventRow struct {
	EventID        string    `db:"event_id"`
	Kind           string    `db:"kind"`
	BlockHeight    int64     `db:"block_height"`
	TxIndex        int       `db:"tx_index"`
	Principal      string    `db:"principal"`
	Counterparty   string    `db:"counterparty"`
	ProductID      int64     `db:"product_id"`
	AuctionID      int64     `db:"auction_id"`
	Amount         int64     `db:"amount"`
	PreviousAmount int64     `db:"previous_amount"`
	Rating         int64     `db:"rating"`
	Name           string    `db:"name"`
	OccurredAt     time.Time `db:"occurred_at"`
}

// ErrInvalidEvent marks events that can never be stored, whatever the
// state of the database.
var ErrInvalidEvent = errors.New("invalid event")

func newEventRow(event *models.VaultEvent) (eventRow, error) {
	row := eventRow{
		EventID:      event.EventID,
		Kind:         string(event.Kind),
		TxIndex:      event.TxIndex,
		Principal:    event.Principal,
		Counterparty: event.Counterparty,
		Name:         event.Name,
		OccurredAt:   event.Timestamp.UTC(),
	}
	if row.EventID == "" {
		return eventRow{}, fmt.Errorf("%w: event id is required", ErrInvalidEvent)
	}
	for _, f := range []struct {
		dst  *int64
		src  uint64
		name string
	}{
		{&row.BlockHeight, event.BlockHeight, "block_height"},
		{&row.ProductID, event.ProductID, "product_id"},
		{&row.AuctionID, event.AuctionID, "auction_id"},
		{&row.Amount, event.Amount, "amount"},
		{&row.PreviousAmount, event.PreviousAmount, "previous_amount"},
		{&row.Rating, event.Rating, "rating"},
	} {
		if f.src > 1<<63-1 {
			return eventRow{}, fmt.Errorf("%w: %s %d overflows BIGINT", ErrInvalidEvent, f.name, f.src)
		}
		*f.dst = int64(f.src)
	}
	return row, nil
}

// bidFromEvent projects a bid_placed event into a bid record.
func bidFromEvent(event *models.VaultEvent) models.Bid {
	return models.Bid{
		EventID:     event.EventID,
		AuctionID:   event.AuctionID,
		Bidder:      event.Principal,
		Amount:      event.Amount,
		PreviousBid: event.PreviousAmount,
		BlockHeight: event.BlockHeight,
		Timestamp:   event.Timestamp.UTC(),
	}
}

// InsertEvent archives an event, projecting bids into the bids table. It
// reports false when the event was already archived (redelivery).
func (c *PostgresClient) InsertEvent(ctx context.Context, event *models.VaultEvent) (bool, error) {
	row, err := newEventRow(event)
	if err != nil {
		return false, err
	}

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.NamedExecContext(ctx, `
		INSERT INTO vault_events (
			event_id, kind, block_height, tx_index, principal, counterparty,
			product_id, auction_id, amount, previous_amount, rating, name, occurred_at
		) VALUES (
			:event_id, :kind, :block_height, :tx_index, :principal, :counterparty,
			:product_id, :auction_id, :amount, :previous_amount, :rating, :name, :occurred_at
		)
		ON CONFLICT (event_id) DO NOTHING
	`, row)
	if err != nil {
		return false, fmt.Errorf("failed to insert event: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	if event.Kind == models.EventBidPlaced {
		if err := insertBid(ctx, tx, bidFromEvent(event)); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit event: %w", err)
	}
	return true, nil
}

func insertBid(ctx context.Context, tx *sqlx.Tx, bid models.Bid) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO bids (event_id, auction_id, bidder, amount, previous_bid, block_height, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO NOTHING
	`,
		bid.EventID,
		int64(bid.AuctionID),
		bid.Bidder,
		int64(bid.Amount),
		int64(bid.PreviousBid),
		int64(bid.BlockHeight),
		bid.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bid: %w", err)
	}
	return nil
}

// BidHistory retrieves the newest bids of an auction, highest first.
func (c *PostgresClient) BidHistory(ctx context.Context, auctionID uint64, limit int) ([]models.Bid, error) {
	if limit <= 0 {
		limit = 50
	}
	var bids []models.Bid
	err := c.db.SelectContext(ctx, &bids, `
		SELECT event_id, auction_id, bidder, amount, previous_bid, block_height, timestamp
		FROM bids
		WHERE auction_id = $1
		ORDER BY block_height DESC, amount DESC
		LIMIT $2
	`, int64(auctionID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	return bids, nil
}

// CountEvents returns how many events of kind are archived; an empty kind counts all.
func (c *PostgresClient) CountEvents(ctx context.Context, kind models.EventKind) (int, error) {
	var n int
	var err error
	if kind == "" {
		err = c.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM vault_events`)
	} else {
		err = c.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM vault_events WHERE kind = $1`, string(kind))
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// Close closes the database connection
func (c *PostgresClient) Close() error {
	return c.db.Close()
}
