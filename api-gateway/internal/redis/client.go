package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Gideonite22/clarity-trend-vault/shared/models"
)

// Client wraps the Redis client with the auction mirror and event publishing.
type Client struct {
	client *redis.Client
	// Lua script for the monotonic compare-and-set of the bid mirror
	bidScript *redis.Script
}

// Options configures the connection.
type Options struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// mirrorScript only moves the mirror forward; the ledger has already ordered
// the bids, so a late write of an older bid must not overwrite a newer one.
const mirrorScript = `
	-- KEYS[1]: auction:{id}:highest_bid
	-- KEYS[2]: auction:{id}:highest_bidder
	-- ARGV[1]: accepted bid amount
	-- ARGV[2]: bidder principal

	local current_bid = redis.call('GET', KEYS[1])
	if not current_bid then
		current_bid = 0
	else
		current_bid = tonumber(current_bid)
	end

	local new_bid = tonumber(ARGV[1])
	if new_bid > current_bid then
		redis.call('SET', KEYS[1], ARGV[1])
		redis.call('SET', KEYS[2], ARGV[2])
		return {1, current_bid}
	end
	return {0, current_bid}
`

// NewClient creates a new Redis client and checks the connection.
func NewClient(opts Options) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{
		client:    rdb,
		bidScript: redis.NewScript(mirrorScript),
	}, nil
}

// MirrorResult is the outcome of a mirror update.
type MirrorResult struct {
	Updated     bool
	PreviousBid uint64
}

func bidKeys(auctionID uint64) []string {
	return []string{
		fmt.Sprintf("auction:%d:highest_bid", auctionID),
		fmt.Sprintf("auction:%d:highest_bidder", auctionID),
	}
}

// MirrorBid records an accepted bid unless the mirror already holds a higher one.
func (c *Client) MirrorBid(ctx context.Context, auctionID uint64, bidder string, amount uint64) (*MirrorResult, error) {
	result, err := c.bidScript.Run(ctx, c.client, bidKeys(auctionID), amount, bidder).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to execute mirror script: %w", err)
	}

	// Result is [updated_flag, previous_bid]
	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return nil, fmt.Errorf("unexpected script result format")
	}
	updated, ok1 := values[0].(int64)
	previous, ok2 := values[1].(int64)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("unexpected script result types")
	}

	return &MirrorResult{
		Updated:     updated == 1,
		PreviousBid: uint64(previous),
	}, nil
}

// GetAuctionBid retrieves the mirrored highest bid of an auction.
func (c *Client) GetAuctionBid(ctx context.Context, auctionID uint64) (models.BidMirror, error) {
	keys := bidKeys(auctionID)
	pipe := c.client.Pipeline()
	bidCmd := pipe.Get(ctx, keys[0])
	bidderCmd := pipe.Get(ctx, keys[1])

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return models.BidMirror{}, fmt.Errorf("failed to get auction bid: %w", err)
	}

	mirror := models.BidMirror{AuctionID: auctionID}
	if bidCmd.Err() == nil {
		bid, err := bidCmd.Uint64()
		if err != nil {
			return models.BidMirror{}, fmt.Errorf("invalid mirrored bid for auction %d: %w", auctionID, err)
		}
		mirror.HighestBid = bid
	}
	if bidderCmd.Err() == nil {
		mirror.HighestBidder = bidderCmd.Val()
	}
	return mirror, nil
}

// PublishEvent publishes an event to the Pub/Sub channel of topic.
// The broadcast service forwards it to websocket subscribers.
func (c *Client) PublishEvent(ctx context.Context, topic string, event *models.VaultEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return c.client.Publish(ctx, models.EventChannelPrefix+topic, payload).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}
