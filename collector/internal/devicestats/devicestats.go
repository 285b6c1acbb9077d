// Package devicestats keeps per-device ingest activity in Redis so every
// collector instance sees the same view.
//
// Keys:
//
//	logship:devices                              - sorted set, device id scored by last batch (unix)
//	logship:device:{id}                          - hash: last_seen, last_ip, last_partition_key, batches, records, unusual
//	logship:device:{id}:hourly:{YYYYMMDDHH}      - records received that hour (expires 48h)
//	logship:device:{id}:daily:{YYYYMMDD}         - records received that day (expires 7d)
//	logship:device:{id}:ips:{YYYYMMDD}           - set of source addresses that day (expires 7d)
//	logship:device:{id}:collectors               - hash: collector instance -> last seen (expires 24h)
package devicestats

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyDevices = "logship:devices"
	keyPrefix  = "logship:device:"

	hourlyTTL     = 48 * time.Hour
	dailyTTL      = 7 * 24 * time.Hour
	collectorsTTL = 24 * time.Hour
)

// ErrUnknownDevice is returned by Get for a device never recorded.
var ErrUnknownDevice = errors.New("unknown device")

// Stats is the activity summary of one device.
type Stats struct {
	DeviceID         string            `json:"device_id"`
	LastSeen         *time.Time        `json:"last_seen,omitempty"`
	LastIP           string            `json:"last_ip,omitempty"`
	LastPartitionKey string            `json:"last_partition_key,omitempty"`
	Batches          int64             `json:"batches"`
	Records          int64             `json:"records"`
	Unusual          int64             `json:"unusual"`
	RecordsLastHour  int64             `json:"records_last_hour"`
	RecordsLast24h   int64             `json:"records_last_24h"`
	RecordsToday     int64             `json:"records_today"`
	SourceIPsToday   int64             `json:"source_ips_today"`
	Collectors       map[string]string `json:"collectors,omitempty"`
	RetrievedAt      time.Time         `json:"retrieved_at"`
}

// Usage accumulates the batches one device sent between flushes.
type Usage struct {
	DeviceID         string
	Batches          int64
	Records          int64
	Unusual          int64
	LastPartitionKey string
	LastIP           string
	IPs              map[string]struct{}
}

func NewUsage(deviceID string) *Usage {
	return &Usage{DeviceID: deviceID, IPs: make(map[string]struct{})}
}

// Add folds one accepted batch into u.
func (u *Usage) Add(records, unusual int, partitionKey, ip string) {
	u.Batches++
	u.Records += int64(records)
	u.Unusual += int64(unusual)
	if partitionKey != "" {
		u.LastPartitionKey = partitionKey
	}
	if ip != "" {
		u.IPs[ip] = struct{}{}
		u.LastIP = ip
	}
}

func (u *Usage) merge(o *Usage) {
	u.Batches += o.Batches
	u.Records += o.Records
	u.Unusual += o.Unusual
	if u.LastPartitionKey == "" {
		u.LastPartitionKey = o.LastPartitionKey
	}
	if u.LastIP == "" {
		u.LastIP = o.LastIP
	}
	for ip := range o.IPs {
		u.IPs[ip] = struct{}{}
	}
}

type Client struct {
	redis      *redis.Client
	instanceID string
	now        func() time.Time
}

// NewClient connects to redisURL. instanceID names this collector in
// the per-device collectors hash.
func NewClient(redisURL, instanceID string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewClientFromRedis(client, instanceID), nil
}

func NewClientFromRedis(client *redis.Client, instanceID string) *Client {
	return &Client{redis: client, instanceID: instanceID, now: time.Now}
}

func deviceKey(id string, parts ...string) string {
	key := keyPrefix + id
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// Flush writes u in a single pipeline.
func (c *Client) Flush(ctx context.Context, u *Usage) error {
	if u.Batches == 0 {
		return nil
	}

	now := c.now()
	nowUnix := strconv.FormatInt(now.Unix(), 10)
	hourly := deviceKey(u.DeviceID, "hourly", now.Format("2006010215"))
	daily := deviceKey(u.DeviceID, "daily", now.Format("20060102"))
	ips := deviceKey(u.DeviceID, "ips", now.Format("20060102"))
	collectors := deviceKey(u.DeviceID, "collectors")
	summary := deviceKey(u.DeviceID)

	pipe := c.redis.TxPipeline()

	fields := map[string]interface{}{"last_seen": nowUnix}
	if u.LastIP != "" {
		fields["last_ip"] = u.LastIP
	}
	if u.LastPartitionKey != "" {
		fields["last_partition_key"] = u.LastPartitionKey
	}
	pipe.HSet(ctx, summary, fields)
	pipe.HIncrBy(ctx, summary, "batches", u.Batches)
	pipe.HIncrBy(ctx, summary, "records", u.Records)
	pipe.HIncrBy(ctx, summary, "unusual", u.Unusual)

	pipe.IncrBy(ctx, hourly, u.Records)
	pipe.Expire(ctx, hourly, hourlyTTL)
	pipe.IncrBy(ctx, daily, u.Records)
	pipe.Expire(ctx, daily, dailyTTL)

	if len(u.IPs) > 0 {
		members := make([]interface{}, 0, len(u.IPs))
		for ip := range u.IPs {
			members = append(members, ip)
		}
		pipe.SAdd(ctx, ips, members...)
		pipe.Expire(ctx, ips, dailyTTL)
	}

	pipe.HSet(ctx, collectors, c.instanceID, nowUnix)
	pipe.Expire(ctx, collectors, collectorsTTL)

	pipe.ZAdd(ctx, keyDevices, redis.Z{Score: float64(now.Unix()), Member: u.DeviceID})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flush device stats: %w", err)
	}
	return nil
}

// Get returns the activity summary of deviceID.
func (c *Client) Get(ctx context.Context, deviceID string) (*Stats, error) {
	now := c.now()

	pipe := c.redis.Pipeline()
	mainCmd := pipe.HGetAll(ctx, deviceKey(deviceID))
	hourly := make([]*redis.StringCmd, 24)
	for i := range hourly {
		t := now.Add(-time.Duration(i) * time.Hour)
		hourly[i] = pipe.Get(ctx, deviceKey(deviceID, "hourly", t.Format("2006010215")))
	}
	todayCmd := pipe.Get(ctx, deviceKey(deviceID, "daily", now.Format("20060102")))
	ipsCmd := pipe.SCard(ctx, deviceKey(deviceID, "ips", now.Format("20060102")))
	collectorsCmd := pipe.HGetAll(ctx, deviceKey(deviceID, "collectors"))

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get device stats: %w", err)
	}

	fields, err := mainCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("get device stats: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrUnknownDevice
	}

	stats := &Stats{
		DeviceID:         deviceID,
		LastIP:           fields["last_ip"],
		LastPartitionKey: fields["last_partition_key"],
		Collectors:       make(map[string]string),
		RetrievedAt:      now.UTC(),
	}
	if unix, err := strconv.ParseInt(fields["last_seen"], 10, 64); err == nil {
		t := time.Unix(unix, 0).UTC()
		stats.LastSeen = &t
	}
	stats.Batches, _ = strconv.ParseInt(fields["batches"], 10, 64)
	stats.Records, _ = strconv.ParseInt(fields["records"], 10, 64)
	stats.Unusual, _ = strconv.ParseInt(fields["unusual"], 10, 64)

	for i, cmd := range hourly {
		if v, err := cmd.Int64(); err == nil {
			if i == 0 {
				stats.RecordsLastHour = v
			}
			stats.RecordsLast24h += v
		}
	}
	if v, err := todayCmd.Int64(); err == nil {
		stats.RecordsToday = v
	}
	if v, err := ipsCmd.Result(); err == nil {
		stats.SourceIPsToday = v
	}
	if instances, err := collectorsCmd.Result(); err == nil {
		for instance, seen := range instances {
			if unix, err := strconv.ParseInt(seen, 10, 64); err == nil {
				stats.Collectors[instance] = time.Unix(unix, 0).UTC().Format(time.RFC3339)
			}
		}
	}
	return stats, nil
}

// Active returns the devices that sent a batch within the last window,
// most recent first.
func (c *Client) Active(ctx context.Context, window time.Duration) ([]string, error) {
	cutoff := c.now().Add(-window).Unix()
	ids, err := c.redis.ZRevRangeByScore(ctx, keyDevices, &redis.ZRangeBy{
		Min: strconv.FormatInt(cutoff, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list active devices: %w", err)
	}
	return ids, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.redis.Close()
}
