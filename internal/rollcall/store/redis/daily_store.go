// Package redis keeps the daily device records in Redis so that several
// server processes share one view of which device checked in for whom.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store"
)

const (
	DefaultPrefix = "rollcall:daily:"
	// DefaultTTL outlives any calendar day in any timezone.
	DefaultTTL = 36 * time.Hour
)

// Key layout under the prefix:
//
//	rec:<hardware>  JSON DailyDeviceRecord
//	fp:<fingerprint> hardware signature of the record that knows it
//	index           sorted set of hardware signatures by last use (ms)
type DailyDeviceStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewDailyDeviceStore(client *redis.Client, prefix string, ttl time.Duration) *DailyDeviceStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &DailyDeviceStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *DailyDeviceStore) recKey(hw string) string { return s.prefix + "rec:" + hw }
func (s *DailyDeviceStore) fpKey(fp string) string  { return s.prefix + "fp:" + fp }
func (s *DailyDeviceStore) indexKey() string        { return s.prefix + "index" }

func (s *DailyDeviceStore) UsedSince(ctx context.Context, since time.Time) ([]store.DailyDeviceRecord, error) {
	hws, err := s.client.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("daily UsedSince index: %w", err)
	}
	if len(hws) == 0 {
		return nil, nil
	}

	keys := make([]string, len(hws))
	for i, hw := range hws {
		keys[i] = s.recKey(hw)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("daily UsedSince load: %w", err)
	}

	out := make([]store.DailyDeviceRecord, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec store.DailyDeviceRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("daily UsedSince decode: %w", err)
		}
		if !rec.LastUsedAt.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *DailyDeviceStore) Find(ctx context.Context, hardware, fingerprint string) (store.DailyDeviceRecord, bool, error) {
	rec, ok, err := s.load(ctx, hardware)
	if err != nil || ok || fingerprint == "" {
		return rec, ok, err
	}

	hw, err := s.client.Get(ctx, s.fpKey(fingerprint)).Result()
	if errors.Is(err, redis.Nil) {
		return store.DailyDeviceRecord{}, false, nil
	}
	if err != nil {
		return store.DailyDeviceRecord{}, false, fmt.Errorf("daily Find fingerprint: %w", err)
	}
	rec, ok, err = s.load(ctx, hw)
	if err != nil || !ok || !rec.HasFingerprint(fingerprint) {
		return store.DailyDeviceRecord{}, false, err
	}
	return rec, true, nil
}

func (s *DailyDeviceStore) load(ctx context.Context, hw string) (store.DailyDeviceRecord, bool, error) {
	if hw == "" {
		return store.DailyDeviceRecord{}, false, nil
	}
	raw, err := s.client.Get(ctx, s.recKey(hw)).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.DailyDeviceRecord{}, false, nil
	}
	if err != nil {
		return store.DailyDeviceRecord{}, false, fmt.Errorf("daily load: %w", err)
	}
	var rec store.DailyDeviceRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return store.DailyDeviceRecord{}, false, fmt.Errorf("daily decode: %w", err)
	}
	return rec, true, nil
}

// Put writes the record, its fingerprint pointers and its index entry in
// one transaction, and drops index entries older than the TTL.
func (s *DailyDeviceStore) Put(ctx context.Context, rec store.DailyDeviceRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("daily encode: %w", err)
	}
	cutoff := time.Now().Add(-s.ttl).UnixMilli()

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.recKey(rec.HardwareSignature), raw, s.ttl)
		for _, fp := range rec.Fingerprints {
			p.Set(ctx, s.fpKey(fp), rec.HardwareSignature, s.ttl)
		}
		p.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(rec.LastUsedAt.UnixMilli()), Member: rec.HardwareSignature})
		p.ZRemRangeByScore(ctx, s.indexKey(), "-inf", "("+strconv.FormatInt(cutoff, 10))
		p.Expire(ctx, s.indexKey(), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("daily Put: %w", err)
	}
	return nil
}

func (s *DailyDeviceStore) Delete(ctx context.Context, hardware string) error {
	rec, ok, err := s.load(ctx, hardware)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.recKey(hardware))
		p.ZRem(ctx, s.indexKey(), hardware)
		if ok {
			for _, fp := range rec.Fingerprints {
				p.Del(ctx, s.fpKey(fp))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("daily Delete: %w", err)
	}
	return nil
}

func (s *DailyDeviceStore) EvictFingerprint(ctx context.Context, fp string) (int, error) {
	n := 0
	for {
		rec, ok, err := s.Find(ctx, "", fp)
		if err != nil {
			return n, err
		}
		if !ok {
			break
		}
		if err := s.Delete(ctx, rec.HardwareSignature); err != nil {
			return n, err
		}
		n++
	}
	if err := s.client.Del(ctx, s.fpKey(fp)).Err(); err != nil {
		return n, fmt.Errorf("daily EvictFingerprint: %w", err)
	}
	return n, nil
}
