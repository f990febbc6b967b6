package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/shouni/gemini-mask-kit/pkg/domain"
)

// RegionStore はセッション単位の追記専用の領域メタデータストアです。
// マスクを解析するたびに Append され、置き換えはしません。
// 最新の領域だけが必要な場合は、新しい編集セッションの開始時に Clear してください。
type RegionStore interface {
	Append(ctx context.Context, sessionID string, regions []domain.RegionInfo) error
	List(ctx context.Context, sessionID string) ([]domain.RegionInfo, error)
	Clear(ctx context.Context, sessionID string) error
}

// MemoryRegionStore はプロセス内メモリの RegionStore です。
type MemoryRegionStore struct {
	mu      sync.RWMutex
	regions map[string][]domain.RegionInfo
}

// NewMemoryRegionStore は空の MemoryRegionStore を返します。
func NewMemoryRegionStore() *MemoryRegionStore {
	return &MemoryRegionStore{regions: make(map[string][]domain.RegionInfo)}
}

func (s *MemoryRegionStore) Append(ctx context.Context, sessionID string, regions []domain.RegionInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regions[sessionID] = append(s.regions[sessionID], regions...)
	return nil
}

func (s *MemoryRegionStore) List(ctx context.Context, sessionID string) ([]domain.RegionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RegionInfo, len(s.regions[sessionID]))
	copy(out, s.regions[sessionID])
	return out, nil
}

func (s *MemoryRegionStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.regions, sessionID)
	return nil
}

// RedisRegionStore は Redis のリストに領域を JSON で追記します。
type RedisRegionStore struct {
	client *redis.Client
}

// NewRedisRegionStore は RedisRegionStore を生成します。
func NewRedisRegionStore(client *redis.Client) (*RedisRegionStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &RedisRegionStore{client: client}, nil
}

func regionKey(sessionID string) string {
	return "session:" + sessionID + ":regions"
}

func (s *RedisRegionStore) Append(ctx context.Context, sessionID string, regions []domain.RegionInfo) error {
	if len(regions) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(regions))
	for _, r := range regions {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		values = append(values, data)
	}
	if err := s.client.RPush(ctx, regionKey(sessionID), values...).Err(); err != nil {
		return fmt.Errorf("領域メタデータの追記に失敗しました: %w", err)
	}
	return nil
}

func (s *RedisRegionStore) List(ctx context.Context, sessionID string) ([]domain.RegionInfo, error) {
	items, err := s.client.LRange(ctx, regionKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("領域メタデータの取得に失敗しました: %w", err)
	}
	out := make([]domain.RegionInfo, 0, len(items))
	for _, item := range items {
		var r domain.RegionInfo
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			return nil, fmt.Errorf("領域メタデータが壊れています: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *RedisRegionStore) Clear(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, regionKey(sessionID)).Err()
}
