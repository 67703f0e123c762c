package session

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "cardgallery:session:"

// ErrInvalidSession 会话不存在、已过期或签名校验失败。
var ErrInvalidSession = errors.New("invalid session")

// Store 是基于 Redis 的服务端会话存储。
//
// 会话令牌的形式是 "<id>.<sig>"，id 是随机 32 字节的 hex，
// sig 是用服务端密钥对 id 做的 HMAC-SHA256。Redis 里只存 id → userID。
type Store struct {
	rdb    *redis.Client
	secret []byte
	ttl    time.Duration
}

// NewStore 创建会话存储。
func NewStore(rdb *redis.Client, secret string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{
		rdb:    rdb,
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Create 为 userID 建立新会话，返回要放进 cookie 的令牌。
func (s *Store) Create(ctx context.Context, userID uint) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	id := hex.EncodeToString(buf)

	if err := s.rdb.Set(ctx, keyPrefix+id, strconv.FormatUint(uint64(userID), 10), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return id + "." + s.sign(id), nil
}

// Get 校验令牌并返回对应的用户 ID。
func (s *Store) Get(ctx context.Context, token string) (uint, error) {
	id, ok := s.verify(token)
	if !ok {
		return 0, ErrInvalidSession
	}

	val, err := s.rdb.Get(ctx, keyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrInvalidSession
	}
	if err != nil {
		return 0, fmt.Errorf("load session: %w", err)
	}

	userID, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, ErrInvalidSession
	}
	return uint(userID), nil
}

// Destroy 删除会话。令牌非法时静默返回。
func (s *Store) Destroy(ctx context.Context, token string) error {
	id, ok := s.verify(token)
	if !ok {
		return nil
	}
	if err := s.rdb.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

func (s *Store) sign(id string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(id))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Store) verify(token string) (string, bool) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", false
	}
	if !hmac.Equal([]byte(parts[1]), []byte(s.sign(parts[0]))) {
		return "", false
	}
	return parts[0], true
}
