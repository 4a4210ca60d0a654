package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mkarpushin/papertrade/config"
	"github.com/mkarpushin/papertrade/internal/model"
	"github.com/mkarpushin/papertrade/utils"
	"github.com/redis/go-redis/v9"
)

// RedisSession binds opaque tokens to authenticated users. The binding
// expires server-side after cfg.SessionExpiration.
type RedisSession struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewRedisSession(redisClient *redis.Client, cfg *config.Config) *RedisSession {
	return &RedisSession{redis: redisClient, cfg: cfg}
}

func sessionKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}

func (r *RedisSession) Create(ctx context.Context, sess model.Session) (token string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "RedisSession.Create"

	slog.Debug("Create start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", sess.UserID))
	defer func() {
		if err != nil {
			slog.Error("Create failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("Create completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	sessJson, err := json.Marshal(sess)
	if err != nil {
		return "", errors.New("can't marshall session")
	}

	token = uuid.NewString()
	err = r.redis.Set(ctx, sessionKey(token), sessJson, r.cfg.SessionExpiration).Err()
	if err != nil {
		return "", err
	}

	return token, nil
}

func (r *RedisSession) Get(ctx context.Context, token string) (sess model.Session, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "RedisSession.Get"

	slog.Debug("Get start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		if err != nil && !errors.Is(err, ErrNotFound) {
			slog.Error("Get failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("Get completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	res, err := r.redis.Get(ctx, sessionKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Session{}, ErrNotFound
		}
		return model.Session{}, err
	}

	err = json.Unmarshal([]byte(res), &sess)
	if err != nil {
		return model.Session{}, errors.New("can't unmarshall session")
	}

	return sess, nil
}

func (r *RedisSession) Delete(ctx context.Context, token string) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "RedisSession.Delete"

	slog.Debug("Delete start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		if err != nil {
			slog.Error("Delete failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("Delete completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	return r.redis.Del(ctx, sessionKey(token)).Err()
}
