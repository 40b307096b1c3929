package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"namereg/internal/controller/commitreveal/models"
	id "namereg/pkg/domain"
	"namereg/pkg/platform/sentinel"
)

const (
	commitKeyPrefix  = "namereg:commit:"
	pendingKeyPrefix = "namereg:commit-pending:"
)

// Redis shares commit state across instances. Commits never expire on their
// own; a stale unrevealed commit is simply overwritten by its committer.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func commitKey(committer id.Address) string {
	return commitKeyPrefix + committer.String()
}

func pendingKey(hash id.Hash) string {
	return pendingKeyPrefix + hash.String()
}

func (s *Redis) Put(ctx context.Context, commit *models.Commit) error {
	key := commitKey(commit.Committer)
	payload, err := json.Marshal(commit)
	if err != nil {
		return fmt.Errorf("marshal commit: %w", err)
	}

	txn := func(tx *redis.Tx) error {
		taken, err := tx.Exists(ctx, pendingKey(commit.Hash)).Result()
		if err != nil {
			return fmt.Errorf("check pending hash: %w", err)
		}
		if taken > 0 {
			return sentinel.ErrAlreadyUsed
		}

		old, err := s.get(ctx, tx, commit.Committer)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if old != nil && !old.Revealed {
				pipe.Del(ctx, pendingKey(old.Hash))
			}
			pipe.Set(ctx, pendingKey(commit.Hash), commit.Committer.String(), 0)
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txn, key, pendingKey(commit.Hash))
	if errors.Is(err, redis.TxFailedErr) {
		return sentinel.ErrConflict
	}
	return err
}

func (s *Redis) Find(ctx context.Context, committer id.Address) (*models.Commit, error) {
	return s.get(ctx, s.client, committer)
}

func (s *Redis) MarkRevealed(ctx context.Context, committer id.Address) error {
	key := commitKey(committer)

	txn := func(tx *redis.Tx) error {
		commit, err := s.get(ctx, tx, committer)
		if err != nil {
			return err
		}
		commit.Revealed = true
		payload, err := json.Marshal(commit)
		if err != nil {
			return fmt.Errorf("marshal commit: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.Del(ctx, pendingKey(commit.Hash))
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txn, key)
	if errors.Is(err, redis.TxFailedErr) {
		return sentinel.ErrConflict
	}
	return err
}

func (s *Redis) get(ctx context.Context, c redis.Cmdable, committer id.Address) (*models.Commit, error) {
	raw, err := c.Get(ctx, commitKey(committer)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get commit: %w", err)
	}
	var commit models.Commit
	if err := json.Unmarshal(raw, &commit); err != nil {
		return nil, fmt.Errorf("unmarshal commit: %w", err)
	}
	return &commit, nil
}
