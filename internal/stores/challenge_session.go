package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	challengeSessionVersion1 = 1
)

// Challenge session steps as persisted.
const (
	ChallengeStepQuestion uint8 = 1
	ChallengeStepCipher   uint8 = 2
)

var (
	ErrChallengeSessionNotFound = errors.New("challenge session not found")
	ErrChallengeSessionExpired  = errors.New("challenge session expired")
	ErrChallengeSessionBackend  = errors.New("challenge session backend unavailable")
)

// ChallengeSession is the provider-side state behind one opaque handle.
type ChallengeSession struct {
	Email     string
	Step      uint8
	Question  string
	Expected  string
	Shift     uint8
	ExpiresAt int64
	Attempts  uint16
}

type ChallengeSessionStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewChallengeSessionStore(redisClient redis.UniversalClient, prefix string) *ChallengeSessionStore {
	if prefix == "" {
		prefix = "scs"
	}
	return &ChallengeSessionStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *ChallengeSessionStore) key(handle string) string {
	return s.prefix + ":" + handle
}

func (s *ChallengeSessionStore) Save(
	ctx context.Context,
	handle string,
	record *ChallengeSession,
	ttl time.Duration,
) error {
	encoded, err := encodeChallengeSession(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(handle), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeSessionBackend, err)
	}
	return nil
}

func (s *ChallengeSessionStore) Get(ctx context.Context, handle string) (*ChallengeSession, error) {
	data, err := s.redis.Get(ctx, s.key(handle)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrChallengeSessionBackend, err)
	}

	record, err := decodeChallengeSession(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(handle)).Result()
		return nil, ErrChallengeSessionExpired
	}
	return record, nil
}

// Delete reports whether the handle was still live. Callers that advance a
// session must treat false as a lost race and stop.
func (s *ChallengeSessionStore) Delete(ctx context.Context, handle string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(handle)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrChallengeSessionBackend, err)
	}
	return n > 0, nil
}

// RecordFailure counts a wrong answer. Once maxAttempts is reached the session
// is deleted and exceeded is true.
func (s *ChallengeSessionStore) RecordFailure(
	ctx context.Context,
	handle string,
	maxAttempts int,
) (bool, error) {
	const maxRetries = 4
	key := s.key(handle)

	for i := 0; i < maxRetries; i++ {
		var exceeded bool
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeChallengeSession(data)
			if err != nil {
				return err
			}

			ttl := time.Until(time.Unix(record.ExpiresAt, 0))
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrChallengeSessionExpired
			}

			record.Attempts++
			if int(record.Attempts) >= maxAttempts {
				exceeded = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			updated, err := encodeChallengeSession(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return false, ErrChallengeSessionNotFound
			}
			if errors.Is(err, ErrChallengeSessionExpired) {
				return false, err
			}
			return false, fmt.Errorf("%w: %v", ErrChallengeSessionBackend, err)
		}
		return exceeded, nil
	}

	return false, ErrChallengeSessionNotFound
}

func encodeChallengeSession(record *ChallengeSession) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(challengeSessionVersion1)
	buf.WriteByte(record.Step)
	buf.WriteByte(record.Shift)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	for _, s := range []string{record.Email, record.Question, record.Expected} {
		if err := writeString(&buf, s); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeChallengeSession(data []byte) (*ChallengeSession, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeSessionVersion1 {
		return nil, errors.New("invalid challenge session version")
	}

	record := &ChallengeSession{}
	if record.Step, err = reader.ReadByte(); err != nil {
		return nil, err
	}
	if record.Shift, err = reader.ReadByte(); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if record.Email, err = readString(reader); err != nil {
		return nil, err
	}
	if record.Question, err = readString(reader); err != nil {
		return nil, err
	}
	if record.Expected, err = readString(reader); err != nil {
		return nil, err
	}
	return record, nil
}
