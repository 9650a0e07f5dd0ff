package stores

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	userRecordVersion1 = 1
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
	ErrUserBackend  = errors.New("user backend unavailable")
)

// SecurityAnswer pairs an enrolled question with the hash of its answer.
type SecurityAnswer struct {
	Question   string
	AnswerHash string
}

// UserRecord is an enrolled account as the reference provider stores it.
type UserRecord struct {
	Subject      string
	Email        string
	UserType     string
	Group        string
	PasswordHash string
	Confirmed    bool
	Answers      [3]SecurityAnswer

	CipherCiphertext string
	CipherPlaintext  string
	CipherShift      uint8
}

type UserStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewUserStore(redisClient redis.UniversalClient, prefix string) *UserStore {
	if prefix == "" {
		prefix = "sus"
	}
	return &UserStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *UserStore) key(email string) string {
	return s.prefix + ":" + email
}

// Create stores a new account and fails with ErrUserExists when the email is
// taken.
func (s *UserStore) Create(ctx context.Context, record *UserRecord) error {
	encoded, err := encodeUserRecord(record)
	if err != nil {
		return err
	}
	ok, err := s.redis.SetNX(ctx, s.key(record.Email), encoded, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUserBackend, err)
	}
	if !ok {
		return ErrUserExists
	}
	return nil
}

func (s *UserStore) Get(ctx context.Context, email string) (*UserRecord, error) {
	data, err := s.redis.Get(ctx, s.key(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUserBackend, err)
	}
	return decodeUserRecord(data)
}

// MarkConfirmed flips the confirmation flag and sets the group assigned at
// confirmation time.
func (s *UserStore) MarkConfirmed(ctx context.Context, email, group string) (*UserRecord, error) {
	return s.update(ctx, email, func(record *UserRecord) {
		record.Confirmed = true
		record.Group = group
	})
}

// UpdatePasswordHash replaces the stored hash, used when hash parameters are
// upgraded after a successful verification.
func (s *UserStore) UpdatePasswordHash(ctx context.Context, email, hash string) error {
	_, err := s.update(ctx, email, func(record *UserRecord) {
		record.PasswordHash = hash
	})
	return err
}

func (s *UserStore) update(ctx context.Context, email string, mutate func(*UserRecord)) (*UserRecord, error) {
	const maxRetries = 4
	key := s.key(email)

	for i := 0; i < maxRetries; i++ {
		var updated *UserRecord
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			record, err := decodeUserRecord(data)
			if err != nil {
				return err
			}
			mutate(record)

			encoded, err := encodeUserRecord(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, 0)
				return nil
			})
			if err == nil {
				updated = record
			}
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, ErrUserNotFound
			}
			return nil, fmt.Errorf("%w: %v", ErrUserBackend, err)
		}
		return updated, nil
	}

	return nil, fmt.Errorf("%w: update contention", ErrUserBackend)
}

func encodeUserRecord(record *UserRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(userRecordVersion1)

	var confirmed byte
	if record.Confirmed {
		confirmed = 1
	}
	buf.WriteByte(confirmed)
	buf.WriteByte(record.CipherShift)

	fields := []string{
		record.Subject,
		record.Email,
		record.UserType,
		record.Group,
		record.PasswordHash,
		record.CipherCiphertext,
		record.CipherPlaintext,
	}
	for _, a := range record.Answers {
		fields = append(fields, a.Question, a.AnswerHash)
	}
	for _, f := range fields {
		if err := writeString(&buf, f); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeUserRecord(data []byte) (*UserRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != userRecordVersion1 {
		return nil, errors.New("invalid user record version")
	}

	record := &UserRecord{}
	confirmed, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	record.Confirmed = confirmed == 1
	if record.CipherShift, err = reader.ReadByte(); err != nil {
		return nil, err
	}

	targets := []*string{
		&record.Subject,
		&record.Email,
		&record.UserType,
		&record.Group,
		&record.PasswordHash,
		&record.CipherCiphertext,
		&record.CipherPlaintext,
	}
	for i := range record.Answers {
		targets = append(targets, &record.Answers[i].Question, &record.Answers[i].AnswerHash)
	}
	for _, t := range targets {
		if *t, err = readString(reader); err != nil {
			return nil, err
		}
	}
	return record, nil
}
