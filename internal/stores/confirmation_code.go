package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	confirmationRecordVersionV1 = 1
)

var (
	ErrConfirmationNotFound         = errors.New("confirmation code not found")
	ErrConfirmationExpired          = errors.New("confirmation code expired")
	ErrConfirmationMismatch         = errors.New("confirmation code mismatch")
	ErrConfirmationAttemptsExceeded = errors.New("confirmation attempts exceeded")
	ErrConfirmationBackend          = errors.New("confirmation backend unavailable")
)

// consumeConfirmationLua atomically performs GET→validate→DEL/SET on a
// confirmation record.
// KEYS[1] = record key
// ARGV[1] = provided hash (32 bytes)
// ARGV[2] = max attempts
// ARGV[3] = current unix timestamp
//
// Returns the record bytes on success, otherwise one of the error strings
// "not_found", "expired", "attempts_exceeded", "code_mismatch".
var consumeConfirmationLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local providedHash = ARGV[1]
local maxAttempts = tonumber(ARGV[2])
local nowUnix = tonumber(ARGV[3])

-- version(1) attempts(2 big-endian) expiresAt(8 big-endian) emailLen(2) email hash(32)
local version = string.byte(data, 1)
if version ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local attempts = string.byte(data, 2) * 256 + string.byte(data, 3)

local e0,e1,e2,e3,e4,e5,e6,e7 = string.byte(data, 4, 11)
local expiresAt = e0
for _, b in ipairs({e1,e2,e3,e4,e5,e6,e7}) do
  expiresAt = expiresAt * 256 + b
end

if nowUnix > expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

local emailLen = string.byte(data, 12) * 256 + string.byte(data, 13)
local hashOffset = 14 + emailLen
local storedHash = string.sub(data, hashOffset, hashOffset + 31)

if storedHash ~= providedHash then
  attempts = attempts + 1
  if attempts >= maxAttempts then
    redis.call('DEL', KEYS[1])
    return {err='attempts_exceeded'}
  end
  local newData = string.sub(data, 1, 1) .. string.char(math.floor(attempts / 256), attempts % 256) .. string.sub(data, 4)
  local ttlMs = redis.call('PTTL', KEYS[1])
  if ttlMs <= 0 then
    redis.call('DEL', KEYS[1])
    return {err='expired'}
  end
  redis.call('SET', KEYS[1], newData, 'PX', ttlMs)
  return {err='code_mismatch'}
end

redis.call('DEL', KEYS[1])
return data
`)

// ConfirmationRecord is a pending registration confirmation. Only the hash of
// the code is stored.
type ConfirmationRecord struct {
	Email     string
	CodeHash  [32]byte
	ExpiresAt int64
	Attempts  uint16
}

type ConfirmationCodeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewConfirmationCodeStore(redisClient redis.UniversalClient, prefix string) *ConfirmationCodeStore {
	if prefix == "" {
		prefix = "scc"
	}
	return &ConfirmationCodeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *ConfirmationCodeStore) key(email string) string {
	return s.prefix + ":" + email
}

// Save replaces any pending code for the same email.
func (s *ConfirmationCodeStore) Save(ctx context.Context, record *ConfirmationRecord, ttl time.Duration) error {
	encoded, err := encodeConfirmationRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(record.Email), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfirmationBackend, err)
	}
	return nil
}

func (s *ConfirmationCodeStore) Consume(
	ctx context.Context,
	email string,
	providedHash [32]byte,
	maxAttempts int,
) (*ConfirmationRecord, error) {
	result, err := consumeConfirmationLua.Run(ctx, s.redis,
		[]string{s.key(email)},
		string(providedHash[:]),
		maxAttempts,
		time.Now().Unix(),
	).Result()

	if err != nil {
		switch err.Error() {
		case "not_found":
			return nil, ErrConfirmationNotFound
		case "expired":
			return nil, ErrConfirmationExpired
		case "attempts_exceeded":
			return nil, ErrConfirmationAttemptsExceeded
		case "code_mismatch":
			return nil, ErrConfirmationMismatch
		default:
			return nil, fmt.Errorf("%w: %v", ErrConfirmationBackend, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrConfirmationBackend)
	}

	record, decErr := decodeConfirmationRecord([]byte(data))
	if decErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfirmationBackend, decErr)
	}

	if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
		return nil, ErrConfirmationMismatch
	}
	return record, nil
}

func encodeConfirmationRecord(record *ConfirmationRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(confirmationRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := writeString(&buf, record.Email); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeConfirmationRecord(data []byte) (*ConfirmationRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != confirmationRecordVersionV1 {
		return nil, errors.New("invalid confirmation record version")
	}

	record := &ConfirmationRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if record.Email, err = readString(reader); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}
	return record, nil
}
