package auth

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"
)

// Argon2 parameters for station key derivation
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
)

// ConstantTimeCompareHashes compares two hex-encoded hash strings in constant time.
func ConstantTimeCompareHashes(a, b string) bool {
	aBytes := []byte(a)
	bBytes := []byte(b)

	if len(aBytes) != len(bBytes) {
		if len(aBytes) < len(bBytes) {
			aBytes = make([]byte, len(bBytes))
		} else {
			bBytes = make([]byte, len(aBytes))
		}
	}

	return subtle.ConstantTimeCompare(aBytes, bBytes) == 1
}

// HashStationKey hashes a station key using Argon2id with salt.
func HashStationKey(key string, salt []byte) string {
	hash := argon2.IDKey([]byte(key), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return hex.EncodeToString(hash)
}

// StationKeys holds the hashed keys of the security-desk stations.
type StationKeys struct {
	salt   []byte
	hashes map[uuid.UUID]string
}

// ParseStationKeys reads entries of the form "<station-uuid>=<argon2-hex>"
// separated by commas.
func ParseStationKeys(list, salt string) (*StationKeys, error) {
	if salt == "" {
		return nil, errors.New(msgStationSaltRequired)
	}
	keys := &StationKeys{salt: []byte(salt), hashes: make(map[uuid.UUID]string)}
	for _, entry := range strings.Split(list, stationEntrySeparator) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, hash, ok := strings.Cut(entry, stationPairSeparator)
		if !ok {
			return nil, fmt.Errorf(msgStationEntryFmt, entry)
		}
		stationID, err := uuid.Parse(strings.TrimSpace(id))
		if err != nil {
			return nil, fmt.Errorf(msgStationIDFmt, id, err)
		}
		hash = strings.ToLower(strings.TrimSpace(hash))
		if decoded, err := hex.DecodeString(hash); err != nil || len(decoded) != argon2KeyLen {
			return nil, fmt.Errorf(msgStationHashFmt, stationID)
		}
		keys.hashes[stationID] = hash
	}
	return keys, nil
}

func (k *StationKeys) Len() int {
	if k == nil {
		return 0
	}
	return len(k.hashes)
}

// Identify returns the station whose key matches. Every stored hash is
// compared so timing does not depend on which station matched.
func (k *StationKeys) Identify(key string) (uuid.UUID, bool) {
	if k.Len() == 0 || key == "" {
		return uuid.Nil, false
	}
	presented := HashStationKey(key, k.salt)
	match := uuid.Nil
	for id, hash := range k.hashes {
		if ConstantTimeCompareHashes(presented, hash) {
			match = id
		}
	}
	return match, match != uuid.Nil
}
