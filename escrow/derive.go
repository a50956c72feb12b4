package escrow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Seeds used to derive the deterministic addresses of a pool's accounts.
const (
	SeedMatchPool   = "match_pool"
	SeedPoolToken   = "pool_token"
	SeedUserDeposit = "user_deposit"
)

// DeriveAddress hashes the seeds into a stable account address. Each seed is
// length-prefixed so ("ab","c") and ("a","bc") never collide.
func DeriveAddress(seeds ...string) string {
	h := sha256.New()
	for _, s := range seeds {
		var n [4]byte
		l := len(s)
		n[0], n[1], n[2], n[3] = byte(l>>24), byte(l>>16), byte(l>>8), byte(l)
		h.Write(n[:])
		h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func PoolAddress(matchID string) string {
	return DeriveAddress(SeedMatchPool, matchID)
}

func FundAccountAddress(matchID string) string {
	return DeriveAddress(SeedPoolToken, matchID)
}

func UserDepositAddress(matchID, user string) string {
	return DeriveAddress(SeedUserDeposit, matchID, user)
}

// Digest returns the hex SHA-256 of v's JSON encoding. Used to detect
// unchanged account state between commits.
func Digest(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
