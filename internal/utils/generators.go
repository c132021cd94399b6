package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateTransactionID returns a prefixed, sortable ledger row ID.
func GenerateTransactionID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999999))
	return fmt.Sprintf("txn_%d_%09d", timestamp, randomNum.Int64())
}

// GenerateStatID returns a prefixed ID for game stat rows.
func GenerateStatID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999))
	return fmt.Sprintf("stat_%d_%06d", timestamp, randomNum.Int64())
}
