package suppliers

import (
	"fmt"
	"time"
)

// CodePrefix prefixes generated supplier codes.
const CodePrefix = "NCC"

// Supplier represents a supplier entity
type Supplier struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FormatCode renders the sequential supplier code for seq, e.g. NCC-0007.
func FormatCode(seq int64) string {
	return fmt.Sprintf("%s-%04d", CodePrefix, seq)
}
