// Package idgen mints connection and room identifiers.
package idgen

import "github.com/google/uuid"

// ConnID returns a fresh unique connection identifier.
func ConnID() string {
	return uuid.New().String()
}
