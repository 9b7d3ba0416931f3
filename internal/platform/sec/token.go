// Copyright (c) 2026 NerdHQ. All rights reserved.

package sec

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateSecureToken returns a hex-encoded random string of byteLength
// random bytes (so the string is 2*byteLength characters long).
//
// The output is suitable for bearer secrets: it comes from crypto/rand and
// carries no structure a client could exploit.
func GenerateSecureToken(byteLength int) (string, error) {
	buffer := make([]byte, byteLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("sec: failed to generate secure token: %w", err)
	}
	return hex.EncodeToString(buffer), nil
}
