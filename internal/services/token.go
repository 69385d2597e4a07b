package services

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Study IDs are short lowercase tokens that researchers hand-copy onto
// paper forms, so they stay small and stick to a-z. Uniqueness is enforced
// twice: the batch generator re-rolls collisions against the store, and the
// storage layer keeps a unique index on study_id.
const (
	studyIDAlphabet = "abcdefghijklmnopqrstuvwxyz"
	studyIDLength   = 6
)

// Tokens that happen to spell something rude get re-rolled before they are
// ever shown to a participant.
var blockedSubstrings = []string{
	"fuck", "shit", "cunt", "dick", "piss", "cock", "twat", "arse", "tits",
}

func NewStudyID() (string, error) {
	b := make([]byte, studyIDLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate study id: %w", err)
	}
	for i := range b {
		b[i] = studyIDAlphabet[int(b[i])%len(studyIDAlphabet)]
	}
	return string(b), nil
}

func cleanStudyID(id string) bool {
	for _, bad := range blockedSubstrings {
		if strings.Contains(id, bad) {
			return false
		}
	}
	return true
}

// NewTestID returns a server-assigned identifier for a stored test record.
func NewTestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
