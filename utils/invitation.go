package utils

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"playboard/models"
)

const invitationCodeLength = 8

// NewInvitationCode returns a random 8-character code. Codes are opaque and
// single-use; callers must collision-check before persisting.
func NewInvitationCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:invitationCodeLength]
}

// GenerateInvitationCode produces a code that no existing team uses. The
// keyspace makes collisions vanishingly rare, so a handful of attempts is
// plenty before giving up.
func GenerateInvitationCode(db *gorm.DB) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		code := NewInvitationCode()

		var count int64
		if err := db.Model(&models.Team{}).Where("invitation_code = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not generate a unique invitation code")
}
