package outbox

import (
	"gorm.io/gorm"

	"github.com/angelmondragon/licensing-backend/pkg/db/models"
)

// DLQRepository stores rows the publisher gave up on.
type DLQRepository struct{}

func NewDLQRepository() *DLQRepository {
	return &DLQRepository{}
}

// InsertTx records entry on the claiming transaction, trimming the error to
// the same bound as outbox_events.last_error.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errTxRequired
	}
	if entry.ErrorMessage != nil {
		msg := truncate(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}
