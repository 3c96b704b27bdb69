package migrate

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/licensing-backend/pkg/db/models"
)

// partialIndexes mirrors the partial unique indexes declared in the SQL migrations,
// which gorm tags cannot express.
var partialIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_activations_license_fingerprint_live
		ON activations (license_id, device_fingerprint) WHERE status <> 'DEACTIVATED'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_billing_keys_owner_default
		ON billing_keys (owner_id) WHERE is_default AND active`,
}

// Models lists every persisted model in dependency order.
func Models() []any {
	return []any{
		&models.Product{},
		&models.LicensePlan{},
		&models.License{},
		&models.Activation{},
		&models.RedeemCampaign{},
		&models.RedeemCode{},
		&models.RedeemRedemption{},
		&models.RedeemUserCampaignCounter{},
		&models.BillingKey{},
		&models.LicenseOrder{},
		&models.Subscription{},
		&models.SubscriptionPayment{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	}
}

// AutoMigrateModels builds the schema from the gorm models. Used for sqlite dev
// databases and tests; Postgres goes through the goose migrations.
func AutoMigrateModels(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return err
	}
	for _, stmt := range partialIndexes {
		if err := conn.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create partial index: %w", err)
		}
	}
	return nil
}
