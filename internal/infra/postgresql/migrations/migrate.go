package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/sendqueue/internal/repository"
	"gorm.io/gorm"
)

// Migrate creates the shared tables. Per-campaign queue tables are not
// migrated here; the queue materializer creates and drops them at runtime.
func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, Migrations())
	return m.Migrate()
}

func Migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		createCampaigns(),
		createSubscribers(),
		createDelivery(),
		createWarmupPlans(),
	}
}

func createCampaigns() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_campaigns",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(
				&repository.CampaignModel{},
				&repository.CampaignOptionModel{},
				&repository.CampaignOpenUnopenFilterModel{},
			); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns (status)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				&repository.CampaignOpenUnopenFilterModel{},
				&repository.CampaignOptionModel{},
				&repository.CampaignModel{},
			)
		},
	}
}

func createSubscribers() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_subscribers",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(
				&repository.SubscriberModel{},
				&repository.SegmentSubscriberModel{},
				&repository.CampaignOpenModel{},
			); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_list_subscribers_list_status ON list_subscribers (list_id, status)`,
				`CREATE INDEX IF NOT EXISTS idx_campaign_track_open_subscriber_campaign ON campaign_track_open (subscriber_id, campaign_id)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				&repository.CampaignOpenModel{},
				&repository.SegmentSubscriberModel{},
				&repository.SubscriberModel{},
			)
		},
	}
}

func createDelivery() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_delivery",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(
				&repository.DeliveryServerModel{},
				&repository.DeliveryLogModel{},
				&repository.DeliveryServerUsageLogModel{},
			); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_campaign_delivery_logs_campaign_status ON campaign_delivery_logs (campaign_id, status, subscriber_id)`,
				`CREATE INDEX IF NOT EXISTS idx_delivery_server_usage_logs_server_created ON delivery_server_usage_logs (server_id, created_at)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				&repository.DeliveryServerUsageLogModel{},
				&repository.DeliveryLogModel{},
				&repository.DeliveryServerModel{},
			)
		},
	}
}

func createWarmupPlans() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_warmup_plans",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&repository.WarmupPlanModel{},
				&repository.WarmupPlanScheduleModel{},
				&repository.WarmupPlanScheduleLogModel{},
			)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				&repository.WarmupPlanScheduleLogModel{},
				&repository.WarmupPlanScheduleModel{},
				&repository.WarmupPlanModel{},
			)
		},
	}
}
