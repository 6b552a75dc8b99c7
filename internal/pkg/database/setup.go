package database

import (
	"fmt"
	"time"

	"github.com/ManuelReschke/BudgetFox/app/models"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/config"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var DB *gorm.DB

// DSN builds the MySQL data source name. Times are stored and read as UTC.
func DSN(cfg config.DatabaseConfig) string {
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=UTC"
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Name,
	)
}

// SetupDatabase connects with retries and migrates the billing tables.
func SetupDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var err error
	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       DSN(cfg), // data source name
			DefaultStringSize:         256,      // default size for string fields
			DisableDatetimePrecision:  true,     // disable datetime precision, which not supported before MySQL 5.6
			DontSupportRenameIndex:    true,     // drop & create when rename index, rename index not supported before MySQL 5.7, MariaDB
			DontSupportRenameColumn:   true,     // `change` when rename column, rename column not supported before MySQL 8, MariaDB
			SkipInitializeWithVersion: false,    // auto configure based on currently MySQL version
		}), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if err == nil {
			if err = Migrate(DB); err != nil {
				return nil, err
			}
			return DB, nil
		}

		log.Warn().Err(err).Msgf("Failed to connect to database (try %d/%d)", i+1, maxRetries)
		if i < maxRetries-1 {
			log.Info().Msgf("Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}
	return nil, err
}

// Migrate creates or updates the tables owned by this service.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Subscription{},
		&models.BillingWebhookEvent{},
		&models.PaymentIntent{},
	)
}

func GetDB() *gorm.DB {
	return DB
}
