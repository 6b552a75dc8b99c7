package database

import (
	"testing"

	"github.com/ManuelReschke/BudgetFox/internal/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		User:     "budget",
		Password: "s3cret",
		Host:     "db",
		Port:     "3307",
		Name:     "budgetfox",
	})
	assert.Equal(t, "budget:s3cret@tcp(db:3307)/budgetfox?charset=utf8mb4&parseTime=True&loc=UTC", dsn)
}
