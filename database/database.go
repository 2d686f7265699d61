package database

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yeremiapane/bar-order-app/config"
	"github.com/yeremiapane/bar-order-app/models"
	"github.com/yeremiapane/bar-order-app/utils"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open -> connect using the configured driver
func Open(cfg config.Database) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "sqlite" {
		// sqlite serialises writers anyway
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// Migrate -> create/upgrade all tables and the order number sequence row
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.MenuItem{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderSequence{},
		&models.DBChange{},
		&models.NotificationLog{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	seq := models.OrderSequence{Name: models.OrderNumberSequence}
	if err := db.Where(models.OrderSequence{Name: models.OrderNumberSequence}).FirstOrCreate(&seq).Error; err != nil {
		return fmt.Errorf("init order sequence: %w", err)
	}

	utils.InfoLogger.Println("AutoMigrate completed.")
	return nil
}

var defaultMenu = []models.MenuItem{
	{Name: "Old Fashioned", Category: "Classics", Description: "Stirred, spirit-forward, orange peel.", Ingredients: "Whiskey, demerara, Angostura bitters, orange peel"},
	{Name: "Martini", Category: "Classics", Description: "Built to order, as dirty as you like.", Ingredients: "Gin or vodka, dry vermouth, olives or lemon peel"},
	{Name: "Negroni", Category: "Classics", Description: "Equal parts, bitter and bright.", Ingredients: "Gin, Campari, sweet vermouth, orange"},
	{Name: "Margarita", Category: "Sours", Description: "Shaken with fresh lime.", Ingredients: "Tequila, lime, orange liqueur, salt"},
	{Name: "Whiskey Sour", Category: "Sours", Description: "Silky with egg white.", Ingredients: "Bourbon, lemon, simple syrup, egg white"},
	{Name: "Espresso Martini", Category: "After Dinner", Description: "Cold brew kick.", Ingredients: "Vodka, coffee liqueur, espresso"},
}

// SeedMenu -> insert the default menu when the table is empty
func SeedMenu(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.MenuItem{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	items := make([]models.MenuItem, len(defaultMenu))
	for i, item := range defaultMenu {
		item.ID = uuid.NewString()
		item.IsActive = true
		item.SortOrder = i + 1
		items[i] = item
	}
	if err := db.Create(&items).Error; err != nil {
		return fmt.Errorf("seed menu: %w", err)
	}
	utils.InfoLogger.Printf("Seeded %d menu items", len(items))
	return nil
}
