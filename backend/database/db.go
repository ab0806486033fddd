package database

import (
	"fmt"

	"github.com/PhilHem/secureone/backend/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var DB *gorm.DB

// Init opens the gorm database for driver (sqlite or mysql), stores it in DB
// and migrates the users, files and log_entries tables.
func Init(driver, dsn string) error {
	db, err := Open(driver, dsn)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// Open connects and migrates without touching the package-level DB.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported gorm driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.File{}, &models.LogEntry{}); err != nil {
		return nil, fmt.Errorf("migrate %s database: %w", driver, err)
	}
	if driver == "mysql" {
		if err := binaryEmailCollation(db); err != nil {
			return nil, fmt.Errorf("migrate %s database: %w", driver, err)
		}
	}
	return db, nil
}

// binaryEmailCollation makes users.email compare byte for byte on mysql, whose
// default *_ci collation would fold case in lookups and the unique index.
func binaryEmailCollation(db *gorm.DB) error {
	return db.Exec("ALTER TABLE `users` MODIFY `email` VARCHAR(255) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL").Error
}
