package db

import (
	"fmt"

	"github.com/zulandar/docket/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model in dependency order.
func AllModels() []any {
	return []any{
		&models.User{},
		&models.Project{},
		&models.Group{},
		&models.Membership{},
		&models.Template{},
		&models.TemplatePermission{},
		&models.State{},
		&models.StateTransition{},
		&models.StateResponsibleGroup{},
		&models.Field{},
		&models.ListItem{},
		&models.Issue{},
		&models.FieldValue{},
		&models.Dependency{},
		&models.Watcher{},
		&models.LastRead{},
		&models.Event{},
		&models.Change{},
		&models.Comment{},
		&models.File{},
		&models.StringValue{},
		&models.DecimalValue{},
		&models.TextValue{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// Reset drops every table. Used by "dk db init --reset".
func Reset(db *gorm.DB) error {
	all := AllModels()
	// Reverse order so referencing tables go first.
	for i := len(all) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(all[i]); err != nil {
			return fmt.Errorf("db: drop %T: %w", all[i], err)
		}
	}
	return nil
}
