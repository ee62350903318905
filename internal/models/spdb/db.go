package spdb

import (
	"fmt"
	"sparsh/internal/models/gormzerologger"
	"sparsh/internal/models/spanalytics"
	"sparsh/internal/models/spconfig"
	"sparsh/internal/models/spimages"
	"sparsh/internal/models/spreviews"
	"sparsh/internal/models/spusers"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Models : tables créées ou migrées au démarrage
func Models() []any {
	return []any{
		&spusers.User{},
		&spimages.Image{},
		&spreviews.Review{},
		&spanalytics.Visitor{},
	}
}

// Open ouvre la base configurée (sqlite ou mysql) et migre le schéma
func Open(conf *spconfig.Config) (*gorm.DB, error) {
	gormConf := &gorm.Config{
		Logger:         gormzerologger.New(conf.Logger.Level, gormzerologger.WithSlowThreshold(conf.Database.SlowQuery)),
		TranslateError: true,
		// toutes les dates sont stockées en UTC pour que les comparaisons sqlite restent justes
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	var dialector gorm.Dialector
	switch conf.Database.Db {
	case "sqlite":
		dialector = sqlite.Open(conf.Database.Path)
	case "mysql":
		dialector = mysql.Open(conf.Database.Dsn)
	default:
		return nil, fmt.Errorf("le type de database doit etre sqlite ou mysql")
	}

	db, err := gorm.Open(dialector, gormConf)
	if err != nil {
		return nil, fmt.Errorf("connexion base de données: %w", err)
	}

	if conf.Database.Db == "sqlite" {
		// sqlite n'accepte qu'un écrivain à la fois
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("migration: %w", err)
	}
	return db, nil
}
