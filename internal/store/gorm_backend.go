package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"whatsapp-autoresponder/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Setting keys used for the document scalars.
const (
	settingGlobalPause    = "GLOBAL_PAUSE"
	settingDefaultMessage = "DEFAULT_MESSAGE"
	settingSettings       = "SETTINGS"
	settingVotes          = "VOTES"
	settingGlobalMedia    = "GLOBAL_MEDIA"
)

// GormBackend stores the document across relational tables. Save rewrites
// every table inside one transaction so a reader never sees a half-written
// document.
type GormBackend struct {
	DB *gorm.DB
}

func NewGormBackend(db *gorm.DB) *GormBackend {
	return &GormBackend{DB: db}
}

func (b *GormBackend) Load(ctx context.Context) (models.Document, error) {
	db := b.DB.WithContext(ctx)
	doc := models.DefaultDocument()

	if err := db.Order("position ASC").Find(&doc.MenuOptions).Error; err != nil {
		return models.Document{}, fmt.Errorf("load menu options: %w", err)
	}
	if err := db.Order("position ASC").Find(&doc.ScheduledMessages).Error; err != nil {
		return models.Document{}, fmt.Errorf("load scheduled messages: %w", err)
	}

	var pauses []models.PauseEntry
	if err := db.Find(&pauses).Error; err != nil {
		return models.Document{}, fmt.Errorf("load pauses: %w", err)
	}
	for _, p := range pauses {
		doc.PauseRegistry[p.ContactID] = p.ExpiresAt
	}

	var history []models.ResponseHistory
	if err := db.Find(&history).Error; err != nil {
		return models.Document{}, fmt.Errorf("load response history: %w", err)
	}
	for _, h := range history {
		doc.ResponseHistory[h.ContactID] = h.Response
	}

	if err := db.Order("id DESC").Limit(models.MaxLogEntries).Find(&doc.MessageLog).Error; err != nil {
		return models.Document{}, fmt.Errorf("load message log: %w", err)
	}
	for i, j := 0, len(doc.MessageLog)-1; i < j; i, j = i+1, j-1 {
		doc.MessageLog[i], doc.MessageLog[j] = doc.MessageLog[j], doc.MessageLog[i]
	}

	var settings []models.SystemSetting
	if err := db.Find(&settings).Error; err != nil {
		return models.Document{}, fmt.Errorf("load settings: %w", err)
	}
	for _, s := range settings {
		if err := applySetting(&doc, s); err != nil {
			return models.Document{}, err
		}
	}

	doc.Normalize()
	return doc, nil
}

func applySetting(doc *models.Document, s models.SystemSetting) error {
	var target any
	switch s.Key {
	case settingGlobalPause:
		target = &doc.GlobalPause
	case settingDefaultMessage:
		doc.DefaultMessage = s.Value
		return nil
	case settingSettings:
		target = &doc.Settings
	case settingVotes:
		target = &doc.Votes
	case settingGlobalMedia:
		target = &doc.GlobalMedia
	default:
		return nil
	}
	if err := json.Unmarshal([]byte(s.Value), target); err != nil {
		return fmt.Errorf("decode setting %s: %w", s.Key, err)
	}
	return nil
}

func (b *GormBackend) Save(ctx context.Context, doc models.Document) error {
	return b.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		for _, model := range []any{
			&models.MenuOption{},
			&models.ScheduledMessage{},
			&models.PauseEntry{},
			&models.ResponseHistory{},
			&models.MessageLogEntry{},
		} {
			if err := all.Delete(model).Error; err != nil {
				return err
			}
		}

		if len(doc.MenuOptions) > 0 {
			opts := make([]models.MenuOption, len(doc.MenuOptions))
			for i, o := range doc.MenuOptions {
				o.Position = i
				opts[i] = o
			}
			if err := tx.Create(&opts).Error; err != nil {
				return fmt.Errorf("save menu options: %w", err)
			}
		}
		if len(doc.ScheduledMessages) > 0 {
			msgs := make([]models.ScheduledMessage, len(doc.ScheduledMessages))
			for i, m := range doc.ScheduledMessages {
				m.Position = i
				msgs[i] = m
			}
			if err := tx.Create(&msgs).Error; err != nil {
				return fmt.Errorf("save scheduled messages: %w", err)
			}
		}
		if len(doc.PauseRegistry) > 0 {
			pauses := make([]models.PauseEntry, 0, len(doc.PauseRegistry))
			for id, exp := range doc.PauseRegistry {
				pauses = append(pauses, models.PauseEntry{ContactID: id, ExpiresAt: exp})
			}
			if err := tx.Create(&pauses).Error; err != nil {
				return fmt.Errorf("save pauses: %w", err)
			}
		}
		if len(doc.ResponseHistory) > 0 {
			history := make([]models.ResponseHistory, 0, len(doc.ResponseHistory))
			for id, r := range doc.ResponseHistory {
				history = append(history, models.ResponseHistory{ContactID: id, Response: r})
			}
			if err := tx.Create(&history).Error; err != nil {
				return fmt.Errorf("save response history: %w", err)
			}
		}
		if len(doc.MessageLog) > 0 {
			entries := make([]models.MessageLogEntry, len(doc.MessageLog))
			for i, e := range doc.MessageLog {
				e.ID = 0
				entries[i] = e
			}
			if err := tx.CreateInBatches(&entries, 100).Error; err != nil {
				return fmt.Errorf("save message log: %w", err)
			}
		}

		settings, err := documentSettings(doc)
		if err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&settings).Error
	})
}

func documentSettings(doc models.Document) ([]models.SystemSetting, error) {
	out := []models.SystemSetting{{Key: settingDefaultMessage, Value: doc.DefaultMessage}}
	for key, v := range map[string]any{
		settingGlobalPause: doc.GlobalPause,
		settingSettings:    doc.Settings,
		settingVotes:       doc.Votes,
		settingGlobalMedia: doc.GlobalMedia,
	} {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode setting %s: %w", key, err)
		}
		out = append(out, models.SystemSetting{Key: key, Value: string(raw)})
	}
	return out, nil
}

// Migrate creates or updates the tables GormBackend writes to.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.MenuOption{},
		&models.ScheduledMessage{},
		&models.PauseEntry{},
		&models.ResponseHistory{},
		&models.MessageLogEntry{},
		&models.SystemSetting{},
	)
}

var errNoDB = errors.New("store: gorm backend has no database")

// Check verifies the backend can reach its database.
func (b *GormBackend) Check(ctx context.Context) error {
	if b.DB == nil {
		return errNoDB
	}
	sqlDB, err := b.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
