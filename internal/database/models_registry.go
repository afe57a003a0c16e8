package database

import "pixelgram/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Follow{},
		&models.Post{},
		&models.Like{},
		&models.Bookmark{},
		&models.Comment{},
		&models.Conversation{},
		&models.Message{},
	}
}
