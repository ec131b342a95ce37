package database

import "docket/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Project{},
		&models.Item{},
		&models.ItemRelation{},
		&models.ChangeRequest{},
		&models.ItemHistory{},
		&models.QCDocumentApproval{},
		&models.QCDocumentRevision{},
		&models.Notification{},
		&models.DataFile{},
	}
}
