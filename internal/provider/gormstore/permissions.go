package gormstore

import (
	"gorm.io/gorm"

	"github.com/ermau/gablarski/internal/protocol"
)

// GetPermissions returns the stored permission entries for a user. Guest and
// unauthenticated lookups (ids <= 0) resolve to the shared default set under
// user id 0.
func (p *PermissionStore) GetPermissions(userID int) ([]protocol.Permission, error) {
	if userID < 0 {
		userID = 0
	}

	var records []PermissionRecord
	if err := p.store.db.Where("user_id = ?", userID).Find(&records).Error; err != nil {
		return nil, err
	}

	permissions := make([]protocol.Permission, 0, len(records))
	for i := range records {
		permissions = append(permissions, records[i].toPermission())
	}
	return permissions, nil
}

// SetPermissions replaces the permission entries for a user.
func (p *PermissionStore) SetPermissions(userID int, permissions []protocol.Permission) error {
	if userID < 0 {
		userID = 0
	}

	err := p.store.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&PermissionRecord{}).Error; err != nil {
			return err
		}
		for _, permission := range permissions {
			record := &PermissionRecord{
				UserID:    userID,
				ChannelID: permission.ChannelID,
				Name:      string(permission.Name),
				Allowed:   permission.Allowed,
			}
			if err := tx.Create(record).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.notifyChange(userID)
	return nil
}

func (p *PermissionStore) SetChangeCallback(cb func(userID int)) {
	p.mu.Lock()
	p.callback = cb
	p.mu.Unlock()
}

func (p *PermissionStore) notifyChange(userID int) {
	p.mu.Lock()
	cb := p.callback
	p.mu.Unlock()

	if cb != nil {
		cb(userID)
	}
}
