package gormstore

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ermau/gablarski/internal/protocol"
)

// ensureDefaultChannel guarantees the invariant that at least one channel
// always exists by creating a read-only lobby on first run.
func (c *ChannelStore) ensureDefaultChannel() error {
	var def Channel
	err := c.store.db.Where("is_default = ?", true).First(&def).Error
	if err == nil {
		c.defaultChannelID = int(def.ID)
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("error finding default channel: %w", err)
	}

	lobby := &Channel{
		Name:        "Lobby",
		Description: "Default channel",
		ReadOnly:    true,
		IsDefault:   true,
	}
	if err := c.store.db.Create(lobby).Error; err != nil {
		return fmt.Errorf("error creating default channel: %w", err)
	}
	c.defaultChannelID = int(lobby.ID)
	return nil
}

func (c *ChannelStore) GetChannels() ([]protocol.ChannelInfo, error) {
	var records []Channel
	if err := c.store.db.Order("id").Find(&records).Error; err != nil {
		return nil, err
	}

	channels := make([]protocol.ChannelInfo, 0, len(records))
	for i := range records {
		channels = append(channels, records[i].toChannelInfo())
	}
	return channels, nil
}

func (c *ChannelStore) DefaultChannel() (protocol.ChannelInfo, error) {
	var def Channel
	if err := c.store.db.Where("is_default = ?", true).First(&def).Error; err != nil {
		return protocol.ChannelInfo{}, err
	}
	return def.toChannelInfo(), nil
}

// SaveChannel creates or updates a channel record. Read-only channels can
// only be written by the provider itself, never through this path.
func (c *ChannelStore) SaveChannel(channel protocol.ChannelInfo) (protocol.ChannelInfo, protocol.ChannelEditResultState, error) {
	if channel.Name == "" {
		return channel, protocol.ChannelEditFailedInvalidName, nil
	}

	if channel.ChannelID == 0 {
		record := &Channel{
			Name:            channel.Name,
			Description:     channel.Description,
			ParentChannelID: channel.ParentChannelID,
			UserLimit:       channel.UserLimit,
		}
		if err := c.store.db.Create(record).Error; err != nil {
			return channel, protocol.ChannelEditFailedUnknown, err
		}
		c.notifyChange()
		return record.toChannelInfo(), protocol.ChannelEditSucceeded, nil
	}

	var existing Channel
	err := c.store.db.First(&existing, channel.ChannelID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return channel, protocol.ChannelEditFailedUnknownChannel, nil
	} else if err != nil {
		return channel, protocol.ChannelEditFailedUnknown, err
	}
	if existing.ReadOnly {
		return channel, protocol.ChannelEditFailedReadOnly, nil
	}

	existing.Name = channel.Name
	existing.Description = channel.Description
	existing.ParentChannelID = channel.ParentChannelID
	existing.UserLimit = channel.UserLimit
	if err := c.store.db.Save(&existing).Error; err != nil {
		return channel, protocol.ChannelEditFailedUnknown, err
	}

	c.notifyChange()
	return existing.toChannelInfo(), protocol.ChannelEditSucceeded, nil
}

func (c *ChannelStore) DeleteChannel(channelID int) (protocol.ChannelEditResultState, error) {
	var existing Channel
	err := c.store.db.First(&existing, channelID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return protocol.ChannelEditFailedUnknownChannel, nil
	} else if err != nil {
		return protocol.ChannelEditFailedUnknown, err
	}
	if existing.ReadOnly || existing.IsDefault {
		return protocol.ChannelEditFailedReadOnly, nil
	}

	var count int64
	if err := c.store.db.Model(&Channel{}).Count(&count).Error; err != nil {
		return protocol.ChannelEditFailedUnknown, err
	}
	if count <= 1 {
		return protocol.ChannelEditFailedLastChannel, nil
	}

	if err := c.store.db.Delete(&existing).Error; err != nil {
		return protocol.ChannelEditFailedUnknown, err
	}

	c.notifyChange()
	return protocol.ChannelEditSucceeded, nil
}

func (c *ChannelStore) UpdateSupported() bool {
	return true
}

func (c *ChannelStore) SetChangeCallback(cb func()) {
	c.mu.Lock()
	c.callback = cb
	c.mu.Unlock()
}

func (c *ChannelStore) notifyChange() {
	c.mu.Lock()
	cb := c.callback
	c.mu.Unlock()

	if cb != nil {
		cb()
	}
}
