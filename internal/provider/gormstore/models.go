package gormstore

import (
	"time"

	"github.com/ermau/gablarski/internal/protocol"
)

// Account contains the login information specific to each registered user.
type Account struct {
	ID               uint64 `gorm:"primaryKey"`
	Username         string `gorm:"unique;not null"`
	Password         string `gorm:"not null"`
	RegistrationDate time.Time
	Banned           bool `gorm:"default:false"`
	Active           bool `gorm:"default:true"`
}

// BanRecord persists a user and/or IP ban.
type BanRecord struct {
	ID        uint64 `gorm:"primaryKey"`
	Username  string
	IPAddress string
	Created   time.Time
	// Duration in nanoseconds; 0 means permanent.
	Duration time.Duration
}

func (b *BanRecord) toBanInfo() protocol.BanInfo {
	return protocol.BanInfo{
		Username:  b.Username,
		IPAddress: b.IPAddress,
		Created:   b.Created,
		Duration:  b.Duration,
	}
}

// Channel persists one node of the channel tree.
type Channel struct {
	ID              uint64 `gorm:"primaryKey"`
	Name            string `gorm:"not null"`
	Description     string
	ParentChannelID int
	UserLimit       int
	ReadOnly        bool
	IsDefault       bool
}

func (c *Channel) toChannelInfo() protocol.ChannelInfo {
	return protocol.ChannelInfo{
		ChannelID:       int(c.ID),
		Name:            c.Name,
		Description:     c.Description,
		ParentChannelID: c.ParentChannelID,
		UserLimit:       c.UserLimit,
		ReadOnly:        c.ReadOnly,
	}
}

// PermissionRecord persists one permission entry for a user. UserID 0 holds
// the unauthenticated/guest default set.
type PermissionRecord struct {
	ID        uint64 `gorm:"primaryKey"`
	UserID    int    `gorm:"index"`
	ChannelID int
	Name      string
	Allowed   bool
}

func (p *PermissionRecord) toPermission() protocol.Permission {
	return protocol.Permission{
		Name:      protocol.PermissionName(p.Name),
		ChannelID: p.ChannelID,
		Allowed:   p.Allowed,
	}
}
