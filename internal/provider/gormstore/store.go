// Package gormstore implements the provider contracts on top of a gorm
// database, using sqlite by default or postgres when configured.
package gormstore

import (
	"fmt"
	"sync"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ermau/gablarski/internal/core"
	"github.com/ermau/gablarski/internal/protocol"
)

// Store owns the database handle shared by the three provider facets.
type Store struct {
	db *gorm.DB

	users       *UserStore
	channels    *ChannelStore
	permissions *PermissionStore
}

// Open connects to the configured database, migrates the schema, and makes
// sure the default channel exists.
func Open(cfg *core.Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Database.Engine {
	case "sqlite":
		dialector = sqlite.Open(cfg.Database.Filename)
	case "postgres":
		dialector = postgres.Open(cfg.DatabaseURL())
	default:
		return nil, fmt.Errorf("unsupported database engine: %s", cfg.Database.Engine)
	}

	// By default only log errors but enable full SQL query prints-to-console
	// with debug mode.
	log := logger.Default.LogMode(logger.Error)
	if cfg.Debugging.DatabaseLoggingEnabled {
		log = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: log})
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if err := db.AutoMigrate(&Account{}, &BanRecord{}, &Channel{}, &PermissionRecord{}); err != nil {
		return nil, fmt.Errorf("error auto migrating db: %w", err)
	}

	s := &Store{db: db}
	s.users = &UserStore{
		store:            s,
		registrationMode: protocol.RegistrationNormal,
		nextGuestID:      -1,
	}
	s.channels = &ChannelStore{store: s}
	s.permissions = &PermissionStore{store: s}

	if err := s.channels.ensureDefaultChannel(); err != nil {
		return nil, err
	}
	return s, nil
}

// Users returns the UserProvider facet.
func (s *Store) Users() *UserStore { return s.users }

// Channels returns the ChannelProvider facet.
func (s *Store) Channels() *ChannelStore { return s.channels }

// Permissions returns the PermissionsProvider facet.
func (s *Store) Permissions() *PermissionStore { return s.permissions }

func (s *Store) Close() error {
	database, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("error while getting current connection: %w", err)
	}
	if err := database.Close(); err != nil {
		return fmt.Errorf("error while closing database connection: %w", err)
	}
	return nil
}

// UserStore is the UserProvider facet of a Store.
type UserStore struct {
	store            *Store
	registrationMode protocol.RegistrationMode

	// Ephemeral guest ids count down from -1. They are never persisted.
	guestMu     sync.Mutex
	nextGuestID int
}

// ChannelStore is the ChannelProvider facet of a Store.
type ChannelStore struct {
	store *Store

	mu               sync.Mutex
	callback         func()
	defaultChannelID int
}

// PermissionStore is the PermissionsProvider facet of a Store.
type PermissionStore struct {
	store *Store

	mu       sync.Mutex
	callback func(userID int)
}
