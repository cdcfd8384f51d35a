package gormstore

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/ermau/gablarski/internal/protocol"
	"github.com/ermau/gablarski/internal/provider"
)

// Login checks the accounts table for the specified credentials combination
// and validates that the account is accessible.
func (u *UserStore) Login(username, password string) (provider.LoginResult, error) {
	account, err := u.findAccount(username)
	if err != nil {
		return provider.LoginResult{State: protocol.LoginFailedUnknown}, err
	}

	if account == nil {
		return provider.LoginResult{State: protocol.LoginFailedUsername}, nil
	}
	if bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(password)) != nil {
		return provider.LoginResult{State: protocol.LoginFailedPassword}, nil
	}
	if account.Banned || !account.Active || u.nameBanned(username) {
		return provider.LoginResult{State: protocol.LoginFailedBanned}, nil
	}

	return provider.LoginResult{UserID: int(account.ID), State: protocol.LoginSucceeded}, nil
}

// GuestLogin issues an ephemeral negative id. Guest identities never touch
// the database.
func (u *UserStore) GuestLogin(nickname string) (provider.LoginResult, error) {
	if u.nameBanned(nickname) {
		return provider.LoginResult{State: protocol.LoginFailedBanned}, nil
	}

	u.guestMu.Lock()
	id := u.nextGuestID
	u.nextGuestID--
	u.guestMu.Unlock()

	return provider.LoginResult{UserID: id, State: protocol.LoginSucceeded}, nil
}

// Register creates a new account record with a hashed password.
func (u *UserStore) Register(username, password string) (protocol.RegisterResultState, error) {
	if username == "" {
		return protocol.RegisterFailedUsername, nil
	}
	if password == "" {
		return protocol.RegisterFailedPassword, nil
	}

	existing, err := u.findAccount(username)
	if err != nil {
		return protocol.RegisterFailedUnknown, err
	}
	if existing != nil {
		return protocol.RegisterFailedUsernameInUse, nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return protocol.RegisterFailedUnknown, err
	}

	account := &Account{
		Username:         username,
		Password:         string(hashed),
		RegistrationDate: time.Now(),
		Active:           true,
	}
	if err := u.store.db.Create(account).Error; err != nil {
		return protocol.RegisterFailedUnknown, err
	}
	return protocol.RegisterSucceeded, nil
}

func (u *UserStore) RegistrationMode() protocol.RegistrationMode {
	return u.registrationMode
}

// SetRegistrationMode overrides the default (Normal) registration mode.
func (u *UserStore) SetRegistrationMode(mode protocol.RegistrationMode) {
	u.registrationMode = mode
}

func (u *UserStore) UpdateSupported() bool {
	return true
}

func (u *UserStore) AddBan(ban protocol.BanInfo) error {
	record := &BanRecord{
		Username:  ban.Username,
		IPAddress: ban.IPAddress,
		Created:   ban.Created,
		Duration:  ban.Duration,
	}
	if record.Created.IsZero() {
		record.Created = time.Now()
	}
	return u.store.db.Create(record).Error
}

func (u *UserStore) RemoveBan(ban protocol.BanInfo) error {
	return u.store.db.
		Where("username = ? AND ip_address = ?", ban.Username, ban.IPAddress).
		Delete(&BanRecord{}).Error
}

func (u *UserStore) Bans() ([]protocol.BanInfo, error) {
	var records []BanRecord
	if err := u.store.db.Find(&records).Error; err != nil {
		return nil, err
	}

	bans := make([]protocol.BanInfo, 0, len(records))
	for i := range records {
		bans = append(bans, records[i].toBanInfo())
	}
	return bans, nil
}

// findAccount searches for an account with the specified username, returning
// the *Account instance if found or nil if there is no match.
func (u *UserStore) findAccount(username string) (*Account, error) {
	var account Account
	err := u.store.db.Where("username = ?", username).First(&account).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &account, nil
}

// nameBanned reports whether an unexpired ban record matches the name.
func (u *UserStore) nameBanned(username string) bool {
	var records []BanRecord
	if err := u.store.db.Where("username = ?", username).Find(&records).Error; err != nil {
		return false
	}
	for i := range records {
		if !records[i].toBanInfo().Expired() {
			return true
		}
	}
	return false
}
