package server

import (
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/ermau/gablarski/internal/protocol"
	"github.com/ermau/gablarski/internal/provider"
)

const permissionCacheTTL = 5 * time.Minute

// permissionResolver answers permission checks against the provider, caching
// per-user permission sets until the provider reports a change.
type permissionResolver struct {
	provider provider.PermissionsProvider
	cache    *gocache.Cache
	logger   *logrus.Logger
}

func newPermissionResolver(p provider.PermissionsProvider, logger *logrus.Logger) *permissionResolver {
	return &permissionResolver{
		provider: p,
		cache:    gocache.New(permissionCacheTTL, 10*time.Second),
		logger:   logger,
	}
}

// permissions returns the permission set for a user. Ids <= 0 resolve to the
// unauthenticated/guest default set. Provider failures resolve to an empty
// set, which denies everything.
func (r *permissionResolver) permissions(userID int) []protocol.Permission {
	if userID < 0 {
		userID = 0
	}

	key := strconv.Itoa(userID)
	if cached, ok := r.cache.Get(key); ok {
		return cached.([]protocol.Permission)
	}

	permissions, err := r.provider.GetPermissions(userID)
	if err != nil {
		r.logger.Warnf("error fetching permissions for user %d: %v", userID, err)
		return nil
	}

	r.cache.Set(key, permissions, gocache.DefaultExpiration)
	return permissions
}

// can resolves the effective permission for a (channel, user) pair. A
// channel-scoped entry overrides a global (channel 0) entry; absent both,
// the answer is deny.
func (r *permissionResolver) can(userID, channelID int, name protocol.PermissionName) bool {
	var global, scoped *protocol.Permission

	for _, permission := range r.permissions(userID) {
		if permission.Name != name {
			continue
		}
		p := permission
		switch p.ChannelID {
		case 0:
			global = &p
		case channelID:
			scoped = &p
		}
	}

	if scoped != nil {
		return scoped.Allowed
	}
	if global != nil {
		return global.Allowed
	}
	return false
}

// invalidate drops the cached set for a user, forcing the next check to hit
// the provider. A userID < 0 also maps to the guest set.
func (r *permissionResolver) invalidate(userID int) {
	if userID < 0 {
		userID = 0
	}
	r.cache.Delete(strconv.Itoa(userID))
}
