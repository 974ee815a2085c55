package directory

import (
	"context"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pariksha-io/pariksha/pkg/observability"
	"github.com/pariksha-io/pariksha/pkg/storage"
)

// CacheConfig tunes the two cache tiers
type CacheConfig struct {
	// L1Size is the maximum number of entries in the in-process tier
	L1Size int
	// TTL bounds how stale a cached user may be in either tier
	TTL time.Duration
}

// DefaultCacheConfig returns the settings used when none are provided
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		L1Size: 1024,
		TTL:    5 * time.Minute,
	}
}

// CachedStore wraps a Store with a two-tier read cache for user lookups.
// Tier one is an in-process expirable LRU; tier two is Redis, shared across
// instances, and skipped entirely when no Redis client is configured.
//
// Only GetUser, GetUserByEmail, and GetUserByUsername are cached; those are
// the lookups on the authentication and token-validation hot path. List and
// role/permission reads always go to the database.
//
// UpdateLastLogin deliberately does not invalidate: dropping the entry on
// every login would empty the cache exactly when it is hottest, and a stale
// last_login_at is harmless. Role and permission mutations purge tier one;
// Redis entries ride out their TTL, so a permission change can take up to
// TTL to reach other instances.
type CachedStore struct {
	Store

	l1      *lru.LRU[string, *User]
	redis   *storage.RedisClient
	metrics *observability.Metrics
	ttl     time.Duration
}

var _ Store = (*CachedStore)(nil)

// cacheEntry carries the password hash beside the user because User never
// serializes it. Without this, a Redis hit would hand back an empty hash and
// every password check against a cached user would fail.
type cacheEntry struct {
	User         *User  `json:"user"`
	PasswordHash string `json:"password_hash"`
}

// NewCachedStore wraps inner with the two-tier cache. redis and metrics may
// be nil.
func NewCachedStore(inner Store, redis *storage.RedisClient, metrics *observability.Metrics, config CacheConfig) *CachedStore {
	if config.L1Size <= 0 {
		config.L1Size = DefaultCacheConfig().L1Size
	}
	if config.TTL <= 0 {
		config.TTL = DefaultCacheConfig().TTL
	}

	return &CachedStore{
		Store:   inner,
		l1:      lru.NewLRU[string, *User](config.L1Size, nil, config.TTL),
		redis:   redis,
		metrics: metrics,
		ttl:     config.TTL,
	}
}

func userIDKey(id string) string       { return "user:id:" + id }
func userEmailKey(email string) string { return "user:email:" + email }
func userUsernameKey(u string) string  { return "user:username:" + u }

// cacheKeys returns every key a user is stored under, so one lookup warms
// the others and one invalidation clears them all.
func cacheKeys(user *User) []string {
	return []string{
		userIDKey(user.ID.String()),
		userEmailKey(user.Email),
		userUsernameKey(user.Username),
	}
}

// GetUser retrieves a user by ID, preferring the cache
func (c *CachedStore) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return c.lookup(ctx, userIDKey(id.String()), func() (*User, error) {
		return c.Store.GetUser(ctx, id)
	})
}

// GetUserByEmail retrieves a user by email, preferring the cache
func (c *CachedStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return c.lookup(ctx, userEmailKey(email), func() (*User, error) {
		return c.Store.GetUserByEmail(ctx, email)
	})
}

// GetUserByUsername retrieves a user by username, preferring the cache
func (c *CachedStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return c.lookup(ctx, userUsernameKey(username), func() (*User, error) {
		return c.Store.GetUserByUsername(ctx, username)
	})
}

func (c *CachedStore) lookup(ctx context.Context, key string, fetch func() (*User, error)) (*User, error) {
	if user, ok := c.l1.Get(key); ok {
		c.countHit("memory")
		return user, nil
	}
	c.countMiss("memory")

	if c.redis != nil {
		var entry cacheEntry
		// Redis failures degrade to a database read
		if found, err := c.redis.GetJSON(ctx, key, &entry); err == nil && found && entry.User != nil {
			c.countHit("redis")
			entry.User.PasswordHash = entry.PasswordHash
			c.fillL1(entry.User)
			return entry.User, nil
		}
		c.countMiss("redis")
	}

	user, err := fetch()
	if err != nil {
		return nil, err
	}

	c.fillL1(user)
	c.fillRedis(ctx, user)
	return user, nil
}

func (c *CachedStore) fillL1(user *User) {
	for _, key := range cacheKeys(user) {
		c.l1.Add(key, user)
	}
}

func (c *CachedStore) fillRedis(ctx context.Context, user *User) {
	if c.redis == nil {
		return
	}
	entry := cacheEntry{User: user, PasswordHash: user.PasswordHash}
	for _, key := range cacheKeys(user) {
		// Write failures just mean the next read hits the database
		_ = c.redis.SetJSON(ctx, key, entry, c.ttl)
	}
}

// invalidateUser drops every cached key for the user. The user is read
// through the inner store first because the email and username keys cannot
// be derived from the ID alone.
func (c *CachedStore) invalidateUser(ctx context.Context, id uuid.UUID) {
	keys := []string{userIDKey(id.String())}
	if user, err := c.Store.GetUser(ctx, id); err == nil {
		keys = cacheKeys(user)
	}

	for _, key := range keys {
		c.l1.Remove(key)
	}
	if c.redis != nil {
		_ = c.redis.Del(ctx, keys...)
	}
	c.countInvalidation()
}

// purge empties tier one after a role or permission mutation, since any
// cached user may embed the changed definition.
func (c *CachedStore) purge() {
	c.l1.Purge()
	c.countInvalidation()
}

// UpdateUser updates the user and drops its cache entries
func (c *CachedStore) UpdateUser(ctx context.Context, user *User) error {
	if err := c.Store.UpdateUser(ctx, user); err != nil {
		return err
	}
	c.invalidateUser(ctx, user.ID)
	return nil
}

// UpdatePassword replaces the password hash and drops the cache entries
func (c *CachedStore) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	if err := c.Store.UpdatePassword(ctx, id, passwordHash); err != nil {
		return err
	}
	c.invalidateUser(ctx, id)
	return nil
}

// SetUserActive flips the active flag and drops the cache entries, so a
// deactivation is seen by this instance immediately
func (c *CachedStore) SetUserActive(ctx context.Context, id uuid.UUID, active bool) error {
	if err := c.Store.SetUserActive(ctx, id, active); err != nil {
		return err
	}
	c.invalidateUser(ctx, id)
	return nil
}

// ReplaceUserRoles replaces the role set and drops the cache entries
func (c *CachedStore) ReplaceUserRoles(ctx context.Context, id uuid.UUID, roleIDs []int64) error {
	if err := c.Store.ReplaceUserRoles(ctx, id, roleIDs); err != nil {
		return err
	}
	c.invalidateUser(ctx, id)
	return nil
}

// DeleteUser deletes the user. Cache keys are captured before the delete
// because they cannot be recovered afterwards.
func (c *CachedStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	keys := []string{userIDKey(id.String())}
	if user, err := c.Store.GetUser(ctx, id); err == nil {
		keys = cacheKeys(user)
	}

	if err := c.Store.DeleteUser(ctx, id); err != nil {
		return err
	}

	for _, key := range keys {
		c.l1.Remove(key)
	}
	if c.redis != nil {
		_ = c.redis.Del(ctx, keys...)
	}
	c.countInvalidation()
	return nil
}

// UpdateRole updates a role and purges the in-process tier
func (c *CachedStore) UpdateRole(ctx context.Context, role *Role) error {
	if err := c.Store.UpdateRole(ctx, role); err != nil {
		return err
	}
	c.purge()
	return nil
}

// DeleteRole deletes a role and purges the in-process tier
func (c *CachedStore) DeleteRole(ctx context.Context, id int64) error {
	if err := c.Store.DeleteRole(ctx, id); err != nil {
		return err
	}
	c.purge()
	return nil
}

// AddPermissionToRole attaches a permission and purges the in-process tier
func (c *CachedStore) AddPermissionToRole(ctx context.Context, roleID, permissionID int64) error {
	if err := c.Store.AddPermissionToRole(ctx, roleID, permissionID); err != nil {
		return err
	}
	c.purge()
	return nil
}

// RemovePermissionFromRole detaches a permission and purges the in-process tier
func (c *CachedStore) RemovePermissionFromRole(ctx context.Context, roleID, permissionID int64) error {
	if err := c.Store.RemovePermissionFromRole(ctx, roleID, permissionID); err != nil {
		return err
	}
	c.purge()
	return nil
}

// ReplaceRolePermissions replaces a role's permission set and purges the
// in-process tier
func (c *CachedStore) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if err := c.Store.ReplaceRolePermissions(ctx, roleID, permissionIDs); err != nil {
		return err
	}
	c.purge()
	return nil
}

// UpdatePermission updates a permission and purges the in-process tier
func (c *CachedStore) UpdatePermission(ctx context.Context, permission *Permission) error {
	if err := c.Store.UpdatePermission(ctx, permission); err != nil {
		return err
	}
	c.purge()
	return nil
}

// DeletePermission deletes a permission and purges the in-process tier
func (c *CachedStore) DeletePermission(ctx context.Context, id int64) error {
	if err := c.Store.DeletePermission(ctx, id); err != nil {
		return err
	}
	c.purge()
	return nil
}

func (c *CachedStore) countHit(tier string) {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(tier).Inc()
	}
}

func (c *CachedStore) countMiss(tier string) {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues(tier).Inc()
	}
}

func (c *CachedStore) countInvalidation() {
	if c.metrics != nil {
		c.metrics.CacheInvalidationsTotal.Inc()
	}
}
