// internal/room/registry.go
package room

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/jason-s-yu/quizboard/internal/auth"
	"github.com/jason-s-yu/quizboard/internal/cache"
	"github.com/jason-s-yu/quizboard/internal/game"
	"github.com/sirupsen/logrus"
)

const (
	// CodeAlphabet leaves out characters that are easy to misread (0/O, 1/I).
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CodeLength   = 5

	DefaultTTL           = 6 * time.Hour
	DefaultSweepInterval = time.Minute

	maxCodeAttempts = 32
)

// roomDeps are the collaborators every room of a registry shares.
type roomDeps struct {
	engine  *game.Engine
	journal cache.Journal
	log     *logrus.Logger
	now     func() time.Time
}

// Options configures a Registry. Zero values fall back to defaults.
type Options struct {
	TTL      time.Duration
	MaxRooms int // 0 means unlimited
	Engine   *game.Engine
	Journal  cache.Journal
	Logger   *logrus.Logger
	Now      func() time.Time
}

// Registry maps room codes to live rooms.
// Lock order is registry then room; no room method calls back into the registry.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	ttl      time.Duration
	maxRooms int
	deps     roomDeps
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Engine == nil {
		opts.Engine = game.NewEngine()
	}
	if opts.Journal == nil {
		opts.Journal = cache.NopJournal{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		rooms:    make(map[string]*Room),
		ttl:      opts.TTL,
		maxRooms: opts.MaxRooms,
		deps: roomDeps{
			engine:  opts.Engine,
			journal: opts.Journal,
			log:     opts.Logger,
			now:     opts.Now,
		},
	}
}

// NormalizeCode upper-cases and trims a user-typed room code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Create registers a new room with hostIdentity as its host. The host is not joined;
// the caller follows up with Join. An empty password leaves the room open.
func (reg *Registry) Create(hostIdentity, password string) (*Room, error) {
	if !ValidIdentity(hostIdentity) {
		return nil, ErrBadIdentity
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateFailed, err)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.maxRooms > 0 && len(reg.rooms) >= reg.maxRooms {
		reg.deps.log.Warnf("room limit of %d reached", reg.maxRooms)
		return nil, fmt.Errorf("%w: room limit reached", ErrCreateFailed)
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := newRoomCode()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCreateFailed, err)
		}
		if _, taken := reg.rooms[code]; taken {
			continue
		}
		r := newRoom(code, hostIdentity, hash, reg.deps)
		reg.rooms[code] = r
		r.log.WithField("host", hostIdentity).Info("room created")
		return r, nil
	}
	return nil, fmt.Errorf("%w: no free room code", ErrCreateFailed)
}

// Get looks up a room by code. Codes are matched case-insensitively.
func (reg *Registry) Get(code string) (*Room, error) {
	reg.mu.RLock()
	r, ok := reg.rooms[NormalizeCode(code)]
	reg.mu.RUnlock()
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// Delete removes a room and closes every connection still subscribed to it.
func (reg *Registry) Delete(code string) bool {
	code = NormalizeCode(code)

	reg.mu.Lock()
	r, ok := reg.rooms[code]
	if !ok {
		reg.mu.Unlock()
		return false
	}
	r.mu.Lock()
	conns := r.closeLocked()
	r.mu.Unlock()
	delete(reg.rooms, code)
	reg.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	reg.deps.log.WithField("room", code).Info("room deleted")
	return true
}

// Len returns the number of live rooms.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// Sweep deletes every room idle for longer than the TTL and returns their codes.
//
// Each room is checked and closed under its own lock while the registry lock is held,
// so a Join racing the sweep either lands before expiry (and keeps the room alive)
// or observes the room as closed and fails with room_not_found.
func (reg *Registry) Sweep() []string {
	now := reg.deps.now()
	var (
		expired []string
		conns   []*Connection
	)

	reg.mu.Lock()
	for code, r := range reg.rooms {
		r.mu.Lock()
		if now.Sub(r.lastActivityAt) > reg.ttl {
			conns = append(conns, r.closeLocked()...)
			delete(reg.rooms, code)
			expired = append(expired, code)
		}
		r.mu.Unlock()
	}
	reg.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	if len(expired) > 0 {
		reg.deps.log.WithField("rooms", expired).Infof("swept %d idle rooms", len(expired))
	}
	return expired
}

// Run sweeps on every tick of interval until ctx is done.
func (reg *Registry) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			reg.Sweep()
		}
	}
}

func newRoomCode() (string, error) {
	base := big.NewInt(int64(len(CodeAlphabet)))
	var sb strings.Builder
	sb.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", err
		}
		sb.WriteByte(CodeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}
