// internal/room/room_test.go
package room

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/quizboard/internal/cache"
	"github.com/jason-s-yu/quizboard/internal/game"
	"github.com/jason-s-yu/quizboard/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock shared by a registry and its rooms.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeJournal collects published records instead of sending them to Redis.
type fakeJournal struct {
	records chan cache.ActionRecord
}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{records: make(chan cache.ActionRecord, 64)}
}

func (j *fakeJournal) Publish(_ context.Context, rec cache.ActionRecord) error {
	j.records <- rec
	return nil
}

func (j *fakeJournal) next(t *testing.T) cache.ActionRecord {
	t.Helper()
	select {
	case rec := <-j.records:
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for journal record")
		return cache.ActionRecord{}
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestRegistry(t *testing.T, opts Options) *Registry {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	return NewRegistry(opts)
}

// hostedRoom creates a room and joins its host on a fresh connection.
func hostedRoom(t *testing.T, reg *Registry, password string) (*Room, *Connection) {
	t.Helper()
	rm, err := reg.Create("host-1", password)
	require.NoError(t, err)
	conn := NewConnection(8)
	res, err := rm.Join(JoinRequest{Identity: "host-1", DisplayName: "Quizmaster"}, conn)
	require.NoError(t, err)
	require.True(t, res.IsHost)
	return rm, conn
}

func intp(v int) *int { return &v }

func TestCreateAndGet(t *testing.T) {
	reg := newTestRegistry(t, Options{})

	rm, err := reg.Create("host-1", "")
	require.NoError(t, err)
	require.Len(t, rm.Code, CodeLength)
	for _, ch := range rm.Code {
		assert.True(t, strings.ContainsRune(CodeAlphabet, ch), "unexpected code character %q", ch)
	}
	assert.Equal(t, "host-1", rm.HostIdentity())
	assert.Equal(t, 1, reg.Len())

	got, err := reg.Get("  " + strings.ToLower(rm.Code) + " ")
	require.NoError(t, err)
	assert.Same(t, rm, got)

	_, err = reg.Get("00000")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Equal(t, "room_not_found", game.CodeOf(err))
}

func TestCreateGeneratesDistinctCodes(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		rm, err := reg.Create("host-1", "")
		require.NoError(t, err)
		require.False(t, seen[rm.Code], "duplicate code %s", rm.Code)
		seen[rm.Code] = true
	}
	assert.Equal(t, 200, reg.Len())
}

func TestCreateValidation(t *testing.T) {
	reg := newTestRegistry(t, Options{MaxRooms: 1})

	_, err := reg.Create("", "")
	assert.ErrorIs(t, err, ErrBadIdentity)
	_, err = reg.Create("has space", "")
	assert.ErrorIs(t, err, ErrBadIdentity)

	_, err = reg.Create("host-1", "")
	require.NoError(t, err)
	_, err = reg.Create("host-2", "")
	assert.ErrorIs(t, err, ErrCreateFailed)
	assert.Equal(t, "create_failed", game.CodeOf(err))
}

func TestNewRoomDefaults(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	rm, _ := hostedRoom(t, reg, "")

	s := rm.State()
	assert.Equal(t, models.PhaseLobby, s.Phase)
	assert.Equal(t, 5, s.Board.Cols)
	assert.Equal(t, 5, s.Board.Rows)
	require.Len(t, s.Scores, 2)
	assert.Zero(t, s.Scores[0].Score)
	assert.Zero(t, s.Scores[1].Score)

	p, ok := rm.Participant("host-1")
	require.True(t, ok)
	assert.Equal(t, models.RoleHost, p.Role)
	assert.Equal(t, "Quizmaster", p.DisplayName)
}

func TestOnlyHostCanMutate(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	rm, _ := hostedRoom(t, reg, "")
	_, err := rm.Join(JoinRequest{Identity: "player-1", DisplayName: "Ann"}, nil)
	require.NoError(t, err)

	before := rm.State()
	actions := []game.Action{
		{Type: game.ActionStart},
		{Type: game.ActionResize, Cols: intp(3), Rows: intp(3)},
		{Type: game.ActionScoreDelta, TeamID: before.Scores[0].ID, Delta: intp(100)},
		{Type: game.ActionResetUsed},
	}
	for _, a := range actions {
		for _, who := range []string{"player-1", "stranger", ""} {
			next, err := rm.Apply(who, a)
			assert.Nil(t, next)
			assert.ErrorIs(t, err, game.ErrForbidden, "%s by %q", a.Type, who)
		}
	}
	assert.ErrorIs(t, rm.SetPassword("player-1", "secret"), game.ErrForbidden)

	assert.Same(t, before, rm.State())
	assert.False(t, rm.Summary().PasswordProtected)
}

func TestHostApplySwapsState(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	rm, _ := hostedRoom(t, reg, "")
	before := rm.State()

	next, err := rm.Apply("host-1", game.Action{Type: game.ActionStart})
	require.NoError(t, err)
	assert.Same(t, next, rm.State())
	assert.Equal(t, models.PhaseGame, next.Phase)
	assert.Equal(t, models.PhaseLobby, before.Phase, "published state must never change")

	_, err = rm.Apply("host-1", game.Action{Type: "explode"})
	assert.Equal(t, "unknown_action", game.CodeOf(err))
	assert.Same(t, next, rm.State())
}

func TestJoinPassword(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	rm, _ := hostedRoom(t, reg, "letmein")
	assert.True(t, rm.Summary().PasswordProtected)

	_, err := rm.Join(JoinRequest{Identity: "player-1", Password: "wrong"}, nil)
	assert.ErrorIs(t, err, ErrWrongPassword)
	assert.Equal(t, game.KindForbidden, game.KindOf(err))
	_, ok := rm.Participant("player-1")
	assert.False(t, ok)

	// Same caller retries with the right password.
	res, err := rm.Join(JoinRequest{Identity: "player-1", Password: "letmein"}, nil)
	require.NoError(t, err)
	assert.False(t, res.IsHost)
	assert.Equal(t, models.RolePlayer, res.Participant.Role)

	// The host never needs the password.
	res, err = rm.Join(JoinRequest{Identity: "host-1"}, nil)
	require.NoError(t, err)
	assert.True(t, res.IsHost)
}

func TestSetPasswordClearsAndSets(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	rm, _ := hostedRoom(t, reg, "")

	require.NoError(t, rm.SetPassword("host-1", "pw"))
	_, err := rm.Join(JoinRequest{Identity: "player-1"}, nil)
	assert.ErrorIs(t, err, ErrWrongPassword)

	pw := ""
	_, err = rm.Apply("host-1", game.Action{Type: game.ActionSetPassword, Password: &pw})
	require.NoError(t, err)
	_, err = rm.Join(JoinRequest{Identity: "player-1"}, nil)
	assert.NoError(t, err)
}

func TestHostCredentialRebindsHost(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	rm, _ := hostedRoom(t, reg, "pw")

	res, err := rm.Join(JoinRequest{Identity: "tablet-1", DisplayName: "Tablet", HostCredential: true}, nil)
	require.NoError(t, err)
	assert.True(t, res.IsHost)
	assert.Equal(t, models.RoleHost, res.Participant.Role)
	assert.Equal(t, "tablet-1", rm.HostIdentity())

	old, ok := rm.Participant("host-1")
	require.True(t, ok)
	assert.Equal(t, models.RolePlayer, old.Role)

	_, err = rm.Apply("host-1", game.Action{Type: game.ActionStart})
	assert.ErrorIs(t, err, game.ErrForbidden)
	_, err = rm.Apply("tablet-1", game.Action{Type: game.ActionStart})
	assert.NoError(t, err)

	hosts := 0
	for _, p := range rm.Snapshot("tablet-1").Participants {
		if p.IsHost {
			hosts++
		}
	}
	assert.Equal(t, 1, hosts)
}

func TestJoinRoleSanitized(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	rm, _ := hostedRoom(t, reg, "")

	res, err := rm.Join(JoinRequest{Identity: "sneaky", Role: models.RoleHost}, nil)
	require.NoError(t, err)
	assert.False(t, res.IsHost)
	assert.Equal(t, models.RolePlayer, res.Participant.Role)

	res, err = rm.Join(JoinRequest{Identity: "watcher", Role: models.RoleSpectator}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RoleSpectator, res.Participant.Role)
	assert.Equal(t, "Player", res.Participant.DisplayName)
}

func TestRejoinUpdatesInPlace(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	rm, _ := hostedRoom(t, reg, "")

	conn := NewConnection(8)
	_, err := rm.Join(JoinRequest{Identity: "player-1", DisplayName: "Alice"}, conn)
	require.NoError(t, err)
	require.NoError(t, rm.SetReady("player-1", true))
	rm.Detach(conn)

	p, ok := rm.Participant("player-1")
	require.True(t, ok, "detach must keep the participant")
	assert.True(t, p.Ready)

	res, err := rm.Join(JoinRequest{Identity: "player-1", DisplayName: "Alicia"}, NewConnection(8))
	require.NoError(t, err)
	assert.Equal(t, "Alicia", res.Participant.DisplayName)
	assert.True(t, res.Participant.Ready)
	assert.Len(t, res.Snapshot.Participants, 2)
	assert.Equal(t, "host-1", res.Snapshot.Participants[0].Identity)
	assert.Equal(t, "player-1", res.Snapshot.Participants[1].Identity)
}

func TestPresenceFollowsConnections(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	rm, hostConn := hostedRoom(t, reg, "")

	conn := NewConnection(8)
	_, err := rm.Join(JoinRequest{Identity: "player-1"}, conn)
	require.NoError(t, err)

	snap := rm.Snapshot("host-1")
	assert.Equal(t, 2, snap.Connections)
	assert.True(t, snap.Participants[1].Online)

	rm.Detach(conn)
	snap = rm.Snapshot("host-1")
	assert.Equal(t, 1, snap.Connections)
	assert.Len(t, snap.Participants, 2)
	assert.False(t, snap.Participants[1].Online)

	// The host connection heard about the departure.
	pushed := hostConn.TakeSnapshot()
	require.NotNil(t, pushed)
	assert.Equal(t, 1, pushed.Connections)

	rm.Detach(conn) // second detach is a no-op
	assert.Equal(t, 1, rm.Summary().Connections)
}

func TestSetReady(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	rm, _ := hostedRoom(t, reg, "")
	_, err := rm.Join(JoinRequest{Identity: "player-1"}, nil)
	require.NoError(t, err)

	require.NoError(t, rm.SetReady("player-1", true))
	p, _ := rm.Participant("player-1")
	assert.True(t, p.Ready)

	assert.ErrorIs(t, rm.SetReady("ghost", true), ErrPlayerNotFound)

	_, err = rm.Apply("host-1", game.Action{Type: game.ActionStart})
	require.NoError(t, err)
	assert.ErrorIs(t, rm.SetReady("player-1", false), game.ErrNotInLobby)
}

func TestSweepRemovesIdleRooms(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(t, Options{TTL: 6 * time.Hour, Now: clock.Now})

	idle, idleConn := hostedRoom(t, reg, "")
	busy, _ := hostedRoom(t, reg, "")

	clock.Advance(5 * time.Hour)
	_, err := busy.Apply("host-1", game.Action{Type: game.ActionStart})
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	swept := reg.Sweep()

	assert.Equal(t, []string{idle.Code}, swept)
	_, err = reg.Get(idle.Code)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, err = reg.Get(busy.Code)
	assert.NoError(t, err)

	select {
	case <-idleConn.Done():
	default:
		t.Fatal("connection of a swept room must be closed")
	}

	// Anyone still holding the swept room sees it as gone.
	_, err = idle.Join(JoinRequest{Identity: "late"}, nil)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, err = idle.Apply("host-1", game.Action{Type: game.ActionStart})
	assert.ErrorIs(t, err, ErrRoomNotFound)

	assert.Empty(t, reg.Sweep())
}

func TestSweepRacingJoinIsDeterministic(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(t, Options{TTL: time.Hour, Now: clock.Now})
	rm, _ := hostedRoom(t, reg, "")
	clock.Advance(2 * time.Hour)

	var (
		wg      sync.WaitGroup
		joinErr error
		swept   []string
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, joinErr = rm.Join(JoinRequest{Identity: "player-1"}, nil)
	}()
	go func() {
		defer wg.Done()
		swept = reg.Sweep()
	}()
	wg.Wait()

	_, getErr := reg.Get(rm.Code)
	if joinErr == nil {
		// The join landed first and refreshed the room.
		assert.Empty(t, swept)
		assert.NoError(t, getErr)
	} else {
		assert.ErrorIs(t, joinErr, ErrRoomNotFound)
		assert.Equal(t, []string{rm.Code}, swept)
		assert.ErrorIs(t, getErr, ErrRoomNotFound)
	}
}

func TestDeleteClosesConnections(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	rm, conn := hostedRoom(t, reg, "")

	assert.True(t, reg.Delete(strings.ToLower(rm.Code)))
	assert.False(t, reg.Delete(rm.Code))
	assert.Zero(t, reg.Len())

	select {
	case <-conn.Done():
	default:
		t.Fatal("delete must close subscribed connections")
	}
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(t, Options{TTL: time.Minute, Now: clock.Now})
	_, err := reg.Create("host-1", "")
	require.NoError(t, err)
	clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reg.Run(ctx, 5*time.Millisecond) }()

	assert.Eventually(t, func() bool { return reg.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConcurrentAppliesAreNotLost(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	rm, _ := hostedRoom(t, reg, "")
	team := rm.State().Scores[0].ID

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, err := rm.Apply("host-1", game.Action{Type: game.ActionScoreDelta, TeamID: team, Delta: intp(10)})
				assert.NoError(t, err)
				return
			}
			name := "Team " + string(rune('A'+i%26))
			_, err := rm.Apply("host-1", game.Action{Type: game.ActionRenameTeam, TeamID: team, Name: &name})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	s := rm.State()
	assert.Equal(t, 10*n/2, s.Scores[0].Score)
	assert.True(t, strings.HasPrefix(s.Scores[0].Name, "Team "))
}

func TestAudienceSnapshotHidesAnswers(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	rm, hostConn := hostedRoom(t, reg, "")
	playerConn := NewConnection(8)
	_, err := rm.Join(JoinRequest{Identity: "player-1"}, playerConn)
	require.NoError(t, err)

	_, err = rm.Apply("host-1", game.Action{Type: game.ActionStart})
	require.NoError(t, err)
	_, err = rm.Apply("host-1", game.Action{Type: game.ActionOpen, Col: intp(1), Row: intp(2)})
	require.NoError(t, err)

	hostView := hostConn.TakeSnapshot()
	playerView := playerConn.TakeSnapshot()
	require.NotNil(t, hostView)
	require.NotNil(t, playerView)
	assert.Equal(t, hostView.Version, playerView.Version)

	assert.Equal(t, "Answer 2.3", hostView.State.Board.Clues[1][2].Answer)
	assert.Empty(t, playerView.State.Board.Clues[1][2].Answer)
	assert.Equal(t, "Question 2.3", playerView.State.Board.Clues[1][2].Question)

	_, err = rm.Apply("host-1", game.Action{Type: game.ActionReveal})
	require.NoError(t, err)
	playerView = playerConn.TakeSnapshot()
	require.NotNil(t, playerView)
	assert.Equal(t, "Answer 2.3", playerView.State.Board.Clues[1][2].Answer)
	assert.Empty(t, playerView.State.Board.Clues[0][0].Answer)

	// Redaction works on a copy.
	assert.Equal(t, "Answer 1.1", rm.State().Board.Clues[0][0].Answer)
}

func TestSnapshotNeverLeaksSecrets(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	rm, _ := hostedRoom(t, reg, "topsecret")

	snap := rm.Snapshot("host-1")
	assert.True(t, snap.PasswordProtected)
	assert.Equal(t, rm.Code, snap.Code)
}

func TestConnectionKeepsNewestSnapshot(t *testing.T) {
	conn := NewConnection(1)
	conn.PushSnapshot(&Snapshot{Code: "AAAAA", Version: 3})
	conn.PushSnapshot(&Snapshot{Code: "AAAAA", Version: 2})

	got := conn.TakeSnapshot()
	require.NotNil(t, got)
	assert.Equal(t, uint64(3), got.Version)
	assert.Nil(t, conn.TakeSnapshot())

	// A snapshot of another room always replaces the pending one.
	conn.PushSnapshot(&Snapshot{Code: "AAAAA", Version: 9})
	conn.PushSnapshot(&Snapshot{Code: "BBBBB", Version: 1})
	got = conn.TakeSnapshot()
	require.NotNil(t, got)
	assert.Equal(t, "BBBBB", got.Code)
}

func TestConnectionWriteNeverBlocks(t *testing.T) {
	conn := NewConnection(1)
	assert.True(t, conn.Write(Message{Type: "ack"}))
	assert.False(t, conn.Write(Message{Type: "ack"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, conn.Send(ctx, Message{Type: "ack"}), context.DeadlineExceeded)

	conn.Close()
	conn.Close()
	<-conn.Done()
}

func TestJournalReceivesAppliedActions(t *testing.T) {
	journal := newFakeJournal()
	reg := newTestRegistry(t, Options{Journal: journal})
	rm, _ := hostedRoom(t, reg, "")

	_, err := rm.Apply("host-1", game.Action{Type: game.ActionStart})
	require.NoError(t, err)
	rec := journal.next(t)
	assert.Equal(t, rm.Code, rec.Room)
	assert.Equal(t, "host-1", rec.Actor)
	assert.Equal(t, "start", rec.Type)
	assert.Equal(t, 1, rec.Index)

	require.NoError(t, rm.SetPassword("host-1", "hunter2"))
	rec = journal.next(t)
	assert.Equal(t, "setPassword", rec.Type)
	assert.Equal(t, 2, rec.Index)
	assert.Equal(t, map[string]bool{"set": true}, rec.Payload)

	// Rejected actions are not journaled.
	_, err = rm.Apply("player-1", game.Action{Type: game.ActionResetUsed})
	require.Error(t, err)
	select {
	case rec := <-journal.records:
		t.Fatalf("unexpected journal record %+v", rec)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestApplyRecoversFromPanics(t *testing.T) {
	engine := game.NewEngine()
	explode := false
	engine.NewID = func() string {
		if explode {
			panic("id source exploded")
		}
		return uuid.NewString()
	}
	journal := newFakeJournal()
	reg := newTestRegistry(t, Options{Engine: engine, Journal: journal})
	rm, _ := hostedRoom(t, reg, "")
	watcher := NewConnection(4)
	_, err := rm.Join(JoinRequest{Identity: "viewer-1", Role: models.RoleSpectator}, watcher)
	require.NoError(t, err)
	stale := watcher.TakeSnapshot()
	require.NotNil(t, stale)

	before := rm.State()
	explode = true
	_, err = rm.Apply("host-1", game.Action{Type: game.ActionScoreSet, Scores: []models.Team{{Name: "New"}}})
	explode = false
	assert.ErrorIs(t, err, game.ErrActionFailed)
	assert.Same(t, before, rm.State())
	assert.Nil(t, watcher.TakeSnapshot(), "a failed action must not broadcast")
	select {
	case rec := <-journal.records:
		t.Fatalf("failed action was journaled: %+v", rec)
	case <-time.After(50 * time.Millisecond):
	}

	// The room keeps working afterwards.
	_, err = rm.Apply("host-1", game.Action{Type: game.ActionStart})
	assert.NoError(t, err)
}

func TestValidIdentity(t *testing.T) {
	assert.True(t, ValidIdentity("3f2a9c1e-client"))
	assert.False(t, ValidIdentity(""))
	assert.False(t, ValidIdentity("two words"))
	assert.False(t, ValidIdentity("tab\there"))
	assert.False(t, ValidIdentity(strings.Repeat("x", 65)))
}
