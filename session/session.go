package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"showdown-strategist/client"
	"showdown-strategist/data"
	"showdown-strategist/game"
	"showdown-strategist/parser"
	"showdown-strategist/strategy"
)

type Mode string

const (
	ModeLadder    Mode = "ladder"
	ModeChallenge Mode = "challenge"
	ModeAccept    Mode = "accept"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeLadder, ModeChallenge, ModeAccept:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Transport carries raw Showdown frames.
type Transport interface {
	Receive() (string, error)
	Send(message string) error
	Close() error
}

type Authenticator interface {
	Assertion(ctx context.Context, challstr string) (string, error)
}

// Player is the policy the session consults on every request.
type Player interface {
	Play(s *game.Snapshot, sub strategy.Submitter) error
}

// Forgetter drops per-battle state kept outside the session.
type Forgetter interface {
	Forget(battleTag string)
}

type Options struct {
	Username      string
	Format        string
	Mode          Mode
	Opponent      string
	Battles       int
	MaxConcurrent int
}

type battle struct {
	state   *game.BattleState
	req     *parser.Request
	pending bool
	ownSlot bool
}

// Summary is the tally of battles finished during a run.
type Summary struct {
	Finished int
	Wins     int
}

func (s Summary) WinRate() float64 {
	if s.Finished == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Finished)
}

type Session struct {
	t      Transport
	auth   Authenticator
	player Player
	dex    *data.Dex
	forget Forgetter
	opts   Options
	log    logrus.FieldLogger

	// battles is owned by the read loop.
	battles map[string]*battle

	mu           sync.Mutex
	summary      Summary
	pendingSlots int

	slots     chan struct{}
	started   chan string
	loggedIn  chan struct{}
	loginOnce sync.Once
	closing   atomic.Bool
}

func New(t Transport, auth Authenticator, player Player, dex *data.Dex, forget Forgetter, opts Options, log logrus.FieldLogger) *Session {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	return &Session{
		t:        t,
		auth:     auth,
		player:   player,
		dex:      dex,
		forget:   forget,
		opts:     opts,
		log:      log,
		battles:  make(map[string]*battle),
		slots:    make(chan struct{}, opts.MaxConcurrent),
		started:  make(chan string, opts.MaxConcurrent+opts.Battles),
		loggedIn: make(chan struct{}),
	}
}

// Run logs in, plays the configured number of battles and returns once
// they have all finished or ctx is cancelled. Cancellation is not an
// error.
func (s *Session) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		return s.readLoop(runCtx)
	})
	g.Go(func() error {
		<-runCtx.Done()
		s.closing.Store(true)
		_ = s.t.Close()
		return nil
	})
	g.Go(func() error {
		defer stop()
		return s.queue(runCtx)
	})

	err := g.Wait()
	sum := s.Summary()
	s.log.WithFields(logrus.Fields{
		"wins":     sum.Wins,
		"losses":   sum.Finished - sum.Wins,
		"finished": sum.Finished,
		"win_rate": fmt.Sprintf("%.1f%%", sum.WinRate()*100),
	}).Info("run complete")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

func (s *Session) readLoop(ctx context.Context) error {
	for {
		frame, err := s.t.Receive()
		if err != nil {
			if s.closing.Load() {
				return nil
			}
			return err
		}
		if err := s.HandleFrame(ctx, frame); err != nil {
			return err
		}
	}
}

func (s *Session) queue(ctx context.Context) error {
	select {
	case <-s.loggedIn:
	case <-ctx.Done():
		return ctx.Err()
	}

	for i := 0; i < s.opts.Battles; i++ {
		if s.opts.Mode == ModeAccept {
			if err := s.waitStarted(ctx); err != nil {
				return err
			}
			continue
		}
		if err := s.acquire(ctx); err != nil {
			return err
		}
		var err error
		switch s.opts.Mode {
		case ModeChallenge:
			err = s.t.Send(fmt.Sprintf("|/challenge %s, %s", s.opts.Opponent, s.opts.Format))
		default:
			err = s.t.Send("|/utm null\n/search " + s.opts.Format)
		}
		if err != nil {
			return fmt.Errorf("queueing battle %d: %w", i+1, err)
		}
		if err := s.waitStarted(ctx); err != nil {
			return err
		}
	}

	// Holding every slot means no battle is still running.
	for i := 0; i < cap(s.slots); i++ {
		if err := s.acquire(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		s.mu.Lock()
		s.pendingSlots++
		s.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) tryAcquire() bool {
	select {
	case s.slots <- struct{}{}:
		s.mu.Lock()
		s.pendingSlots++
		s.mu.Unlock()
		return true
	default:
		return false
	}
}

func (s *Session) waitStarted(ctx context.Context) error {
	select {
	case tag := <-s.started:
		s.log.WithField("battle", tag).Info("battle started")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleFrame processes one websocket frame. Frames for a room start with
// ">roomid"; the rest belong to the global room. Only a failed login is
// returned as an error.
func (s *Session) HandleFrame(ctx context.Context, frame string) error {
	lines := strings.Split(strings.TrimRight(frame, "\n"), "\n")
	room := ""
	if len(lines) > 0 && strings.HasPrefix(lines[0], ">") {
		room = strings.TrimSpace(lines[0][1:])
		lines = lines[1:]
	}
	if room == "" {
		for _, line := range lines {
			if err := s.handleGlobal(ctx, line); err != nil {
				return err
			}
		}
		return nil
	}
	if strings.HasPrefix(room, "battle-") {
		s.handleBattle(room, lines)
	}
	return nil
}

func (s *Session) handleGlobal(ctx context.Context, line string) error {
	switch {
	case strings.HasPrefix(line, "|challstr|"):
		challstr, _ := client.Challstr(line)
		assertion, err := s.auth.Assertion(ctx, challstr)
		if err != nil {
			return err
		}
		if err := s.t.Send("|" + client.TrnCommand(s.opts.Username, assertion)); err != nil {
			return fmt.Errorf("sending login: %w", err)
		}
	case strings.HasPrefix(line, "|updateuser|"):
		parts := strings.Split(line, "|")
		if len(parts) >= 4 && parts[3] == "1" {
			s.log.WithField("user", strings.TrimSpace(parts[2])).Info("logged in")
			s.loginOnce.Do(func() { close(s.loggedIn) })
		}
	case strings.HasPrefix(line, "|updatechallenges|"):
		if s.opts.Mode == ModeAccept {
			s.acceptChallenges(strings.TrimPrefix(line, "|updatechallenges|"))
		}
	case strings.HasPrefix(line, "|popup|"):
		s.log.Warn(strings.ReplaceAll(strings.TrimPrefix(line, "|popup|"), "||", " "))
	}
	return nil
}

func (s *Session) acceptChallenges(body string) {
	var challenges struct {
		ChallengesFrom map[string]string `json:"challengesFrom"`
	}
	if err := json.Unmarshal([]byte(body), &challenges); err != nil {
		s.log.WithError(err).Warn("bad challenge update")
		return
	}
	for user, format := range challenges.ChallengesFrom {
		if format != s.opts.Format {
			continue
		}
		if s.opts.Opponent != "" && data.ToID(user) != data.ToID(s.opts.Opponent) {
			continue
		}
		if !s.tryAcquire() {
			return
		}
		if err := s.t.Send("|/accept " + user); err != nil {
			s.log.WithError(err).Error("accepting challenge")
		}
	}
}

func (s *Session) handleBattle(room string, lines []string) {
	b, ok := s.battles[room]
	if !ok {
		b = &battle{state: game.NewBattleState(room)}
		s.battles[room] = b
	}
	log := s.log.WithField("battle", room)

	sawRequest := false
	for _, line := range lines {
		switch {
		case line == "|init|battle":
			s.mu.Lock()
			if s.pendingSlots > 0 {
				s.pendingSlots--
				b.ownSlot = true
			}
			s.mu.Unlock()
			select {
			case s.started <- room:
			default:
			}
		case strings.HasPrefix(line, "|request|"):
			sawRequest = true
			req, err := parser.ParseRequest(strings.TrimPrefix(line, "|request|"))
			if err != nil {
				log.WithError(err).Warn("bad request")
				continue
			}
			if req == nil || req.Wait {
				b.pending = false
				continue
			}
			b.req = req
			if req.TeamPreview {
				s.send(log, room, "/choose default", req.RequestID)
				continue
			}
			b.pending = true
		case strings.HasPrefix(line, "|error|[Invalid choice]"), strings.HasPrefix(line, "|error|[Unavailable choice]"):
			log.Warn(strings.TrimPrefix(line, "|error|"))
			rqid := 0
			if b.req != nil {
				rqid = b.req.RequestID
			}
			s.send(log, room, "/choose default", rqid)
		case line == "|deinit":
			delete(s.battles, room)
			return
		default:
			parser.ProcessLine(b.state, line)
		}
	}

	if b.state.Finished {
		s.finish(room, b)
		return
	}
	// The request arrives in its own frame ahead of the log it answers.
	if !sawRequest && b.pending && b.req != nil {
		b.pending = false
		snap := parser.BuildSnapshot(b.state, b.req, s.dex)
		if err := s.player.Play(snap, &submitter{s: s, rqid: b.req.RequestID}); err != nil {
			log.WithError(err).Error("playing turn")
		}
	}
}

func (s *Session) finish(room string, b *battle) {
	won := b.state.Winner != "" && data.ToID(b.state.Winner) == data.ToID(s.opts.Username)
	s.mu.Lock()
	s.summary.Finished++
	if won {
		s.summary.Wins++
	}
	s.mu.Unlock()
	s.log.WithFields(logrus.Fields{"battle": room, "won": won, "turns": b.state.Turn}).Info("battle finished")

	if s.forget != nil {
		s.forget.Forget(room)
	}
	delete(s.battles, room)
	if b.ownSlot {
		<-s.slots
	}
	if err := s.t.Send(room + "|/leave"); err != nil {
		s.log.WithError(err).WithField("battle", room).Warn("leaving room")
	}
}

func (s *Session) send(log logrus.FieldLogger, room, cmd string, rqid int) {
	if err := s.t.Send(chooseMessage(room, cmd, rqid)); err != nil {
		log.WithError(err).Error("sending choice")
	}
}

func chooseMessage(room, cmd string, rqid int) string {
	if rqid > 0 {
		return fmt.Sprintf("%s|%s|%d", room, cmd, rqid)
	}
	return room + "|" + cmd
}

// submitter sends the engine's action to the battle room it was decided
// for.
type submitter struct {
	s    *Session
	rqid int
}

func (sub *submitter) Submit(snap *game.Snapshot, a game.Action) error {
	return sub.s.t.Send(chooseMessage(snap.BattleTag, "/choose "+a.Command(), sub.rqid))
}
