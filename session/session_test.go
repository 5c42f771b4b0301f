package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showdown-strategist/client"
	"showdown-strategist/data"
	"showdown-strategist/game"
	"showdown-strategist/strategy"
)

type fakeTransport struct {
	mu     sync.Mutex
	sent   []string
	frames chan string
	closed chan struct{}
	once   sync.Once
	onSend func(msg string)
}

func newFakeTransport(onSend func(msg string)) *fakeTransport {
	return &fakeTransport{
		frames: make(chan string, 64),
		closed: make(chan struct{}),
		onSend: onSend,
	}
}

func (f *fakeTransport) Receive() (string, error) {
	select {
	case fr := <-f.frames:
		return fr, nil
	case <-f.closed:
		return "", errors.New("closed")
	}
}

func (f *fakeTransport) Send(msg string) error {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	if f.onSend != nil {
		f.onSend(msg)
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type stubAuth struct{ err error }

func (a stubAuth) Assertion(context.Context, string) (string, error) {
	return "signed", a.err
}

type stubPlayer struct {
	snapshots []*game.Snapshot
}

func (p *stubPlayer) Play(s *game.Snapshot, sub strategy.Submitter) error {
	p.snapshots = append(p.snapshots, s)
	a := game.DefaultAction()
	if len(s.Moves) > 0 {
		a = game.MoveAction(&s.Moves[0])
	}
	return sub.Submit(s, a)
}

type forgetter struct{ tags []string }

func (f *forgetter) Forget(tag string) { f.tags = append(f.tags, tag) }

const battleRequest = `{"active":[{"moves":[
{"move":"Thunderbolt","id":"thunderbolt","pp":24,"maxpp":24,"disabled":false},
{"move":"Quick Attack","id":"quickattack","pp":48,"maxpp":48,"disabled":false}],
"canTerastallize":"Electric"}],
"side":{"name":"Bot_Naila","id":"p1","pokemon":[
{"ident":"p1: Sparky","details":"Pikachu, L88, M","condition":"180/211","active":true,"stats":{"atk":150,"def":110,"spa":140,"spd":140,"spe":220}},
{"ident":"p1: Snorlax","details":"Snorlax, L80","condition":"0 fnt","active":false,"stats":{"atk":250,"def":160,"spa":150,"spd":250,"spe":80}},
{"ident":"p1: Lapras","details":"Lapras, L85, F","condition":"300/300","active":false,"stats":{"atk":200,"def":200,"spa":200,"spd":220,"spe":150}}]},
"rqid":3}`

const battleLog = `>battle-1
|player|p1|Bot_Naila|1|
|player|p2|Ash|2|
|switch|p1a: Sparky|Pikachu, L88, M|180/211
|switch|p2a: Gyarados|Gyarados, L84, F|100/100
|turn|1`

func testDex() *data.Dex {
	dex := data.NewDex()
	dex.AddPokemon(data.PokemonData{Name: "Pikachu", Types: []string{"Electric"},
		Stats: game.Stats{Attack: 55, Defense: 40, SpecialAttack: 50, SpecialDefense: 50, Speed: 90}})
	dex.AddPokemon(data.PokemonData{Name: "Gyarados", Types: []string{"Water", "Flying"},
		Stats: game.Stats{Attack: 125, Defense: 79, SpecialAttack: 60, SpecialDefense: 100, Speed: 81}})
	dex.AddMove(data.MoveData{Name: "Thunderbolt", Type: "Electric", Category: game.CategorySpecial, Power: 90})
	dex.AddMove(data.MoveData{Name: "Quick Attack", Type: "Normal", Category: game.CategoryPhysical, Power: 40, Priority: 1})
	return dex
}

func newTestSession(tr Transport, p Player, f Forgetter, opts Options) (*Session, *test.Hook) {
	logger, hook := test.NewNullLogger()
	if opts.Username == "" {
		opts.Username = "Bot_Naila"
	}
	return New(tr, stubAuth{}, p, testDex(), f, opts, logger), hook
}

func TestBattleFlow(t *testing.T) {
	tr := newFakeTransport(nil)
	p := &stubPlayer{}
	f := &forgetter{}
	s, _ := newTestSession(tr, p, f, Options{Format: "gen9randombattle", Battles: 1})
	ctx := context.Background()

	require.NoError(t, s.HandleFrame(ctx, ">battle-1\n|init|battle\n|title|Bot_Naila vs. Ash"))
	require.NoError(t, s.HandleFrame(ctx, ">battle-1\n|request|"+battleRequest))
	assert.Empty(t, p.snapshots, "request alone must wait for the battle log")

	require.NoError(t, s.HandleFrame(ctx, battleLog))
	require.Len(t, p.snapshots, 1)
	snap := p.snapshots[0]
	assert.Equal(t, "battle-1", snap.BattleTag)
	assert.Equal(t, 1, snap.Turn)
	assert.Equal(t, "Gyarados", snap.Opponent.Species)
	assert.Len(t, snap.Moves, 2)
	assert.Len(t, snap.Switches, 1)

	require.NoError(t, s.HandleFrame(ctx, ">battle-1\n|error|[Invalid choice] Can't move: Pikachu is asleep"))
	require.NoError(t, s.HandleFrame(ctx, ">battle-1\n|\n|win|Bot_Naila"))

	assert.Equal(t, []string{
		"battle-1|/choose move 1|3",
		"battle-1|/choose default|3",
		"battle-1|/leave",
	}, tr.Sent())
	assert.Equal(t, []string{"battle-1"}, f.tags)
	assert.Equal(t, Summary{Finished: 1, Wins: 1}, s.Summary())
	assert.Empty(t, s.battles)
}

func TestWaitAndTeamPreviewRequests(t *testing.T) {
	tr := newFakeTransport(nil)
	p := &stubPlayer{}
	s, _ := newTestSession(tr, p, nil, Options{Battles: 1})
	ctx := context.Background()

	require.NoError(t, s.HandleFrame(ctx, `>battle-2
|request|{"wait":true,"side":{"name":"Bot_Naila","id":"p1","pokemon":[]},"rqid":7}`))
	require.NoError(t, s.HandleFrame(ctx, ">battle-2\n|turn|4"))
	assert.Empty(t, p.snapshots)

	require.NoError(t, s.HandleFrame(ctx, `>battle-2
|request|{"teamPreview":true,"side":{"name":"Bot_Naila","id":"p1","pokemon":[]},"rqid":8}`))
	assert.Equal(t, []string{"battle-2|/choose default|8"}, tr.Sent())
}

func TestForceSwitchDecidesAfterLog(t *testing.T) {
	tr := newFakeTransport(nil)
	p := &stubPlayer{}
	s, _ := newTestSession(tr, p, nil, Options{Battles: 1})
	ctx := context.Background()

	req := strings.Replace(battleRequest, `"rqid":3`, `"rqid":5,"forceSwitch":[true]`, 1)
	require.NoError(t, s.HandleFrame(ctx, ">battle-3\n|request|"+req))
	require.NoError(t, s.HandleFrame(ctx, ">battle-3\n|faint|p1a: Sparky\n|upkeep"))
	require.Len(t, p.snapshots, 1)
	assert.Empty(t, p.snapshots[0].Moves)
	assert.Equal(t, []string{"battle-3|/choose default|5"}, tr.Sent())
}

func TestEngineDrivesChoice(t *testing.T) {
	tr := newFakeTransport(nil)
	logger, _ := test.NewNullLogger()
	registry := strategy.NewRegistry(logger)
	require.NoError(t, registry.RegisterAll(strategy.DefaultWeights))
	engine := strategy.NewEngine(registry, strategy.WithLogger(logger))
	s, _ := newTestSession(tr, engine, nil, Options{Battles: 1})
	ctx := context.Background()

	require.NoError(t, s.HandleFrame(ctx, ">battle-1\n|request|"+battleRequest))
	require.NoError(t, s.HandleFrame(ctx, battleLog))
	// Lapras is far bulkier than the active Pikachu, so the advisor
	// pre-empts move selection.
	assert.Equal(t, []string{"battle-1|/choose switch 3|3"}, tr.Sent())
}

func TestAcceptChallenges(t *testing.T) {
	tr := newFakeTransport(nil)
	s, _ := newTestSession(tr, &stubPlayer{}, nil, Options{
		Mode: ModeAccept, Format: "gen9randombattle", Battles: 1, MaxConcurrent: 1,
	})
	ctx := context.Background()

	require.NoError(t, s.HandleFrame(ctx, `|updatechallenges|{"challengesFrom":{"ash":"gen9ou"},"challengeTo":null}`))
	assert.Empty(t, tr.Sent())

	require.NoError(t, s.HandleFrame(ctx, `|updatechallenges|{"challengesFrom":{"ash":"gen9randombattle"},"challengeTo":null}`))
	assert.Equal(t, []string{"|/accept ash"}, tr.Sent())

	// The only slot is taken until that battle ends.
	require.NoError(t, s.HandleFrame(ctx, `|updatechallenges|{"challengesFrom":{"misty":"gen9randombattle"},"challengeTo":null}`))
	assert.Len(t, tr.Sent(), 1)
}

func TestLoginFailureStopsRun(t *testing.T) {
	tr := newFakeTransport(nil)
	logger, _ := test.NewNullLogger()
	s := New(tr, stubAuth{err: client.ErrLoginFailed}, &stubPlayer{}, testDex(), nil,
		Options{Username: "Bot_Naila", Battles: 1}, logger)
	tr.frames <- "|challstr|4|abc"

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, client.ErrLoginFailed)
}

func TestRunLadder(t *testing.T) {
	var tr *fakeTransport
	tr = newFakeTransport(func(msg string) {
		switch {
		case strings.HasPrefix(msg, "|/trn "):
			tr.frames <- "|updateuser| Bot_Naila|1|1|{}"
		case strings.Contains(msg, "/search gen9randombattle"):
			tr.frames <- ">battle-1\n|init|battle"
			tr.frames <- ">battle-1\n|request|" + battleRequest
			tr.frames <- battleLog
		case strings.HasPrefix(msg, "battle-1|/choose"):
			tr.frames <- ">battle-1\n|win|Ash"
		}
	})
	tr.frames <- "|challstr|4|abc"

	s, hook := newTestSession(tr, &stubPlayer{}, nil, Options{
		Mode: ModeLadder, Format: "gen9randombattle", Battles: 1, MaxConcurrent: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	assert.Equal(t, Summary{Finished: 1, Wins: 0}, s.Summary())
	sent := tr.Sent()
	assert.Equal(t, "|/trn Bot_Naila,0,signed", sent[0])
	assert.Equal(t, "|/utm null\n/search gen9randombattle", sent[1])

	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, logrus.InfoLevel, last.Level)
	assert.Equal(t, "run complete", last.Message)
	assert.Equal(t, "0.0%", last.Data["win_rate"])
}

func TestRunCancelled(t *testing.T) {
	tr := newFakeTransport(nil)
	s, _ := newTestSession(tr, &stubPlayer{}, nil, Options{Mode: ModeLadder, Battles: 3})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Run(ctx))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Ladder ")
	require.NoError(t, err)
	assert.Equal(t, ModeLadder, m)

	_, err = ParseMode("tournament")
	assert.Error(t, err)
}
