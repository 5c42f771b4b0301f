package recorder

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showdown-strategist/game"
)

type memorySink struct {
	mu      sync.Mutex
	records []*TurnRecord
	err     error
}

func (m *memorySink) Write(r *TurnRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, r)
	return nil
}

func fixedClock() time.Time {
	return time.Date(2025, 3, 14, 15, 9, 26, 535897000, time.UTC)
}

func newTestRecorder(sink Sink) (*Recorder, *test.Hook) {
	logger, hook := test.NewNullLogger()
	r := New(sink, "Bot_Naila", logger)
	r.now = fixedClock
	return r, hook
}

func snapshotAt(tag string, turn, oppHP int) *game.Snapshot {
	acc := 100
	return &game.Snapshot{
		BattleTag: tag,
		Turn:      turn,
		Active: &game.Combatant{
			Species: "Pikachu", HP: 180, MaxHP: 211, Types: []string{"Electric"}, Status: "par",
			Stats: game.Stats{Attack: 55, Defense: 40, SpecialAttack: 50, SpecialDefense: 50, Speed: 90},
		},
		Opponent: &game.Combatant{
			Species: "Gyarados", HP: oppHP, MaxHP: 100, Types: []string{"Water", "Flying"},
			Stats: game.Stats{Attack: 125, Defense: 79, SpecialAttack: 60, SpecialDefense: 100, Speed: 81},
		},
		Moves: []game.AttackAction{
			{ID: "thunderbolt", Type: "Electric", Category: game.CategorySpecial, BasePower: 90, Accuracy: &acc, Slot: 1},
			{ID: "quickattack", Type: "Normal", Category: game.CategoryPhysical, BasePower: 40, Accuracy: &acc, Priority: 1, Slot: 2},
		},
		Switches: []game.Combatant{{Species: "Snorlax", Slot: 2}, {Species: "Lapras", Slot: 3}},
	}
}

func TestBuildRecord(t *testing.T) {
	r, _ := newTestRecorder(nil)
	s := snapshotAt("battle-gen8randombattle-1", 4, 63)

	rec := r.Build(s, game.MoveAction(&s.Moves[0]))
	assert.Equal(t, "2025-03-14T15:09:26.535897", rec.Timestamp)
	assert.Equal(t, "battle-gen8randombattle-1", rec.BattleTag)
	assert.Equal(t, 4, rec.Turn)
	assert.Equal(t, "Bot_Naila", rec.PlayerUsername)
	assert.Equal(t, "Pikachu", *rec.ActivePokemon)
	assert.Equal(t, "par", *rec.ActiveStatus)
	assert.InDelta(t, 180.0/211.0, *rec.ActiveHPFraction, 1e-9)
	assert.Equal(t, 90, *rec.ActiveSpe)
	assert.Nil(t, rec.OpponentStatus)
	assert.Equal(t, 125, *rec.OpponentAtk)
	assert.Equal(t, "thunderbolt", *rec.SelectedMove)
	assert.Equal(t, "Special", *rec.SelectedMoveCategory)
	assert.Equal(t, 100, *rec.SelectedMoveAccuracy)
	assert.Equal(t, "thunderbolt|quickattack", rec.AvailableMoves)
	assert.Equal(t, "Snorlax|Lapras", rec.AvailableSwitches)
	assert.Equal(t, 0, rec.Fainted)
	assert.Nil(t, rec.WonBattle)
	assert.Len(t, rec.Values(), len(Columns))
}

func TestBuildRecordForSwitch(t *testing.T) {
	r, _ := newTestRecorder(nil)
	s := snapshotAt("battle-1", 2, 100)
	s.Finished = true
	won := true
	s.Won = &won

	rec := r.Build(s, game.SwitchAction(&s.Switches[0]))
	assert.Nil(t, rec.SelectedMove)
	assert.Nil(t, rec.SelectedMoveType)
	assert.Nil(t, rec.SelectedMoveBasePower)
	require.NotNil(t, rec.WonBattle)
	assert.Equal(t, 1, *rec.WonBattle)
}

func TestDamageDealtPerBattle(t *testing.T) {
	sink := &memorySink{}
	r, _ := newTestRecorder(sink)

	r.Record(snapshotAt("battle-a", 1, 100), game.DefaultAction())
	r.Record(snapshotAt("battle-b", 1, 80), game.DefaultAction())
	r.Record(snapshotAt("battle-a", 2, 64), game.DefaultAction())
	r.Record(snapshotAt("battle-b", 2, 80), game.DefaultAction())
	r.Record(snapshotAt("battle-a", 3, 20), game.DefaultAction())

	require.Len(t, sink.records, 5)
	got := []float64{}
	for _, rec := range sink.records {
		got = append(got, rec.DamageDealt)
	}
	assert.Equal(t, []float64{0, 0, 36, 0, 44}, got)

	r.Forget("battle-a")
	r.Record(snapshotAt("battle-a", 4, 10), game.DefaultAction())
	assert.Equal(t, 0.0, sink.records[5].DamageDealt)
}

func TestDamageDealtIgnoresMissingOpponent(t *testing.T) {
	r, _ := newTestRecorder(nil)
	s := snapshotAt("battle-x", 1, 90)
	s.Opponent = nil
	assert.Equal(t, 0.0, r.Build(s, game.DefaultAction()).DamageDealt)

	assert.Equal(t, 0.0, r.Build(snapshotAt("battle-x", 2, 70), game.DefaultAction()).DamageDealt)
}

func TestRecordFailureIsSwallowed(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full")}
	r, hook := newTestRecorder(sink)

	assert.NotPanics(t, func() { r.Record(snapshotAt("battle-1", 1, 50), game.DefaultAction()) })
	assert.NotPanics(t, func() { r.Record(nil, game.DefaultAction()) })

	errorsLogged := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			errorsLogged++
		}
	}
	assert.Equal(t, 2, errorsLogged)
}

func TestConcurrentBattlesDoNotMix(t *testing.T) {
	sink := &memorySink{}
	r, _ := newTestRecorder(sink)

	var wg sync.WaitGroup
	for _, tag := range []string{"battle-1", "battle-2", "battle-3", "battle-4"} {
		wg.Add(1)
		go func(tag string) {
			defer wg.Done()
			for turn, hp := range []int{100, 90, 70, 40} {
				r.Record(snapshotAt(tag, turn+1, hp), game.DefaultAction())
			}
		}(tag)
	}
	wg.Wait()

	byBattle := map[string]float64{}
	for _, rec := range sink.records {
		byBattle[rec.BattleTag] += rec.DamageDealt
	}
	for tag, total := range byBattle {
		assert.Equal(t, 60.0, total, tag)
	}
	assert.Len(t, byBattle, 4)
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	ok := &memorySink{}
	bad := &memorySink{err: errors.New("nope")}
	err := MultiSink{ok, bad}.Write(&TurnRecord{BattleTag: "b"})
	assert.ErrorContains(t, err, "nope")
	assert.Len(t, ok.records, 1)
}
