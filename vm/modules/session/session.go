// Package session is the session engine: it drives one play session from
// start through validated level completions to completion or abandonment,
// and pays out accrued rewards on claim.
package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/levelpool/core"
	"github.com/tolelom/levelpool/events"
	"github.com/tolelom/levelpool/levels"
	"github.com/tolelom/levelpool/replay"
	"github.com/tolelom/levelpool/vm"
)

func init() {
	vm.Register(core.TxStartSession, handleStart)
	vm.Register(core.TxCompleteLevel, handleCompleteLevel)
	vm.Register(core.TxAbandon, handleAbandon)
	vm.Register(core.TxClaim, handleClaim)
}

// runningPool loads the pool and rejects the call while it is paused.
func runningPool(ctx *vm.Context) (*core.Pool, error) {
	pool, err := ctx.LoadPool()
	if err != nil {
		return nil, err
	}
	if pool.Paused {
		return nil, core.ErrPoolPaused
	}
	return pool, nil
}

// ownedSession loads id and checks that the caller created it.
func ownedSession(ctx *vm.Context, id uint64) (*core.Session, error) {
	sess, err := ctx.State.GetSession(id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("session %d: %w", id, core.ErrNoSuchSession)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %d: %w", id, err)
	}
	if sess.Player != ctx.Tx.From {
		return nil, fmt.Errorf("session %d: %w", id, core.ErrNotSessionOwner)
	}
	return sess, nil
}

// lockIn folds everything the session earned into the player's lifetime
// total. Called exactly once, when the session turns terminal.
func lockIn(ctx *vm.Context, sess *core.Session) error {
	total, err := ctx.State.GetPlayerRewards(sess.Player)
	if err != nil {
		return fmt.Errorf("lifetime rewards for %s: %w", sess.Player, err)
	}
	if total > ^uint64(0)-sess.EarnedReward {
		return fmt.Errorf("lifetime rewards for %s: %w", sess.Player, core.ErrOverflow)
	}
	return ctx.State.SetPlayerRewards(sess.Player, total+sess.EarnedReward)
}

func handleStart(ctx *vm.Context, _ json.RawMessage) error {
	pool, err := runningPool(ctx)
	if err != nil {
		return err
	}
	if ctx.Tx.From == "" {
		return errors.New("caller identity required")
	}

	sess := &core.Session{
		ID:             pool.NextSessionID,
		Player:         ctx.Tx.From,
		CurrentLevel:   1,
		StartTime:      ctx.Now,
		LevelStartTime: ctx.Now,
		Status:         core.SessionActive,
		Fingerprints:   []string{},
	}
	pool.NextSessionID++
	pool.TotalGames++
	if err := ctx.State.SetPool(pool); err != nil {
		return err
	}
	if err := ctx.State.SetSession(sess); err != nil {
		return err
	}
	if err := ctx.State.AppendPlayerSession(sess.Player, sess.ID); err != nil {
		return err
	}

	ctx.Receipt.SessionID = sess.ID
	ctx.Receipt.Level = sess.CurrentLevel
	ctx.Emit(events.EventSessionStarted, map[string]any{
		"session_id": sess.ID,
		"player":     sess.Player,
	})
	return nil
}

func handleCompleteLevel(ctx *vm.Context, payload json.RawMessage) error {
	var p core.CompleteLevelPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode complete_level payload: %w", err)
	}
	if _, err := runningPool(ctx); err != nil {
		return err
	}
	sess, err := ownedSession(ctx, p.SessionID)
	if err != nil {
		return err
	}
	if !sess.IsActive() {
		return fmt.Errorf("session %d is %s: %w", sess.ID, sess.Status, core.ErrNotActive)
	}

	// An exact resubmission is reported as a replay even though the level
	// has since advanced.
	fp := replay.Fingerprint(sess.ID, p.Level, p.Score, p.UnitsDestroyed, ctx.Now)
	guard := replay.NewGuard(ctx.State)
	seen, err := guard.Seen(fp)
	if err != nil {
		return err
	}
	if seen {
		return fmt.Errorf("fingerprint %s: %w", fp, core.ErrReplayDetected)
	}

	if p.Level != sess.CurrentLevel || p.Level > levels.MaxLevel {
		return fmt.Errorf("claimed level %d, session %d is at level %d: %w",
			p.Level, sess.ID, sess.CurrentLevel, core.ErrWrongLevel)
	}
	if ctx.Now > sess.LevelStartTime+levels.LevelDuration {
		return fmt.Errorf("level %d started at %d, now %d: %w",
			p.Level, sess.LevelStartTime, ctx.Now, core.ErrExpired)
	}
	if want := levels.ExpectedUnits(p.Level); p.UnitsDestroyed != want {
		return fmt.Errorf("level %d: destroyed %d units, expected %d: %w",
			p.Level, p.UnitsDestroyed, want, core.ErrInvalidProof)
	}

	res, err := guard.Register(fp, sess.ID)
	if err != nil {
		return err
	}
	if res == replay.AlreadyUsed {
		return fmt.Errorf("fingerprint %s: %w", fp, core.ErrReplayDetected)
	}

	reward := levels.Reward(p.Level)
	sess.Fingerprints = append(sess.Fingerprints, fp.Hex())
	sess.LevelsCompleted++
	sess.PendingReward += reward
	sess.EarnedReward += reward
	sess.CurrentLevel++
	sess.LevelStartTime = ctx.Now

	completed := sess.CurrentLevel > levels.MaxLevel
	if completed {
		sess.Status = core.SessionCompleted
		sess.EndTime = ctx.Now
		if err := lockIn(ctx, sess); err != nil {
			return err
		}
	}
	if err := ctx.State.SetSession(sess); err != nil {
		return err
	}

	ctx.Receipt.SessionID = sess.ID
	ctx.Receipt.Level = sess.CurrentLevel
	ctx.Receipt.Completed = completed
	ctx.Receipt.Fingerprint = fp.Hex()
	ctx.Receipt.Amount = reward
	ctx.Emit(events.EventLevelCompleted, map[string]any{
		"session_id":      sess.ID,
		"player":          sess.Player,
		"level":           p.Level,
		"score":           p.Score,
		"units_destroyed": p.UnitsDestroyed,
		"fingerprint":     fp.Hex(),
		"reward":          reward,
	})
	if completed {
		ctx.Emit(events.EventSessionCompleted, map[string]any{
			"session_id":     sess.ID,
			"player":         sess.Player,
			"earned_reward":  sess.EarnedReward,
			"pending_reward": sess.PendingReward,
		})
	}
	return nil
}

func handleAbandon(ctx *vm.Context, payload json.RawMessage) error {
	var p core.SessionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode abandon payload: %w", err)
	}
	if _, err := runningPool(ctx); err != nil {
		return err
	}
	sess, err := ownedSession(ctx, p.SessionID)
	if err != nil {
		return err
	}
	if !sess.IsActive() {
		return fmt.Errorf("session %d is %s: %w", sess.ID, sess.Status, core.ErrNotActive)
	}

	// Partial progress is kept: pending reward stays claimable.
	sess.Status = core.SessionAbandoned
	sess.EndTime = ctx.Now
	if err := lockIn(ctx, sess); err != nil {
		return err
	}
	if err := ctx.State.SetSession(sess); err != nil {
		return err
	}

	ctx.Receipt.SessionID = sess.ID
	ctx.Receipt.Amount = sess.PendingReward
	ctx.Emit(events.EventSessionAbandoned, map[string]any{
		"session_id":       sess.ID,
		"player":           sess.Player,
		"levels_completed": sess.LevelsCompleted,
		"pending_reward":   sess.PendingReward,
	})
	return nil
}

func handleClaim(ctx *vm.Context, payload json.RawMessage) error {
	var p core.SessionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode claim payload: %w", err)
	}
	pool, err := runningPool(ctx)
	if err != nil {
		return err
	}
	sess, err := ownedSession(ctx, p.SessionID)
	if err != nil {
		return err
	}
	if sess.LevelsCompleted == 0 || sess.PendingReward == 0 {
		return fmt.Errorf("session %d: %w", sess.ID, core.ErrNothingToClaim)
	}
	amount := sess.PendingReward
	if pool.RewardBalance < amount {
		return fmt.Errorf("claim %d, pool holds %d: %w", amount, pool.RewardBalance, core.ErrPoolUnderfunded)
	}
	if ctx.Payout == nil {
		return errors.New("no payout mechanism configured")
	}

	sess.PendingReward = 0
	pool.RewardBalance -= amount
	pool.TotalRewardsDistributed += amount
	if err := ctx.State.SetSession(sess); err != nil {
		return err
	}
	if err := ctx.State.SetPool(pool); err != nil {
		return err
	}
	if err := ctx.Payout.Pay(ctx.State, sess.Player, amount); err != nil {
		return fmt.Errorf("pay out claim: %w", err)
	}

	ctx.Receipt.SessionID = sess.ID
	ctx.Receipt.Amount = amount
	ctx.Emit(events.EventRewardsClaimed, map[string]any{
		"session_id": sess.ID,
		"player":     sess.Player,
		"amount":     amount,
	})
	return nil
}
