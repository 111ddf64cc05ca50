package engine

import (
	"time"

	"marketbot/internal/repo"
)

// Reward policy. One canonical set of constants; every grant path below is
// the only place its rule is enforced.
const (
	CheckinReward     = 500.0
	CheckinWindow     = 24 * time.Hour
	AIChatReward      = 1000.0
	AIRewardCooldown  = 5 * time.Minute
	AIDailyRewardCap  = 2000.0
	AIDailyQuota      = 10
	ReferralReward    = 1500.0
	CommunityReward   = 50.0
	PatronageReward   = 5000.0
	RedeemThreshold   = 100000.0
)

// applyCheckin grants the daily check-in bonus when the rolling 24h window
// has elapsed. Returns whether a credit happened.
func applyCheckin(acc *repo.Account, now time.Time) bool {
	if acc.LastCheckin != nil && now.Sub(*acc.LastCheckin) < CheckinWindow {
		return false
	}
	acc.Points += CheckinReward
	t := now
	acc.LastCheckin = &t
	return true
}

// resetDailyAI zeroes the daily AI counters on the first interaction after
// UTC midnight of the stored usage date.
func resetDailyAI(acc *repo.Account, now time.Time) {
	if acc.LastAIUsage == nil {
		return
	}
	last := acc.LastAIUsage.UTC()
	today := now.UTC().Truncate(24 * time.Hour)
	if last.Before(today) {
		acc.DailyAICount = 0
		acc.AIPointsToday = 0
	}
}

// aiQuotaLeft reports whether the account may make another AI call today.
func aiQuotaLeft(acc *repo.Account) bool {
	return acc.DailyAICount < AIDailyQuota
}

// consumeAIQuota records one AI interaction.
func consumeAIQuota(acc *repo.Account, now time.Time) {
	acc.DailyAICount++
	t := now
	acc.LastAIUsage = &t
}

// applyAIReward grants the engagement reward when both the cooldown and the
// daily cap allow it. Returns whether a credit happened.
func applyAIReward(acc *repo.Account, now time.Time) bool {
	if acc.LastAIReward != nil && now.Sub(*acc.LastAIReward) < AIRewardCooldown {
		return false
	}
	if acc.AIPointsToday+AIChatReward > AIDailyRewardCap {
		return false
	}
	acc.Points += AIChatReward
	acc.AIPointsToday += AIChatReward
	t := now
	acc.LastAIReward = &t
	return true
}

// applyCommunityCode grants the one-time community bonus. Replaying the
// correct code after completion acknowledges without crediting.
func applyCommunityCode(acc *repo.Account) bool {
	if acc.CommunityTaskDone {
		return false
	}
	acc.CommunityTaskDone = true
	acc.Points += CommunityReward
	acc.IsActive = true
	return true
}
