package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SimulationPaperKey returns the cache key for a simulation's student-facing paper
func (r *CacheKeyStruct) SimulationPaperKey(simulationID string) string {
	return fmt.Sprintf("simulation:%s:paper", simulationID)
}

// SimulationLeaderboardKey returns the cache key for a simulation's ranked results
func (r *CacheKeyStruct) SimulationLeaderboardKey(simulationID string) string {
	return fmt.Sprintf("simulation:%s:leaderboard", simulationID)
}

// LiveSessionKey returns the cache key for a student's in-progress session snapshot
func (r *CacheKeyStruct) LiveSessionKey(simulationID, studentID string) string {
	return fmt.Sprintf("student:%s:simulation:%s:session", studentID, simulationID)
}

// AccountStatusKey returns the cache key holding whether a user account is active
func (r *CacheKeyStruct) AccountStatusKey(userID string) string {
	return fmt.Sprintf("user:%s:active", userID)
}

// SweepLockKey returns the lock key guarding a cron sweep against overlapping runs
func (r *CacheKeyStruct) SweepLockKey(sweep string) string {
	return fmt.Sprintf("sweep:%s:lock", sweep)
}

var CacheKey = NewCacheKeyStruct()

type WorkerKeyStruct struct {
	PushQueue     string
	AutosaveQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PushQueue:     "push_notifications_queue",
	AutosaveQueue: "persist_sessions_queue",
}
