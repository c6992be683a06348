package devicepolicy

import (
	"fmt"
	"sync"
)

// CanaryStage is one step of the staged DPC rollout.
type CanaryStage struct {
	Name              string
	Percent           int
	ObservationHours  int
}

// canaryStages is the fixed, ordered stage sequence every rollout walks through.
var canaryStages = []CanaryStage{
	{Name: "CANARY", Percent: 1, ObservationHours: 24},
	{Name: "STAGED", Percent: 10, ObservationHours: 24},
	{Name: "BROAD", Percent: 50, ObservationHours: 12},
	{Name: "GA", Percent: 100, ObservationHours: 0},
}

// CanaryConfig configures the health thresholds that trigger a rollback.
// Zero values fall back to the spec's reference defaults.
type CanaryConfig struct {
	ErrorRateThreshold     float64
	HeartbeatLossThreshold float64
}

// CanaryController drives a single staged DPC version rollout at a time,
// promoting or rolling it back based on fleet health observations.
type CanaryController struct {
	errorRateThreshold     float64
	heartbeatLossThreshold float64

	mu         sync.Mutex
	active     bool
	version    string
	stageIndex int
}

// NewCanaryController creates a CanaryController with no active rollout.
func NewCanaryController(cfg CanaryConfig) *CanaryController {
	errThresh := cfg.ErrorRateThreshold
	if errThresh <= 0 {
		errThresh = 0.02
	}
	hbThresh := cfg.HeartbeatLossThreshold
	if hbThresh <= 0 {
		hbThresh = 0.05
	}
	return &CanaryController{
		errorRateThreshold:     errThresh,
		heartbeatLossThreshold: hbThresh,
	}
}

// RolloutStatus is a point-in-time snapshot of the canary controller.
type RolloutStatus struct {
	Status  string // started, active, promoted, rolled_back, ga_complete, no_active_rollout
	Active  bool
	Version string
	Stage   string
	Percent int
	Reason  string
}

// StartRollout begins a new rollout of version at the first stage. A prior
// rollout, whether active or already terminal, is discarded.
func (c *CanaryController) StartRollout(version string) RolloutStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.version = version
	c.stageIndex = 0
	c.active = true

	stage := canaryStages[0]
	return RolloutStatus{
		Status:  "started",
		Active:  true,
		Version: version,
		Stage:   stage.Name,
		Percent: stage.Percent,
	}
}

// EvaluateAndAdvance consults the current stage's health thresholds and
// either rolls back, promotes to the next stage, or — at GA — completes
// the rollout. Rollback is terminal: a new rollout requires StartRollout.
func (c *CanaryController) EvaluateAndAdvance(errorRate, heartbeatLossRate float64) RolloutStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return RolloutStatus{Status: "no_active_rollout"}
	}

	stage := canaryStages[c.stageIndex]

	if errorRate >= c.errorRateThreshold {
		return c.rollback(stage, fmt.Sprintf("error rate %.2f%% >= %.2f%%", errorRate*100, c.errorRateThreshold*100))
	}
	if heartbeatLossRate >= c.heartbeatLossThreshold {
		return c.rollback(stage, fmt.Sprintf("heartbeat loss %.2f%% >= %.2f%%", heartbeatLossRate*100, c.heartbeatLossThreshold*100))
	}

	if c.stageIndex < len(canaryStages)-1 {
		c.stageIndex++
		next := canaryStages[c.stageIndex]
		return RolloutStatus{
			Status:  "promoted",
			Active:  true,
			Version: c.version,
			Stage:   next.Name,
			Percent: next.Percent,
		}
	}

	c.active = false
	return RolloutStatus{
		Status:  "ga_complete",
		Active:  false,
		Version: c.version,
		Stage:   stage.Name,
		Percent: stage.Percent,
	}
}

// rollback terminates the rollout. Caller must hold c.mu.
func (c *CanaryController) rollback(stage CanaryStage, reason string) RolloutStatus {
	c.active = false
	return RolloutStatus{
		Status:  "rolled_back",
		Active:  false,
		Version: c.version,
		Stage:   stage.Name,
		Percent: stage.Percent,
		Reason:  reason,
	}
}

// CurrentStatus returns a snapshot of the controller without mutating it.
func (c *CanaryController) CurrentStatus() RolloutStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return RolloutStatus{Status: "no_active_rollout", Active: false, Version: c.version}
	}

	stage := canaryStages[c.stageIndex]
	return RolloutStatus{
		Status:  "active",
		Active:  true,
		Version: c.version,
		Stage:   stage.Name,
		Percent: stage.Percent,
	}
}
