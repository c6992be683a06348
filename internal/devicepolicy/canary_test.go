package devicepolicy

import "testing"

func TestCanaryController_StartRollout(t *testing.T) {
	c := NewCanaryController(CanaryConfig{})

	status := c.StartRollout("2.0.0")
	if status.Stage != "CANARY" || status.Percent != 1 {
		t.Errorf("StartRollout() = %+v, want stage CANARY at 1%%", status)
	}
}

func TestCanaryController_PromotesThroughStages(t *testing.T) {
	c := NewCanaryController(CanaryConfig{})
	c.StartRollout("2.0.0")

	want := []struct {
		stage   string
		percent int
	}{
		{"STAGED", 10},
		{"BROAD", 50},
		{"GA", 100},
	}

	for _, w := range want {
		status := c.EvaluateAndAdvance(0.0, 0.0)
		if status.Status != "promoted" && status.Status != "ga_complete" {
			t.Fatalf("EvaluateAndAdvance() status = %s, want promoted or ga_complete", status.Status)
		}
		if status.Stage != w.stage || status.Percent != w.percent {
			t.Errorf("EvaluateAndAdvance() = %+v, want stage %s at %d%%", status, w.stage, w.percent)
		}
	}

	final := c.EvaluateAndAdvance(0.0, 0.0)
	if final.Status != "ga_complete" {
		t.Errorf("status of evaluation at GA = %s, want ga_complete", final.Status)
	}
}

func TestCanaryController_RollbackOnErrorRate(t *testing.T) {
	c := NewCanaryController(CanaryConfig{ErrorRateThreshold: 0.02, HeartbeatLossThreshold: 0.05})
	c.StartRollout("2.0.0")

	status := c.EvaluateAndAdvance(0.05, 0.01)
	if status.Status != "rolled_back" {
		t.Fatalf("status = %s, want rolled_back", status.Status)
	}
	if status.Reason == "" {
		t.Error("rollback reason should not be empty")
	}

	after := c.EvaluateAndAdvance(0.0, 0.0)
	if after.Status != "no_active_rollout" {
		t.Errorf("rollback should be terminal, got status = %s", after.Status)
	}
}

func TestCanaryController_RollbackOnHeartbeatLoss(t *testing.T) {
	c := NewCanaryController(CanaryConfig{})
	c.StartRollout("2.0.0")

	status := c.EvaluateAndAdvance(0.0, 0.10)
	if status.Status != "rolled_back" {
		t.Fatalf("status = %s, want rolled_back", status.Status)
	}
}

func TestCanaryController_NoActiveRollout(t *testing.T) {
	c := NewCanaryController(CanaryConfig{})
	status := c.EvaluateAndAdvance(0.0, 0.0)
	if status.Status != "no_active_rollout" {
		t.Errorf("status = %s, want no_active_rollout", status.Status)
	}
}
