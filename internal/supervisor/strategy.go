package supervisor

// #region strategy-selection

// memoryMinSamples is the evidence floor before the strategy memory may
// override the escalation table.
const memoryMinSamples = 3

// selectStrategy picks the repair strategy for a given attempt number
// (0-based). Critical components never roll back to a backup; their final
// escalation is replacement with a standby. Non-critical components get one
// extra blueprint attempt before rollback.
//
// On a non-critical component's first attempt, a strategy memory with enough
// history overrides the table.
func selectStrategy(health *ComponentHealth, attempt int, mem *Memory) Strategy {
	if health.IsCritical {
		switch attempt {
		case 0:
			return StrategyIsolateAndRestart
		case 1:
			return StrategyReinitializeFromBlueprint
		default:
			return StrategyReplaceWithRedundant
		}
	}

	if attempt == 0 && mem != nil {
		if best, ok := mem.BestStrategy(health.ComponentName, memoryMinSamples); ok && best != StrategyEmergencyShutdown {
			return best
		}
	}

	switch attempt {
	case 0:
		return StrategyIsolateAndRestart
	case 1, 2:
		return StrategyReinitializeFromBlueprint
	default:
		return StrategyRollbackToBackup
	}
}

// #endregion strategy-selection
