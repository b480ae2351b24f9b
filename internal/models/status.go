package models

// Допустимые переходы статусов плана. Терминальные статусы переходов не имеют.
var routePlanTransitions = map[string][]string{
	RoutePlanStatusPlanned: {
		RoutePlanStatusActive,
		RoutePlanStatusOnConfirmation,
		RoutePlanStatusCancelled,
	},
	RoutePlanStatusActive: {
		RoutePlanStatusCompleted,
		RoutePlanStatusOnConfirmation,
		RoutePlanStatusCancelled,
	},
	RoutePlanStatusOnConfirmation: {
		RoutePlanStatusPlanned,
		RoutePlanStatusCancelled,
	},
	RoutePlanStatusCompleted: {},
	RoutePlanStatusCancelled: {},
}

func IsTerminalStatus(status string) bool {
	return status == RoutePlanStatusCompleted || status == RoutePlanStatusCancelled
}

func IsValidRoutePlanStatus(status string) bool {
	_, ok := routePlanTransitions[status]
	return ok
}

// CanTransition reports whether a plan may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range routePlanTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsValidAvoidanceStatus(status string) bool {
	switch status {
	case AvoidanceStatusPending, AvoidanceStatusApproved, AvoidanceStatusRejected:
		return true
	}
	return false
}
