package common

import "strconv"

// Sampling priorities
const (
	PriorityUnset       = -128
	PriorityUserDrop    = -1
	PrioritySamplerDrop = 0
	PrioritySamplerKeep = 1
	PriorityUserKeep    = 2
)

// Sampling mechanisms, reported in the _dd.p.dm tag
const (
	MechanismDefault   = 0
	MechanismAgentRate = 1
	MechanismManual    = 4
)

func PriorityName(priority int) string {

	switch priority {
	case PriorityUnset:
		return "unset"
	case PriorityUserDrop:
		return "user_drop"
	case PrioritySamplerDrop:
		return "sampler_drop"
	case PrioritySamplerKeep:
		return "sampler_keep"
	case PriorityUserKeep:
		return "user_keep"
	default:
		return strconv.Itoa(priority)
	}
}

func IsKept(priority int) bool {
	return priority > 0
}
