package selector

import "fmt"

// Strategy names an algorithm for choosing among enabled providers.
type Strategy int

const (
	// StrategyManual selects the explicitly requested provider.
	StrategyManual Strategy = iota
	// StrategyCost selects the lowest average cost per request.
	StrategyCost
	// StrategyPerformance selects the lowest average latency.
	StrategyPerformance
	// StrategyQuality selects the lowest error rate.
	StrategyQuality
	// StrategyRoundRobin cycles through enabled providers in order.
	StrategyRoundRobin
	// StrategyABTest splits traffic between a primary and a secondary.
	StrategyABTest
)

// String returns the string representation of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyManual:
		return "manual"
	case StrategyCost:
		return "cost-optimized"
	case StrategyPerformance:
		return "performance-optimized"
	case StrategyQuality:
		return "quality-optimized"
	case StrategyRoundRobin:
		return "round-robin"
	case StrategyABTest:
		return "ab-test"
	default:
		return "unknown"
	}
}

// ParseStrategy parses a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "manual":
		return StrategyManual, nil
	case "cost-optimized":
		return StrategyCost, nil
	case "performance-optimized":
		return StrategyPerformance, nil
	case "quality-optimized":
		return StrategyQuality, nil
	case "round-robin":
		return StrategyRoundRobin, nil
	case "ab-test":
		return StrategyABTest, nil
	default:
		return 0, fmt.Errorf("unknown selection strategy %q", s)
	}
}
