package conflict

import "github.com/BaSui01/collabengine/types"

// escalationThreshold 成功概率低于该值时必须升级
const escalationThreshold = 0.4

// defaultHistoricalRate 无历史记录时的解决成功率
const defaultHistoricalRate = 0.5

// SelectStrategy 按冲突类型与严重程度确定性地选择策略
func SelectStrategy(t Type, s types.Severity) Strategy {
	switch t {
	case TypePriorityDisagreement:
		return StrategyArbitration
	case TypeMethodologyDisagreement:
		switch s {
		case types.SeverityLow:
			return StrategyCompromise
		case types.SeverityMedium:
			return StrategyMediation
		case types.SeverityHigh:
			return StrategyArbitration
		default:
			return StrategyEscalation
		}
	case TypeFundamentalDisagreement:
		if s.Rank() >= types.SeverityHigh.Rank() {
			return StrategyEscalation
		}
		return StrategyMediation
	default:
		// resource_competition 与未知类型共用同一列
		switch s {
		case types.SeverityLow, types.SeverityMedium:
			return StrategyMediation
		case types.SeverityHigh:
			return StrategyArbitration
		default:
			return StrategyEscalation
		}
	}
}

func severityScore(s types.Severity) float64 {
	switch s {
	case types.SeverityLow:
		return 0.9
	case types.SeverityMedium:
		return 0.7
	case types.SeverityHigh:
		return 0.45
	default:
		return 0.2
	}
}

// SuccessProbability 由严重程度、历史成功率与影响面估算成功概率
func SuccessProbability(s types.Severity, historicalRate float64, impact ImpactAssessment) float64 {
	p := 0.5*severityScore(s) + 0.5*historicalRate - 0.1*clamp01(impact.mean())
	return clamp01(p)
}

// RequiresEscalation 升级条件：critical、低成功概率或策略本身即升级
func RequiresEscalation(s types.Severity, probability float64, strategy Strategy) bool {
	return s == types.SeverityCritical || probability < escalationThreshold || strategy == StrategyEscalation
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
