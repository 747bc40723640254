package negotiation

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

const scoreEpsilon = 1e-9

// Satisfaction 提案对某 Agent 的满意度：1 减去加权归一化距离。
// 每个条款的距离按 max(|理想值|, 1) 归一化并截断到 1，提案缺少的条款按最大距离计。
// 没有任何偏好的 Agent 对所有提案满意度为 1。
func Satisfaction(interest StakeholderInterest, terms map[string]float64) float64 {
	if len(interest.Preferred) == 0 {
		return 1
	}
	var total, distance float64
	for _, k := range sortedKeys(interest.Preferred) {
		w := 1.0
		if v, ok := interest.Weights[k]; ok && v >= 0 {
			w = v
		}
		if w == 0 {
			continue
		}
		total += w
		v, ok := terms[k]
		if !ok {
			distance += w
			continue
		}
		pref := interest.Preferred[k]
		d := math.Abs(v-pref) / math.Max(math.Abs(pref), 1)
		distance += w * math.Min(d, 1)
	}
	if total == 0 {
		return 1
	}
	return clamp01(1 - distance/total)
}

// AcceptanceThreshold Agent 接受提案所需的最低满意度
func AcceptanceThreshold(interest StakeholderInterest, consensus float64) float64 {
	if interest.Tolerance > 0 {
		return clamp01(1 - interest.Tolerance)
	}
	return clamp01(consensus)
}

// concede 从 own 向 target 移动 flex 比例，缺失条款取对方取值
func concede(own, target map[string]float64, flex float64) map[string]float64 {
	flex = clamp01(flex)
	out := make(map[string]float64, len(own)+len(target))
	for k, v := range own {
		out[k] = v
	}
	for k, t := range target {
		o, ok := out[k]
		if !ok {
			out[k] = t
			continue
		}
		out[k] = o + flex*(t-o)
	}
	return out
}

func termsEqual(a, b map[string]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || math.Abs(v-w) > scoreEpsilon {
			return false
		}
	}
	return true
}

// canonicalTerms 条款的稳定文本形式，用于比较立场
func canonicalTerms(terms map[string]float64) string {
	var sb strings.Builder
	for i, k := range sortedKeys(terms) {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(strconv.FormatFloat(terms[k], 'f', 6, 64))
	}
	return sb.String()
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
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
