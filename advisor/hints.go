package advisor

import (
	"fmt"
	"sort"
	"strings"
)

// StructureHint 协作结构建议
type StructureHint struct {
	Topology  string
	Protocols []string
	Notes     string
}

// ElaborationHint 冲突处理补充说明
type ElaborationHint struct {
	Rationale     string
	ActionDetails map[string]string // action type -> 补充说明
	FollowUps     []string
}

// Alternative 谈判备选方案
type Alternative struct {
	Description string
	Terms       map[string]float64
}

// AlternativesHint 谈判备选方案集合
type AlternativesHint struct {
	Alternatives []Alternative
}

// DecodeStructureHint 从原始响应中提取结构建议，缺失或类型不符的字段被忽略
func DecodeStructureHint(raw map[string]any) StructureHint {
	return StructureHint{
		Topology:  strings.ToLower(stringField(raw, "topology")),
		Protocols: stringSlice(raw, "protocols"),
		Notes:     stringField(raw, "notes"),
	}
}

// DecodeElaborationHint 从原始响应中提取冲突处理说明
func DecodeElaborationHint(raw map[string]any) ElaborationHint {
	hint := ElaborationHint{
		Rationale: stringField(raw, "rationale"),
		FollowUps: stringSlice(raw, "follow_ups"),
	}
	if m, ok := raw["action_details"].(map[string]any); ok {
		hint.ActionDetails = make(map[string]string, len(m))
		for k, v := range m {
			if s, ok := v.(string); ok && s != "" {
				hint.ActionDetails[k] = s
			}
		}
	}
	if m, ok := raw["action_details"].(map[string]string); ok {
		hint.ActionDetails = make(map[string]string, len(m))
		for k, v := range m {
			if v != "" {
				hint.ActionDetails[k] = v
			}
		}
	}
	return hint
}

// DecodeAlternativesHint 从原始响应中提取备选方案
func DecodeAlternativesHint(raw map[string]any) AlternativesHint {
	var hint AlternativesHint
	switch items := raw["alternatives"].(type) {
	case []Alternative:
		hint.Alternatives = append(hint.Alternatives, items...)
	case []any:
		for _, item := range items {
			switch v := item.(type) {
			case string:
				if v != "" {
					hint.Alternatives = append(hint.Alternatives, Alternative{Description: v})
				}
			case map[string]any:
				alt := Alternative{Description: stringField(v, "description"), Terms: floatMap(v, "terms")}
				if alt.Description != "" || len(alt.Terms) > 0 {
					hint.Alternatives = append(hint.Alternatives, alt)
				}
			}
		}
	}
	return hint
}

func stringField(raw map[string]any, key string) string {
	if raw == nil {
		return ""
	}
	s, _ := raw[key].(string)
	return strings.TrimSpace(s)
}

func stringSlice(raw map[string]any, key string) []string {
	if raw == nil {
		return nil
	}
	var out []string
	switch v := raw[key].(type) {
	case []string:
		for _, s := range v {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func floatMap(raw map[string]any, key string) map[string]float64 {
	m, ok := raw[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		switch n := v.(type) {
		case float64:
			out[k] = n
		case float32:
			out[k] = float64(n)
		case int:
			out[k] = float64(n)
		case int64:
			out[k] = float64(n)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// TermsPayload 将条款转换为顾问可读的有序列表
func TermsPayload(terms map[string]float64) []string {
	keys := make([]string, 0, len(terms))
	for k := range terms {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%g", k, terms[k]))
	}
	return out
}
