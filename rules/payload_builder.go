package rules

import (
	"fmt"
	"strings"
)

// PayloadRuleBuilder 构造针对决策载荷的通用校验规则。每条规则都绑定一个
// action_type，载荷的 action_type 不匹配时规则直接通过。
type PayloadRuleBuilder struct{}

// NewPayloadRuleBuilder 创建载荷规则构造器
func NewPayloadRuleBuilder() *PayloadRuleBuilder {
	return &PayloadRuleBuilder{}
}

// FieldType 类型校验支持的类型标签
type FieldType string

const (
	TypeString FieldType = "string"
	TypeNumber FieldType = "number"
	TypeBool   FieldType = "bool"
	TypeMap    FieldType = "map"
	TypeList   FieldType = "list"
)

// BuildRequiredFieldsRule 必填字段规则：缺失或空集合的字段记入
// payload["_missing_fields"]。
func (b *PayloadRuleBuilder) BuildRequiredFieldsRule(action string, fields []string, priority int) Rule {
	return Rule{
		ID:       fmt.Sprintf("required_fields_%s", action),
		Name:     fmt.Sprintf("%s 必填字段检查", action),
		Priority: priority,
		Condition: func(payload map[string]any) bool {
			if actionType(payload) != action {
				return true
			}
			var missing []string
			for _, field := range fields {
				value, ok := lookupPath(payload, field)
				if !ok || isEmptyValue(value) {
					missing = append(missing, field)
				}
			}
			if len(missing) > 0 {
				payload["_missing_fields"] = missing
				return false
			}
			return true
		},
		Message: func(payload map[string]any) string {
			if missing, ok := payload["_missing_fields"].([]string); ok {
				return fmt.Sprintf("缺少必填字段: %s", strings.Join(missing, ", "))
			}
			return "缺少必填字段"
		},
		Correction: func(payload map[string]any) map[string]any {
			return map[string]any{"required_fields": fields}
		},
	}
}

// BuildTypeValidationRule 类型校验规则。fieldTypes 的值可以是单个
// FieldType，也可以是 []FieldType 表示联合类型；键支持点号路径。
func (b *PayloadRuleBuilder) BuildTypeValidationRule(action string, fieldTypes map[string]any, priority int) Rule {
	return Rule{
		ID:       fmt.Sprintf("type_validation_%s", action),
		Name:     fmt.Sprintf("%s 字段类型检查", action),
		Priority: priority,
		Condition: func(payload map[string]any) bool {
			if actionType(payload) != action {
				return true
			}
			var problems []string
			for field, expected := range fieldTypes {
				value, ok := lookupPath(payload, field)
				if !ok {
					continue
				}
				if !matchesAnyType(value, expected) {
					problems = append(problems, fmt.Sprintf("%s 应为 %s", field, typeLabel(expected)))
				}
			}
			if len(problems) > 0 {
				payload["_type_errors"] = problems
				return false
			}
			return true
		},
		Message: func(payload map[string]any) string {
			if problems, ok := payload["_type_errors"].([]string); ok {
				return fmt.Sprintf("字段类型错误: %s", strings.Join(problems, "; "))
			}
			return "字段类型错误"
		},
	}
}

// NumericRange 数值范围，nil 表示该侧无界。
type NumericRange struct {
	Min *float64
	Max *float64
}

// BuildRangeValidationRule 数值范围规则。非数值或缺失的字段静默跳过。
func (b *PayloadRuleBuilder) BuildRangeValidationRule(action string, ranges map[string]NumericRange, priority int) Rule {
	return Rule{
		ID:       fmt.Sprintf("range_validation_%s", action),
		Name:     fmt.Sprintf("%s 数值范围检查", action),
		Priority: priority,
		Condition: func(payload map[string]any) bool {
			if actionType(payload) != action {
				return true
			}
			var problems []string
			for field, r := range ranges {
				value, ok := lookupPath(payload, field)
				if !ok {
					continue
				}
				num, ok := asFloat(value)
				if !ok {
					continue
				}
				if r.Min != nil && num < *r.Min {
					problems = append(problems, fmt.Sprintf("%s=%v 小于下限 %v", field, num, *r.Min))
				}
				if r.Max != nil && num > *r.Max {
					problems = append(problems, fmt.Sprintf("%s=%v 超过上限 %v", field, num, *r.Max))
				}
			}
			if len(problems) > 0 {
				payload["_range_errors"] = problems
				return false
			}
			return true
		},
		Message: func(payload map[string]any) string {
			if problems, ok := payload["_range_errors"].([]string); ok {
				return fmt.Sprintf("数值越界: %s", strings.Join(problems, "; "))
			}
			return "数值越界"
		},
	}
}

// BuildEnumValidationRule 枚举规则：字段值必须落在允许列表内。
func (b *PayloadRuleBuilder) BuildEnumValidationRule(action, field string, allowed []any, priority int) Rule {
	return Rule{
		ID:       fmt.Sprintf("enum_validation_%s_%s", action, field),
		Name:     fmt.Sprintf("%s %s 枚举检查", action, field),
		Priority: priority,
		Condition: func(payload map[string]any) bool {
			if actionType(payload) != action {
				return true
			}
			value, ok := lookupPath(payload, field)
			if !ok {
				return false
			}
			for _, candidate := range allowed {
				if value == candidate {
					return true
				}
			}
			return false
		},
		Message: func(payload map[string]any) string {
			value, _ := lookupPath(payload, field)
			return fmt.Sprintf("%s=%v 不在允许范围 %v 内", field, value, allowed)
		},
		Correction: func(payload map[string]any) map[string]any {
			return map[string]any{field: allowed}
		},
	}
}

// lookupPath 支持点号路径的嵌套读取
func lookupPath(payload map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = payload
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// isEmptyValue 空串与空集合视为缺失
func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case []map[string]any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func matchesAnyType(value, expected any) bool {
	switch t := expected.(type) {
	case FieldType:
		return matchesType(value, t)
	case []FieldType:
		for _, ft := range t {
			if matchesType(value, ft) {
				return true
			}
		}
		return false
	}
	return false
}

func matchesType(value any, ft FieldType) bool {
	switch ft {
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeNumber:
		_, ok := asFloat(value)
		return ok
	case TypeBool:
		_, ok := value.(bool)
		return ok
	case TypeMap:
		_, ok := value.(map[string]any)
		return ok
	case TypeList:
		switch value.(type) {
		case []any, []string, []map[string]any:
			return true
		}
		return false
	}
	return false
}

func typeLabel(expected any) string {
	switch t := expected.(type) {
	case FieldType:
		return string(t)
	case []FieldType:
		labels := make([]string, len(t))
		for i, ft := range t {
			labels[i] = string(ft)
		}
		return strings.Join(labels, "|")
	}
	return fmt.Sprintf("%v", expected)
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}
