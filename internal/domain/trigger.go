package domain

import "github.com/google/uuid"

// TriggerOperator combines a group's conditions.
type TriggerOperator string

const (
	OperatorAND TriggerOperator = "AND"
	OperatorOR  TriggerOperator = "OR"
)

// TriggerComparison compares a resolved metric against a threshold.
type TriggerComparison string

const (
	CompareGT TriggerComparison = ">"
	CompareLT TriggerComparison = "<"
	CompareEQ TriggerComparison = "="
	CompareGE TriggerComparison = ">="
	CompareLE TriggerComparison = "<="
)

// TriggerType decides the side effect of a matching group.
type TriggerType string

const (
	TriggerWatch   TriggerType = "watch"
	TriggerUnwatch TriggerType = "unwatch"
)

// Metric names resolvable by the trigger evaluator. Unrecognized names
// resolve to 0 rather than erroring.
const (
	MetricVolumeRate      = "volumeRate"
	MetricTradeFrequency  = "tradeFrequency"
	MetricPriceChange     = "priceChange"
	MetricTotalVolume     = "totalVolume"
	MetricVolumeDecline   = "volumeDecline"
	MetricInactiveTime    = "inactiveTime"
	MetricPriceDrop       = "priceDrop"
	MetricBuyPercentage   = "buyPercentage"
	MetricBuyCount        = "buyCount"
	MetricConsecutiveBuys = "consecutiveBuys"

	// Text-pattern conditions; evaluated structurally, not numerically.
	MetricWildcardSearch = "wildcardSearch"
	MetricLLMPrompt      = "llmPrompt"
)

// TriggerCondition is one leaf of a group's boolean expression.
// Numeric conditions need Comparison and Value; text-pattern conditions
// carry Pattern (wildcardSearch) or Prompt (llmPrompt) instead. A
// condition missing its required pieces evaluates to false, never errors.
type TriggerCondition struct {
	ID         string            `json:"id"`
	Metric     string            `json:"metric"`
	Comparison TriggerComparison `json:"comparison,omitempty"`
	Value      *float64          `json:"value,omitempty"`
	Pattern    string            `json:"pattern,omitempty"`
	Prompt     string            `json:"prompt,omitempty"`
	Unit       string            `json:"unit"`
}

// TriggerGroup is a user-authored rule over streaming metrics.
// Evaluation never mutates a group.
type TriggerGroup struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Enabled    bool               `json:"enabled"`
	Type       TriggerType        `json:"type"`
	Operator   TriggerOperator    `json:"operator"`
	Conditions []TriggerCondition `json:"conditions"`
}

// NewTriggerGroup creates an enabled group with a fresh ID.
func NewTriggerGroup(name string, typ TriggerType, op TriggerOperator, conds ...TriggerCondition) *TriggerGroup {
	return &TriggerGroup{
		ID:         uuid.NewString(),
		Name:       name,
		Enabled:    true,
		Type:       typ,
		Operator:   op,
		Conditions: conds,
	}
}

// NewNumericCondition creates a threshold condition with a fresh ID.
func NewNumericCondition(metric string, cmp TriggerComparison, value float64) TriggerCondition {
	return TriggerCondition{
		ID:         uuid.NewString(),
		Metric:     metric,
		Comparison: cmp,
		Value:      &value,
	}
}
