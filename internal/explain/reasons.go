package explain

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/fraudguard/internal/domain"
)

// ReasonRule maps a boolean CEL expression over the transaction features to
// the phrase emitted when it holds.
type ReasonRule struct {
	Key        MessageKey
	Expression string
}

// DefaultReasonRules are evaluated in this order; each fires independently.
var DefaultReasonRules = []ReasonRule{
	{KeyHighDeviation, "transaction_amount_deviation > 0.5"},
	{KeyDistantLocation, "location_distance > 20.0"},
	{KeyNewMerchant, "merchant_novelty > 0.7"},
	{KeyUnusualTime, "time_anomaly > 0.6"},
	{KeyHighFrequency, "transaction_frequency > 10.0"},
}

type compiledReason struct {
	key     MessageKey
	program cel.Program
}

// Reasoner evaluates the reason rules for a request.
type Reasoner struct {
	rules []compiledReason
}

// NewReasoner compiles rules against the feature variables.
func NewReasoner(rules []ReasonRule) (*Reasoner, error) {
	env, err := cel.NewEnv(
		cel.Variable("transaction_amount", cel.DoubleType),
		cel.Variable("transaction_amount_deviation", cel.DoubleType),
		cel.Variable("time_anomaly", cel.DoubleType),
		cel.Variable("location_distance", cel.DoubleType),
		cel.Variable("merchant_novelty", cel.DoubleType),
		cel.Variable("transaction_frequency", cel.DoubleType),
		cel.Variable("is_fraud", cel.BoolType),
		cel.Variable("risk_score", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	compiled := make([]compiledReason, 0, len(rules))
	for _, r := range rules {
		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile reason %s: %w", r.Key, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("reason %s must be boolean, got %s", r.Key, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to build program for reason %s: %w", r.Key, err)
		}
		compiled = append(compiled, compiledReason{key: r.Key, program: prg})
	}

	return &Reasoner{rules: compiled}, nil
}

// Reasons returns the keys of every rule that holds, or KeyNormal when none
// do.
func (r *Reasoner) Reasons(req domain.ExplanationRequest) ([]MessageKey, error) {
	activation := map[string]any{
		"transaction_amount":           req.Amount,
		"transaction_amount_deviation": req.AmountDeviation,
		"time_anomaly":                 req.TimeAnomaly,
		"location_distance":            req.LocationDistance,
		"merchant_novelty":             req.MerchantNovelty,
		"transaction_frequency":        req.TransactionFrequency,
		"is_fraud":                     req.IsFraud,
		"risk_score":                   req.RiskScore,
	}

	var keys []MessageKey
	for _, rule := range r.rules {
		out, _, err := rule.program.Eval(activation)
		if err != nil {
			return nil, fmt.Errorf("evaluate reason %s: %w", rule.key, err)
		}
		if out == types.True {
			keys = append(keys, rule.key)
		}
	}

	if len(keys) == 0 {
		keys = []MessageKey{KeyNormal}
	}
	return keys, nil
}
