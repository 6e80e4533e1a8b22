package scaling

import (
	"net/http"

	"github.com/KOMKZ/go-yogan-guard/errcode"
)

var (
	// ErrRuleEvaluation malformed rule, rejected when added
	ErrRuleEvaluation = errcode.Register(errcode.New(errcode.ModuleScaling, 1,
		"scaling", "error.scaling.rule_invalid", "invalid scaling rule", http.StatusBadRequest))

	// ErrRuleNotFound no rule with that name
	ErrRuleNotFound = errcode.Register(errcode.New(errcode.ModuleScaling, 2,
		"scaling", "error.scaling.rule_not_found", "scaling rule not found", http.StatusNotFound))

	// ErrScaleEffect the capacity change was not applied
	ErrScaleEffect = errcode.Register(errcode.New(errcode.ModuleScaling, 3,
		"scaling", "error.scaling.effect_failed", "capacity change failed", http.StatusBadGateway))

	// ErrInvalidInstances negative instance count
	ErrInvalidInstances = errcode.Register(errcode.New(errcode.ModuleScaling, 4,
		"scaling", "error.scaling.invalid_instances", "instance count must not be negative", http.StatusBadRequest))
)
