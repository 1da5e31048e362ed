package client

import (
	"slices"
	"strconv"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-bridge/internal/observability"
)

// Detailed condition categories.
const (
	ConditionClear        = 0
	ConditionFewClouds    = 1
	ConditionBrokenClouds = 2
	ConditionOvercast     = 3
	ConditionFog          = 4
	ConditionDrizzle      = 5
	ConditionRain         = 6
	ConditionHail         = 7
	ConditionSnow         = 8
	ConditionSevere       = 9
)

// Coarse condition categories.
const (
	ConditionCoarseClear  = 0
	ConditionCoarseCloudy = 1
	ConditionCoarseRain   = 2
	ConditionCoarseSnow   = 3
)

type conditionRule struct {
	codes    []int
	coarse   int
	detailed int
}

// Order matters: code 8 is listed as rain and drizzle, the first rule wins.
var conditionRules = []conditionRule{
	{codes: []int{0, 1, 2, 3}, coarse: ConditionCoarseRain, detailed: ConditionSevere},
	{codes: []int{13, 14, 15, 16, 41, 42, 43, 46}, coarse: ConditionCoarseSnow, detailed: ConditionSnow},
	{codes: []int{17}, coarse: ConditionCoarseSnow, detailed: ConditionHail},
	{codes: []int{4, 5, 6, 7, 8, 10, 11, 35, 39, 40, 45, 47}, coarse: ConditionCoarseRain, detailed: ConditionRain},
	{codes: []int{8, 9, 38}, coarse: ConditionCoarseRain, detailed: ConditionDrizzle},
	{codes: []int{20, 21, 22}, coarse: ConditionCoarseCloudy, detailed: ConditionFog},
	{codes: []int{26, 27, 28}, coarse: ConditionCoarseCloudy, detailed: ConditionOvercast},
	{codes: []int{29, 30}, coarse: ConditionCoarseCloudy, detailed: ConditionBrokenClouds},
	{codes: []int{33, 34}, coarse: ConditionCoarseClear, detailed: ConditionFewClouds},
	{codes: []int{31, 32, 36}, coarse: ConditionCoarseClear, detailed: ConditionClear},
}

// CategoryOf classifies a weather.com icon code. Unknown codes classify as clear and are
// logged and counted.
func CategoryOf(logger *zap.Logger, iconCode int, detailed bool) int {
	for _, rule := range conditionRules {
		if !slices.Contains(rule.codes, iconCode) {
			continue
		}
		if detailed {
			return rule.detailed
		}
		return rule.coarse
	}

	observability.UnknownIconCodesTotal.WithLabelValues(strconv.Itoa(iconCode)).Inc()
	if logger != nil {
		logger.Warn("unknown weather icon code", zap.Int("icon_code", iconCode))
	}
	return ConditionClear
}

func isRain(detailed int) bool {
	return detailed == ConditionDrizzle || detailed == ConditionRain || detailed == ConditionSevere
}

func isSnow(detailed int) bool {
	return detailed == ConditionHail || detailed == ConditionSnow
}
