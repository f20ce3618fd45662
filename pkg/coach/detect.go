// DietBuddy - WhatsApp diet coaching agent
// License: MIT
// Copyright (c) 2026 DietBuddy contributors

package coach

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	glassML          = 250
	dailyWaterGoalML = 3000
)

// Assessment is what the detectors concluded about one inbound message.
// At most one of Water/Food/Summary/MealSuggestion drives the appended
// instruction; precedence is help, water, summary, food.
type Assessment struct {
	Help           bool
	Water          bool
	WaterML        int64
	Food           bool
	MealType       string
	Summary        bool
	MealSuggestion bool
}

// Assess runs all detectors over one message. The timestamp picks the
// meal type for food logs in the coach's timezone.
func (c *Coach) Assess(message string, now time.Time) Assessment {
	var a Assessment

	if DetectHelp(message) {
		a.Help = true
		return a
	}

	food := DetectFood(message)
	if DetectWater(message) && !food {
		a.Water = true
		a.WaterML = WaterAmountML(message)
		return a
	}
	if DetectSummaryRequest(message) {
		a.Summary = true
		return a
	}
	if food {
		a.Food = true
		a.MealType = MealTypeForHour(now.In(c.loc).Hour())
	}
	if DetectMealSuggestion(message) {
		a.MealSuggestion = true
	}
	return a
}

var foodTriggers = []string{
	"ate ", "had ", "eaten ", "i ate", "i had", "i eaten",
	"khaya", "khayi", "khali", "kha liya", "kha li",
	"for breakfast", "for lunch", "for dinner", "for snack",
	"breakfast:", "lunch:", "dinner:", "snack:",
	"breakfast -", "lunch -", "dinner -", "snack -",
	"morning me", "dopahar me", "raat ko", "shaam ko",
	"just had", "just ate", "finished eating",
	"abhi khaya", "abhi khayi",
}

// Short messages that are just a dish name count as food logs too.
var foodItems = []string{
	"dosa", "idli", "upma", "poha", "paratha", "roti", "chapati",
	"rice", "chawal", "dal", "daal", "sabzi", "sabji", "curry",
	"biryani", "pulao", "khichdi", "maggi", "noodles", "pasta",
	"sandwich", "burger", "pizza", "samosa", "pakora", "vada",
	"paneer", "chicken", "egg", "omelette", "omlette",
	"curd", "dahi", "raita", "lassi", "buttermilk", "chaas",
	"chai", "tea", "coffee", "milk", "doodh",
	"fruit", "banana", "apple", "mango", "papaya",
	"salad", "soup", "smoothie", "juice",
	"biscuit", "cookie", "cake", "mithai", "sweet",
	"puri", "bhaji", "chole", "rajma", "aloo",
	"thali", "dabba", "tiffin",
}

func DetectFood(message string) bool {
	msg := strings.ToLower(strings.TrimSpace(message))

	for _, trigger := range foodTriggers {
		if strings.Contains(msg, trigger) {
			return true
		}
	}

	if len(strings.Fields(msg)) <= 8 {
		for _, item := range foodItems {
			if strings.Contains(msg, item) {
				return true
			}
		}
	}
	return false
}

var waterTriggers = []string{
	"water", "paani", "pani", "drank water", "had water",
	"glass of water", "glass water", "hydrat",
	"paani piya", "pani piya", "pani pi",
}

func DetectWater(message string) bool {
	msg := strings.ToLower(strings.TrimSpace(message))
	for _, t := range waterTriggers {
		if strings.Contains(msg, t) {
			return true
		}
	}
	return false
}

var (
	waterMLRe    = regexp.MustCompile(`(\d+)\s*ml\b`)
	waterLitreRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:l|litre|litres|liter|liters)\b`)
	numberRe     = regexp.MustCompile(`\d+`)
)

// WaterAmountML reads an explicit quantity out of a water message.
// Bare small numbers read as glasses; anything else falls back to one
// glass, same as a plain "water".
func WaterAmountML(message string) int64 {
	msg := strings.ToLower(message)

	if m := waterMLRe.FindStringSubmatch(msg); m != nil {
		if n, err := strconv.ParseInt(m[1], 10, 64); err == nil && n > 0 && n <= 5000 {
			return n
		}
	}
	if m := waterLitreRe.FindStringSubmatch(msg); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil && f > 0 && f <= 5 {
			return int64(f * 1000)
		}
	}
	if m := numberRe.FindString(msg); m != "" {
		if n, err := strconv.ParseInt(m, 10, 64); err == nil && n >= 1 && n <= 10 {
			return n * glassML
		}
	}
	return glassML
}

var summaryTriggers = []string{
	"summary", "weekly summary", "week summary",
	"what did i eat", "today's log", "todays log",
	"my log", "show log", "food log", "today log",
	"kya khaya aaj", "aaj kya khaya",
	"this week", "is hafte",
}

func DetectSummaryRequest(message string) bool {
	msg := strings.ToLower(strings.TrimSpace(message))
	for _, t := range summaryTriggers {
		if strings.Contains(msg, t) {
			return true
		}
	}
	return false
}

var suggestionTriggers = []string{
	"what should i eat", "what to eat", "suggest",
	"kya khau", "kya khaun", "kya khana",
	"meal idea", "food idea", "recipe",
	"breakfast idea", "lunch idea", "dinner idea",
	"what can i have", "what can i eat",
	"hungry", "bhookh", "bhook",
	"feeling like eating", "craving",
}

func DetectMealSuggestion(message string) bool {
	msg := strings.ToLower(strings.TrimSpace(message))
	for _, t := range suggestionTriggers {
		if strings.Contains(msg, t) {
			return true
		}
	}
	return false
}

func DetectHelp(message string) bool {
	switch strings.ToLower(strings.TrimSpace(message)) {
	case "help", "?", "commands", "kya kar sakte ho", "what can you do":
		return true
	}
	return false
}

// MealTypeForHour buckets a local hour into the meal slot food logs get
// tagged with.
func MealTypeForHour(hour int) string {
	switch {
	case hour >= 5 && hour < 11:
		return "breakfast"
	case hour >= 11 && hour < 15:
		return "lunch"
	case hour >= 15 && hour < 18:
		return "snack"
	case hour >= 18 && hour < 22:
		return "dinner"
	default:
		return "late_night"
	}
}
