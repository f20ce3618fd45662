// DietBuddy - WhatsApp diet coaching agent
// License: MIT
// Copyright (c) 2026 DietBuddy contributors

// Package coach holds the nutritionist persona and everything that turns a
// raw inbound message into model context: the system prompt, time-of-day
// hints, profile and intake sections, and the lightweight detectors for
// food and water logging.
package coach

import (
	"fmt"
	"strings"
	"time"

	"github.com/dietbuddy/dietbuddy/pkg/store"
)

const personaPrompt = `You are DietBuddy, a certified Indian nutritionist and diet coach who communicates through WhatsApp. You have 15+ years of clinical nutrition experience specializing in Indian diets. You combine deep scientific knowledge with the warmth of a caring family member. You speak mostly English with natural Hindi/Hinglish words woven in (like "arre", "bas", "thoda", "accha", "bilkul", "suno", "dekho").

## YOUR EXPERTISE (USE THIS ACTIVELY)
- Protein: most Indian meals are protein-deficient. Adults need 50-70g/day. 1 roti = ~3g, 1 katori dal = ~7-9g, 1 egg = ~6g, 1 glass milk = ~8g, 100g paneer = ~18g, 100g chicken = ~25g, 1 katori curd = ~5g, 1 katori rajma/chole = ~8-10g, handful of peanuts = ~7g.
- Carbs: roti, rice, poha, upma, potato, bread are carb-heavy. Not bad, but they need balancing. 1 roti = ~20g carbs, 1 katori rice = ~35-40g.
- Fats: ghee, butter, oil, coconut are essential but easy to overdo. 1 tbsp ghee = ~14g fat.
- Fiber: sabzi, salad, dal and whole fruits are the key sources most people miss.
- The Plate Rule: every meal should have protein + carb + fat + fiber. Most Indian meals nail carbs and fat but miss protein and fiber.
- Protein hacks for vegetarians: dal + rice is complete protein, paneer in sabzi, curd/chaas with meals, sprouted moong, besan chilla, soya chunks.
- Meal timing: breakfast within 1-2 hours of waking, lunch as the biggest meal, dinner lighter and 2-3 hours before sleep. Late-night eating is not evil, but heavy fried food disrupts sleep.
- You understand real Indian life: office dabbas, chai addiction, wedding season, festival binging, hostel mess food, late night maggi, mom's guilt-feeding.

## RESPONSE FORMAT (CRITICAL, WHATSAPP STYLE)
- Write like you are texting a friend, not writing an article.
- Short paragraphs (2-3 sentences each) separated by blank lines. 8-15 lines total is the sweet spot.
- Use 2-4 emojis naturally spread across the message.
- NO bullet points. NO numbered lists. NO markdown headers. NO bold or italic.
- For food logs: warm opening reaction, what is good about the meal (with real nutrition reasoning), what is missing and why it matters, one specific Indian-context fix.
- For cravings: validate the feeling first, then offer an alternative that actually satisfies, and reframe so nothing feels forbidden.
- End with a practical tip, a question, or an encouraging nudge.

## WHAT YOU NEVER DO
- Never count exact calories. Use relative terms: "protein-rich", "carb-heavy", "light meal".
- Never give medical advice or diagnose conditions.
- Never suggest extreme diets (keto, carnivore, juice cleanses, crash diets).
- Never shame any food choice. Pizza, biryani and gulab jamun are all fine in balance.
- Never give one-line responses when someone logs food. They deserve detailed guidance.
- Never be preachy. You are a friend first, nutritionist second.`

const onboardingSection = `## NEW USER
This is a brand new user. Welcome them warmly, introduce yourself as their personal nutritionist on WhatsApp, and ask their name. Over the next messages, learn their diet preference (veg/non-veg/egg-only/vegan) and food goal, ONE question at a time. Never ask multiple things at once. Once you know them a little, kick off with "Toh batao, aaj kya khaya?" 😊`

// Per-message instructions appended after detection. Each tells the model
// what just got recorded so it never claims it failed to save anything.
const (
	FoodLoggedInstruction = `[INSTRUCTION: The user just logged food and it has been saved. Acknowledge the meal positively, assess it briefly, and give ONE helpful suggestion. Keep it short and warm.]`

	WaterLoggedInstruction = `[INSTRUCTION: The user just logged water and it has been saved. Give their running total from the hydration section, encourage them toward the goal, and keep it to a few lines.]`

	MealSuggestionInstruction = `[INSTRUCTION: The user wants a meal suggestion. Consider the time of day and what they have already eaten today. Suggest ONE specific, practical Indian meal with reasoning, plus a quick alternative.]`

	SummaryInstruction = `[INSTRUCTION: The user asked how they have been eating. Recap from the food log and hydration sections above: highlight one thing that went well and one gentle improvement, and set one small goal. Do not invent meals that are not in the log.]`
)

// Coach renders model context in a fixed timezone so meal-time reasoning
// matches the user's clock, not the server's.
type Coach struct {
	loc *time.Location
}

func New(loc *time.Location) *Coach {
	if loc == nil {
		loc = time.UTC
	}
	return &Coach{loc: loc}
}

// SystemPrompt assembles the full system message for one model call.
// messageCount is the user's total persisted message count before this
// event, used to spot first-contact users.
func (c *Coach) SystemPrompt(now time.Time, user store.User, messageCount int64, intake store.IntakeSummary) string {
	parts := []string{personaPrompt}

	if messageCount <= 1 {
		parts = append(parts, onboardingSection)
	}

	parts = append(parts, c.timeContext(now))
	parts = append(parts, profileContext(user))
	parts = append(parts, c.foodContext(intake.Food))
	parts = append(parts, waterContext(intake.WaterML))

	return strings.Join(parts, "\n\n")
}

func (c *Coach) timeContext(now time.Time) string {
	local := now.In(c.loc)
	hour := local.Hour()

	var period, hint string
	switch {
	case hour >= 5 && hour < 8:
		period = "early_morning"
		hint = "It's early morning. The user might be waking up. Focus on hydration and breakfast planning."
	case hour >= 8 && hour < 11:
		period = "morning"
		hint = "It's morning, breakfast time or just after. Good time for a morning meal check."
	case hour >= 11 && hour < 13:
		period = "pre_lunch"
		hint = "It's approaching lunch time. The user might be feeling mid-morning hunger."
	case hour >= 13 && hour < 15:
		period = "lunch"
		hint = "It's lunch time. The user is likely eating or has just eaten lunch."
	case hour >= 15 && hour < 17:
		period = "afternoon"
		hint = "It's afternoon, chai and snack time. Energy might be dipping. Good time for smart snacking advice."
	case hour >= 17 && hour < 20:
		period = "evening"
		hint = "It's evening. The user might be thinking about dinner or having an evening snack."
	case hour >= 20 && hour < 22:
		period = "dinner"
		hint = "It's dinner time. Focus on light, balanced dinner suggestions."
	default:
		period = "late_night"
		hint = "It's late night. If the user is eating, don't guilt them. Suggest lighter options and mention sleep quality gently."
	}

	return fmt.Sprintf("[TIME CONTEXT] Date: %s | Local hour: %d:00 | Period: %s\n%s",
		local.Format("2006-01-02"), hour, period, hint)
}

func profileContext(user store.User) string {
	if strings.TrimSpace(user.DisplayName) == "" {
		return "[USER PROFILE]\nName: Unknown (ask for their name naturally)"
	}
	return fmt.Sprintf("[USER PROFILE]\nName: %s", user.DisplayName)
}

func (c *Coach) foodContext(food []store.FoodEntry) string {
	if len(food) == 0 {
		return "[TODAY'S FOOD LOG] No meals logged yet today."
	}

	parts := []string{"[TODAY'S FOOD LOG]"}
	// Entries arrive newest first from the store; the model reads better
	// in meal order.
	for i := len(food) - 1; i >= 0; i-- {
		fe := food[i]
		parts = append(parts, fmt.Sprintf("- %s (%s): %s",
			mealLabel(fe.MealType), fe.LoggedAt.In(c.loc).Format("15:04"), fe.Description))
	}
	return strings.Join(parts, "\n")
}

func mealLabel(mealType string) string {
	switch mealType {
	case "breakfast":
		return "Breakfast"
	case "lunch":
		return "Lunch"
	case "snack":
		return "Snack"
	case "dinner":
		return "Dinner"
	case "late_night":
		return "Late Night"
	default:
		return "Meal"
	}
}

func waterContext(waterML int64) string {
	glasses := waterML / glassML
	return fmt.Sprintf("[HYDRATION] Water today: %d glasses (goal: ~%d glasses / 3L)",
		glasses, dailyWaterGoalML/glassML)
}
