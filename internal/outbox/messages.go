package outbox

import (
	"fmt"
	"strings"

	"courseflow/internal/types"
)

// Callback-data formats shared with the transport-side handlers. Kept as
// printf patterns so both sides agree on the wire shape.
const (
	lessonViewedCallback = "lesson:viewed:day=%d:p=%d"
	questReplyCallback   = "quest:reply:%d"
	questionnaireAnswer  = "questionnaire:answer:%d"
	habitDoneCallback    = "habit:done:%d"
	habitSkipCallback    = "habit:skip:%d"
)

func lessonMessage(p *types.DayLessonPayload) (string, [][]types.Action) {
	title := p.Title
	if title == "" {
		title = fmt.Sprintf("Day %d", p.DayIndex)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Day %d lesson\n%s", p.DayIndex, title)
	if p.Description != "" {
		fmt.Fprintf(&b, "\n\n%s", p.Description)
	}
	if p.VideoURL != "" {
		fmt.Fprintf(&b, "\n\nWatch: %s", p.VideoURL)
	}
	actions := [][]types.Action{{
		{Label: "Mark viewed", CallbackData: fmt.Sprintf(lessonViewedCallback, p.DayIndex, p.PointsViewed)},
	}}
	return b.String(), actions
}

func questMessage(p *types.DayQuestPayload) (string, [][]types.Action) {
	text := fmt.Sprintf(
		"Day %d quest:\n%s\n\nTap the button below to answer, or just reply in the chat.",
		p.DayIndex, p.Prompt,
	)
	actions := [][]types.Action{{
		{Label: "Answer the quest", CallbackData: fmt.Sprintf(questReplyCallback, p.DayIndex)},
	}}
	return text, actions
}

func reminderMessage(backlog *types.Backlog, links types.LinkBuilder) (string, [][]types.Action) {
	text := "Your daily check-in\n\nYou have unfinished items:\n" +
		strings.Join(prefixBullets(backlog.Pending), "\n") +
		"\n\nUse the buttons below to jump back in."

	var actions [][]types.Action
	if links != nil {
		if backlog.FirstLessonDay != nil {
			if url := links.StartLink(fmt.Sprintf("gol_%d", *backlog.FirstLessonDay)); url != "" {
				actions = append(actions, []types.Action{{Label: "Open first unfinished lesson", URL: url}})
			}
		}
		if backlog.FirstQuestDay != nil {
			if url := links.StartLink(fmt.Sprintf("goq_%d", *backlog.FirstQuestDay)); url != "" {
				actions = append(actions, []types.Action{{Label: "Open first unfinished quest", URL: url}})
			}
		}
	}
	if backlog.FirstQuestionnaireID != nil {
		actions = append(actions, []types.Action{{
			Label:        "Answer the first unfinished questionnaire",
			CallbackData: fmt.Sprintf(questionnaireAnswer, *backlog.FirstQuestionnaireID),
		}})
	}
	return text, actions
}

func questionnaireMessage(q *types.Questionnaire) (string, [][]types.Action) {
	text := fmt.Sprintf("Questionnaire\n\n%s", q.Question)
	actions := [][]types.Action{{
		{Label: "Answer", CallbackData: fmt.Sprintf(questionnaireAnswer, q.ID)},
	}}
	return text, actions
}

func habitMessage(p *types.HabitReminderPayload) (string, [][]types.Action) {
	title := p.Title
	if title == "" {
		title = "Habit"
	}
	text := fmt.Sprintf("Habit reminder\n\n%s\n\nHow did it go?", title)
	actions := [][]types.Action{{
		{Label: "Done", CallbackData: fmt.Sprintf(habitDoneCallback, p.OccurrenceID)},
		{Label: "Skip", CallbackData: fmt.Sprintf(habitSkipCallback, p.OccurrenceID)},
	}}
	return text, actions
}

func personalMessage(p *types.PersonalPayload) string {
	text := strings.TrimSpace(p.Text)
	if text == "" {
		text = "Reminder"
	}
	return fmt.Sprintf("Personal reminder\n\n%s", text)
}

func prefixBullets(items []string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = "- " + item
	}
	return out
}
