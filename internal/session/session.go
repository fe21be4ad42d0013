// Package session drives the conversational collection of a workday, one
// fixed time slot per answer. The transition function is pure over an
// explicit (state, data) session value, so a session can be persisted and
// resumed across restarts.
package session

import (
	"fmt"
	"strings"

	"daybook/internal/config"
	"daybook/internal/domain"
)

// Step is the outcome of one transition.
type Step struct {
	// Next is the slot to ask about, nil once collection finished.
	Next *config.Slot
	// Finished reports that every slot has been answered.
	Finished bool
}

// Question renders the prompt for one slot.
func Question(template, date string, slot config.Slot) string {
	return fmt.Sprintf(template, date, slot.Start, slot.End)
}

// New creates a collecting session positioned at the first slot.
func New(id, owner, date string, planned []domain.PlanEntry) domain.Session {
	return domain.Session{
		ID:         id,
		Owner:      owner,
		TargetDate: date,
		State:      domain.SessionCollecting,
		SlotIndex:  0,
		Planned:    planned,
		Entries:    []domain.SlotEntry{},
	}
}

// Advance records text against the current slot and moves to the next one.
// Empty text is a valid answer recorded as no activity. The input session is
// not mutated.
func Advance(sess domain.Session, text string, slots []config.Slot) (domain.Session, Step, error) {
	switch sess.State {
	case domain.SessionCollecting:
	case domain.SessionFinished:
		return sess, Step{}, fmt.Errorf("session %s already finished: %w", sess.ID, domain.ErrConflict)
	default:
		return sess, Step{}, fmt.Errorf("session %s in state %s: %w", sess.ID, sess.State, domain.ErrConflict)
	}
	if sess.SlotIndex < 0 || sess.SlotIndex >= len(slots) {
		return sess, Step{}, fmt.Errorf("session %s slot index %d out of range: %w", sess.ID, sess.SlotIndex, domain.ErrConflict)
	}

	slot := slots[sess.SlotIndex]
	entries := make([]domain.SlotEntry, len(sess.Entries), len(sess.Entries)+1)
	copy(entries, sess.Entries)
	entries = append(entries, domain.SlotEntry{
		Start: slot.Start,
		End:   slot.End,
		Text:  strings.TrimSpace(text),
	})

	next := sess
	next.Entries = entries
	next.SlotIndex = sess.SlotIndex + 1

	if next.SlotIndex >= len(slots) {
		next.State = domain.SessionFinished
		return next, Step{Finished: true}, nil
	}
	upcoming := slots[next.SlotIndex]
	return next, Step{Next: &upcoming}, nil
}

// ExecutedTasks converts answered slots into task items, skipping slots
// reported as no activity.
func ExecutedTasks(sess domain.Session) []domain.TaskItem {
	var tasks []domain.TaskItem
	for _, e := range sess.Entries {
		if e.Text == "" {
			continue
		}
		tasks = append(tasks, domain.TaskItem{
			Title:     e.Text,
			TimeStart: e.Start,
			TimeEnd:   e.End,
			Status:    "done",
		})
	}
	return tasks
}
