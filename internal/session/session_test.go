package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daybook/internal/config"
	"daybook/internal/domain"
)

func twoSlots() []config.Slot {
	return []config.Slot{
		{Start: "09:00", End: "10:00"},
		{Start: "10:00", End: "11:00"},
	}
}

func TestAdvanceRecordsAnswerAndMovesOn(t *testing.T) {
	sess := New("s1", "kim", "2024-06-03", []domain.PlanEntry{{Title: "보고서 작성"}})
	slots := twoSlots()

	next, step, err := Advance(sess, "보고서 작성", slots)
	require.NoError(t, err)

	assert.Equal(t, 1, next.SlotIndex)
	assert.Equal(t, domain.SessionCollecting, next.State)
	require.Len(t, next.Entries, 1)
	assert.Equal(t, "09:00", next.Entries[0].Start)
	assert.Equal(t, "보고서 작성", next.Entries[0].Text)
	require.NotNil(t, step.Next)
	assert.Equal(t, "10:00", step.Next.Start)
	assert.False(t, step.Finished)

	// The input value stays untouched.
	assert.Equal(t, 0, sess.SlotIndex)
	assert.Empty(t, sess.Entries)
}

func TestAdvanceAcceptsEmptyAnswerAsNoActivity(t *testing.T) {
	sess := New("s1", "kim", "2024-06-03", nil)
	next, _, err := Advance(sess, "   ", twoSlots())
	require.NoError(t, err)

	require.Len(t, next.Entries, 1)
	assert.Empty(t, next.Entries[0].Text)
}

func TestAdvanceFinishesAfterLastSlot(t *testing.T) {
	slots := twoSlots()
	sess := New("s1", "kim", "2024-06-03", nil)

	sess, step, err := Advance(sess, "첫 업무", slots)
	require.NoError(t, err)
	require.False(t, step.Finished)

	sess, step, err = Advance(sess, "둘째 업무", slots)
	require.NoError(t, err)

	assert.True(t, step.Finished)
	assert.Nil(t, step.Next)
	assert.Equal(t, domain.SessionFinished, sess.State)
	assert.Len(t, sess.Entries, 2)
}

func TestAdvanceRefusesFinishedSession(t *testing.T) {
	slots := twoSlots()
	sess := New("s1", "kim", "2024-06-03", nil)
	sess, _, _ = Advance(sess, "a", slots)
	sess, _, _ = Advance(sess, "b", slots)

	_, _, err := Advance(sess, "c", slots)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestExecutedTasksSkipsNoActivitySlots(t *testing.T) {
	sess := domain.Session{
		Entries: []domain.SlotEntry{
			{Start: "09:00", End: "10:00", Text: "암보험 회신"},
			{Start: "10:00", End: "11:00", Text: ""},
			{Start: "11:00", End: "12:00", Text: "스크립트 개선"},
		},
	}
	tasks := ExecutedTasks(sess)

	require.Len(t, tasks, 2)
	assert.Equal(t, "암보험 회신", tasks[0].Title)
	assert.Equal(t, "09:00", tasks[0].TimeStart)
	assert.Equal(t, "10:00", tasks[0].TimeEnd)
	assert.Equal(t, "done", tasks[0].Status)
	assert.Equal(t, "스크립트 개선", tasks[1].Title)
}

func TestQuestionRendersSlotBounds(t *testing.T) {
	got := Question("[%s] %s~%s 시간대에는 어떤 업무를 하셨나요?", "2024-06-03", config.Slot{Start: "09:00", End: "10:00"})
	assert.Equal(t, "[2024-06-03] 09:00~10:00 시간대에는 어떤 업무를 하셨나요?", got)
}

func TestKeyedRefusesSecondWriter(t *testing.T) {
	k := NewKeyed()

	require.True(t, k.Acquire("s1"))
	assert.False(t, k.Acquire("s1"))
	assert.True(t, k.Acquire("s2"), "미사용 키는 병렬로 진행한다")

	k.Release("s1")
	assert.True(t, k.Acquire("s1"))
}

func TestKeyedDoReportsConflict(t *testing.T) {
	k := NewKeyed()
	require.True(t, k.Acquire("busy"))

	err := k.Do("busy", func() error { return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict)

	k.Release("busy")
	assert.NoError(t, k.Do("busy", func() error { return nil }))
}

func TestKeyedSingleWriterUnderContention(t *testing.T) {
	k := NewKeyed()
	const writers = 32

	var wg sync.WaitGroup
	var mu sync.Mutex
	inFlight, maxInFlight, successes, conflicts := 0, 0, 0, 0

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := k.Do("same-key", func() error {
				mu.Lock()
				inFlight++
				if inFlight > maxInFlight {
					maxInFlight = inFlight
				}
				inFlight--
				mu.Unlock()
				return nil
			})
			mu.Lock()
			if err != nil {
				conflicts++
			} else {
				successes++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInFlight, "같은 키에는 동시에 한 작성자만 진입한다")
	assert.GreaterOrEqual(t, successes, 1)
	assert.Equal(t, writers, successes+conflicts)
	assert.True(t, k.Acquire("same-key"), "경합이 끝나면 키는 해제되어 있어야 한다")
}
