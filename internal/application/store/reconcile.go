package store

import (
	"context"

	"github.com/schoolhub/schoolhub/internal/domain/billing"
	"github.com/schoolhub/schoolhub/internal/domain/finance"
	"github.com/schoolhub/schoolhub/internal/domain/persistence"
	"github.com/schoolhub/schoolhub/internal/domain/shared"
	"github.com/schoolhub/schoolhub/internal/domain/student"
	"github.com/schoolhub/schoolhub/pkg/logger"
)

// normalizeStudentLocked is the only place PaidMonths and FinancialStatus
// are written together. Every path that stores a student goes through it.
func (s *Store) normalizeStudentLocked(st student.Student) student.Student {
	st.PaidMonths = billing.MergePeriods(nil, st.PaidMonths)
	st.FinancialStatus = s.classifier.Classify(st.PaidMonths)
	return st
}

// updateStudentLocked replaces the student with st.ID in place, keeping its
// position. mu must be held for writing.
func (s *Store) updateStudentLocked(st student.Student) (student.Student, bool) {
	i := indexOf(s.students, st.ID, studentID)
	if i < 0 {
		return student.Student{}, false
	}
	st = s.normalizeStudentLocked(st)
	s.students[i] = st
	return st.Clone(), true
}

// reconcileLocked merges a tuition payment's periods into its student and
// reports the updated student. Non-tuition transactions and unknown
// students are skipped without error.
func (s *Store) reconcileLocked(t finance.Transaction) (student.Student, bool) {
	if !t.IsTuitionPayment() {
		return student.Student{}, false
	}

	i := indexOf(s.students, t.StudentID, studentID)
	if i < 0 {
		s.log.Debug("payment references unknown student; reconciliation skipped",
			logger.TransactionID(t.ID),
			logger.StudentID(t.StudentID),
		)
		return student.Student{}, false
	}

	next := s.students[i].Clone()
	next.PaidMonths = billing.MergePeriods(next.PaidMonths, t.PaidMonths)
	return s.updateStudentLocked(next)
}

// restateLocked re-derives every cached FinancialStatus once the period due
// now differs from the one they were derived under.
func (s *Store) restateLocked() {
	due := s.classifier.DueIndex()
	if due == s.dueIndex {
		return
	}
	s.dueIndex = due
	for i := range s.students {
		s.restateStudentLocked(i, s.normalizeStudentLocked(s.students[i]))
	}
}

// restateStudentLocked stores next at i and queues it for persistence when
// its status differs from what is cached there.
func (s *Store) restateStudentLocked(i int, next student.Student) {
	if next.FinancialStatus == s.students[i].FinancialStatus {
		s.students[i] = next
		return
	}
	s.students[i] = next
	s.restated = append(s.restated, next.ID)
}

// persistRestated writes the students whose status was restated. The state
// written is read at call time, so a later edit is never overwritten with an
// older copy. It reports how many students were written.
func (s *Store) persistRestated(ctx context.Context) int {
	s.mu.Lock()
	ids := s.restated
	s.restated = nil
	current := make([]student.Student, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if i := indexOf(s.students, id, studentID); i >= 0 {
			current = append(current, s.students[i].Clone())
		}
	}
	s.mu.Unlock()

	if len(current) == 0 {
		return 0
	}
	events := make([]shared.Event, 0, len(current))
	for _, st := range current {
		s.persistStudentUpdate(ctx, st)
		events = append(events, changed(shared.EventStudentUpdated, persistence.CollectionStudents, st.ID))
	}
	s.log.Info("financial statuses restated", logger.Count(len(current)))
	s.publish(events...)
	return len(current)
}

// Reclassify restates cached statuses when the billing period has moved
// since the last mutation and persists the students that changed. It
// reports how many did.
func (s *Store) Reclassify(ctx context.Context) int {
	s.mustBeReady()

	s.mu.Lock()
	kpis := s.recomputeLocked()
	s.mu.Unlock()

	n := s.persistRestated(ctx)
	if n > 0 {
		s.publish(kpiEvent(kpis))
	}
	return n
}
