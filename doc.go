// Package caseflow manages the lifecycle of cases while a user works through a
// cohort: which case is current, which materialized data units stay in memory,
// and when their edits are saved.
//
// Components:
//   - descriptor: parses a cohort table into ordered, validated case records.
//   - resolve: joins resource paths against a data root and checks existence.
//   - dataunit: the task-supplied unit contract (load/validate/save/release).
//   - Manager: bounded LRU cache of units with save-before-evict.
//   - Sequencer: deterministic next/previous/goto over the cohort.
//   - layout: panel plans for the active unit's visual resources.
//   - Session: binds a cohort, a task, a manager, a sequencer and a planner.
//
// Case states:
//
//	absent -> loading -> resident-active <-> resident-cached -> evicting -> absent
//	                  \-> load-failed (retried only on explicit selection)
//
// Typical use:
//
//	cohort, _ := descriptor.ParseFile("cohort.csv", descriptor.Options{})
//	task, _ := registry.New("review")
//	s, _ := caseflow.New(caseflow.Options{Cohort: cohort, Task: task, DataRoot: root})
//	defer s.Close(ctx) // flushes every dirty unit; returns *TeardownError if any stay unsaved
//	s.Next(ctx)
package caseflow
