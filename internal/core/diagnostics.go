package core

// diagnostics.go implements the per-run diagnostics timeline.
//
// Every stage appends to the same Log. Entries are never changed once
// appended; the grouped correction view is computed when it is read.

import (
	"fmt"
	"log/slog"
	"time"
)

// EntryKind is the broad category of a diagnostic entry.
type EntryKind string

const (
	KindInfo       EntryKind = "info"
	KindWarning    EntryKind = "warning"
	KindError      EntryKind = "error"
	KindCorrection EntryKind = "correction"
)

// EntryClass places warnings and errors in the failure taxonomy.
type EntryClass string

const (
	ClassStructureError EntryClass = "StructureError"
	ClassRowError       EntryClass = "RowError"
	ClassRowWarning     EntryClass = "RowWarning"
)

// Correction rules.
const (
	RuleDateSerial       = "date.serial"
	RuleDateText         = "date.text"
	RuleShiftTypeSynonym = "shift_type.synonym"
	RuleWorkerDictionary = "worker_name.dictionary"
	RuleQuantityInteger  = "quantity.integer"
)

// NoPosition marks an entry that is not tied to a row or column.
const NoPosition = -1

// Entry is one event in the processing timeline.
type Entry struct {
	Seq       int            `json:"seq"`
	Time      time.Time      `json:"time"`
	Kind      EntryKind      `json:"kind"`
	Class     EntryClass     `json:"class,omitempty"`
	Message   string         `json:"message"`
	Rule      string         `json:"rule,omitempty"`
	Original  string         `json:"original,omitempty"`
	Corrected string         `json:"corrected,omitempty"`
	Row       int            `json:"row"`
	Column    int            `json:"column"`
	Data      map[string]any `json:"data,omitempty"`
}

// CorrectionGroup is the collapsed view of identical corrections.
type CorrectionGroup struct {
	Rule        string `json:"rule"`
	Original    string `json:"original"`
	Corrected   string `json:"corrected"`
	Count       int    `json:"count"`
	Description string `json:"description"`
	Rows        []int  `json:"rows"`
}

// Log is the append-only diagnostics timeline of a single run. It is not
// safe for concurrent use; each run owns its own Log.
type Log struct {
	entries []Entry
	logger  *slog.Logger
	now     func() time.Time
}

// NewLog creates an empty log that mirrors entries to logger at debug level.
// A nil logger discards the mirror.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Log{logger: logger, now: time.Now}
}

func (l *Log) append(e Entry) {
	e.Seq = len(l.entries) + 1
	e.Time = l.now()
	l.entries = append(l.entries, e)

	l.logger.Debug(e.Message,
		"seq", e.Seq,
		"kind", e.Kind,
		"class", e.Class,
		"rule", e.Rule,
		"row", e.Row,
		"column", e.Column,
	)
}

// Info records an informational event.
func (l *Log) Info(msg string, data map[string]any) {
	l.append(Entry{Kind: KindInfo, Message: msg, Row: NoPosition, Column: NoPosition, Data: data})
}

// Warning records a non-fatal row problem.
func (l *Log) Warning(row, col int, msg string, data map[string]any) {
	l.append(Entry{Kind: KindWarning, Class: ClassRowWarning, Message: msg, Row: row, Column: col, Data: data})
}

// Error records a failure of the given class.
func (l *Log) Error(class EntryClass, row, col int, msg string, data map[string]any) {
	l.append(Entry{Kind: KindError, Class: class, Message: msg, Row: row, Column: col, Data: data})
}

// LogCorrection records a semantic change applied to a cell.
func (l *Log) LogCorrection(rule, original, corrected string, row, col int) {
	l.append(Entry{
		Kind:      KindCorrection,
		Message:   correctionText(rule, original, corrected),
		Rule:      rule,
		Original:  original,
		Corrected: corrected,
		Row:       row,
		Column:    col,
	})
}

// Logs returns the raw timeline.
func (l *Log) Logs() []Entry {
	return append([]Entry(nil), l.entries...)
}

// Errors returns every error entry in timeline order.
func (l *Log) Errors() []Entry {
	return l.filter(KindError)
}

// Warnings returns every warning entry in timeline order.
func (l *Log) Warnings() []Entry {
	return l.filter(KindWarning)
}

// Len returns the number of entries logged so far.
func (l *Log) Len() int {
	return len(l.entries)
}

// ErrorRows returns the set of rows carrying a RowError.
func (l *Log) ErrorRows() map[int]bool {
	rows := make(map[int]bool)
	for _, e := range l.entries {
		if e.Kind == KindError && e.Class == ClassRowError && e.Row != NoPosition {
			rows[e.Row] = true
		}
	}
	return rows
}

func (l *Log) filter(kind EntryKind) []Entry {
	var out []Entry
	for _, e := range l.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type correctionKey struct {
	rule, original, corrected string
}

// Corrections groups correction entries by (rule, original, corrected) in
// order of first occurrence.
func (l *Log) Corrections() []CorrectionGroup {
	var groups []CorrectionGroup
	pos := make(map[correctionKey]int)

	for _, e := range l.entries {
		if e.Kind != KindCorrection {
			continue
		}
		key := correctionKey{e.Rule, e.Original, e.Corrected}
		i, ok := pos[key]
		if !ok {
			i = len(groups)
			pos[key] = i
			groups = append(groups, CorrectionGroup{Rule: e.Rule, Original: e.Original, Corrected: e.Corrected})
		}
		groups[i].Count++
		groups[i].Rows = append(groups[i].Rows, e.Row)
	}

	for i := range groups {
		g := &groups[i]
		g.Description = correctionText(g.Rule, g.Original, g.Corrected)
		if g.Count > 1 {
			g.Description += fmt.Sprintf(" (%d times)", g.Count)
		}
	}
	return groups
}

func correctionText(rule, original, corrected string) string {
	return fmt.Sprintf("%s: %q -> %q", rule, original, corrected)
}
