package assessment

// MaxChangeLogEntries bounds the change log. Older entries are discarded for
// good; the log is a recency window, not a history.
const MaxChangeLogEntries = 3

// ChangeLog holds the most recent mutations of a record, newest first.
type ChangeLog []ChangeLogEntry

// Append returns a new log with entry at the front, truncated to
// MaxChangeLogEntries. The receiver is left untouched.
func (l ChangeLog) Append(entry ChangeLogEntry) (ChangeLog, error) {
	if len(entry.ChangedFields) == 0 {
		return l, ErrEmptyChange
	}

	n := len(l) + 1
	if n > MaxChangeLogEntries {
		n = MaxChangeLogEntries
	}
	out := make(ChangeLog, 0, n)
	entry.ChangedFields = cloneStrings(entry.ChangedFields)
	out = append(out, entry)
	for _, e := range l {
		if len(out) == n {
			break
		}
		out = append(out, e)
	}
	return out, nil
}

// Latest returns the newest entry, if any.
func (l ChangeLog) Latest() (ChangeLogEntry, bool) {
	if len(l) == 0 {
		return ChangeLogEntry{}, false
	}
	return l[0], true
}

func (l ChangeLog) clone() ChangeLog {
	if l == nil {
		return nil
	}
	out := make(ChangeLog, len(l))
	for i, e := range l {
		e.ChangedFields = cloneStrings(e.ChangedFields)
		out[i] = e
	}
	return out
}
