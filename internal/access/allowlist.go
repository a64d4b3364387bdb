package access

// Verdict is the access decision for one decoded tag.
type Verdict int

const (
	Reject Verdict = iota
	Accept
)

func (v Verdict) String() string {
	if v == Accept {
		return "accept"
	}
	return "reject"
}

// AllowList is the fixed set of unique ids that open the door. It is built
// once at startup and only read afterwards.
type AllowList struct {
	ids []uint16
}

// NewAllowList creates an allow list from ids. Duplicates are kept; they do
// not change any decision.
func NewAllowList(ids ...uint16) *AllowList {
	list := make([]uint16, len(ids))
	copy(list, ids)
	return &AllowList{ids: list}
}

// Decide scans the list for an exact match. Lists are tens of entries long,
// so a linear scan is enough.
func (l *AllowList) Decide(uniqueID uint16) Verdict {
	for _, id := range l.ids {
		if id == uniqueID {
			return Accept
		}
	}
	return Reject
}

// Len returns the number of entries.
func (l *AllowList) Len() int {
	return len(l.ids)
}
