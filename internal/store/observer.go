package store

import "sync"

// Action names a kind of change.
type Action string

const (
	// ActionAll subscribes to every action.
	ActionAll    Action = "*"
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
	ActionRemove Action = "remove"
	ActionClear  Action = "clear"
	ActionImport Action = "import"
)

// Event describes one committed change.
type Event struct {
	Action      Action       `json:"action"`
	Table       Table        `json:"table,omitempty"`
	IDs         []int64      `json:"ids,omitempty"`
	Breadcrumbs []Breadcrumb `json:"breadcrumbs,omitempty"`
}

// Observer receives notifications. Implementations must be comparable
// (usually a pointer) so they can be removed again.
type Observer interface {
	Update(action Action, data any)
}

// ObserverFunc adapts a function to Observer. Function values are not
// comparable, so wrap them in a pointer: &ObserverFunc{...}.
type ObserverFunc func(action Action, data any)

func (f *ObserverFunc) Update(action Action, data any) { (*f)(action, data) }

type subscription struct {
	observer Observer
	action   Action
}

// ObserverList is a set of observers keyed by the action they follow.
type ObserverList struct {
	mu   sync.RWMutex
	subs []subscription
}

// Add subscribes o to action. An empty action means ActionAll.
// Adding the same pair twice has no effect.
func (l *ObserverList) Add(o Observer, action Action) {
	if action == "" {
		action = ActionAll
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.subs {
		if s.observer == o && s.action == action {
			return
		}
	}
	l.subs = append(l.subs, subscription{observer: o, action: action})
}

// Remove unsubscribes o from action. An empty action removes every
// subscription of o.
func (l *ObserverList) Remove(o Observer, action Action) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.subs[:0]
	for _, s := range l.subs {
		if s.observer == o && (action == "" || s.action == action) {
			continue
		}
		kept = append(kept, s)
	}
	l.subs = kept
}

// Notify calls Update on every observer subscribed to action or to
// ActionAll, in subscription order. An observer subscribed to both is
// called once.
func (l *ObserverList) Notify(action Action, data any) {
	l.mu.RLock()
	var targets []Observer
	for _, s := range l.subs {
		if s.action != action && s.action != ActionAll {
			continue
		}
		dup := false
		for _, t := range targets {
			if t == s.observer {
				dup = true
				break
			}
		}
		if !dup {
			targets = append(targets, s.observer)
		}
	}
	l.mu.RUnlock()

	for _, o := range targets {
		o.Update(action, data)
	}
}

// Len returns the number of subscriptions.
func (l *ObserverList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs)
}
