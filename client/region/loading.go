package region

import (
	"github.com/livefir/livewire/client/dom"
)

// Loading attributes. An empty-valued loading attribute marks an inline
// indicator; a non-empty value names the element id whose round trips this
// remote scope mirrors.
const (
	AttrLoading     = "data-lw-loading"
	AttrLoadingText = "data-lw-loading-text"
	AttrNoDisable   = "data-lw-no-disable"

	// LoadingClass marks the triggering element while its request is in
	// flight, for styling.
	LoadingClass = "lw-loading"
)

// loadingLedger records every DOM mutation the loading sub-protocol makes so
// the next server response of any kind can reverse all of them exactly. An
// element that was disabled before the round trip stays disabled after it.
type loadingLedger struct {
	restores []func()
}

// apply runs the sub-protocol for one discrete interaction: class the
// trigger, auto-disable it unless opted out, swap its text if asked, reveal
// its inline indicators, and mirror the treatment onto every remote scope
// referencing the trigger's id.
func (l *loadingLedger) apply(container, trigger *dom.Element) {
	l.classAndDisable(trigger)
	l.swapText(trigger)

	seen := &touched{}
	l.reveal(trigger, seen)

	if id := trigger.ID(); id != "" {
		for _, scope := range container.Descendants(func(el *dom.Element) bool {
			return el.AttrOr(AttrLoading, "") == id
		}) {
			l.reveal(scope, seen)
		}
	}
}

// touched tracks which elements one interaction already recorded. Element
// handles are not canonical, so membership goes through Same.
type touched struct {
	els []*dom.Element
}

func (t *touched) add(el *dom.Element) bool {
	for _, cand := range t.els {
		if cand.Same(el) {
			return false
		}
	}
	t.els = append(t.els, el)
	return true
}

// clear reverses every recorded mutation, newest first.
func (l *loadingLedger) clear() {
	for i := len(l.restores) - 1; i >= 0; i-- {
		l.restores[i]()
	}
	l.restores = nil
}

func (l *loadingLedger) classAndDisable(trigger *dom.Element) {
	hadClass := trigger.HasClass(LoadingClass)
	trigger.AddClass(LoadingClass)
	l.restores = append(l.restores, func() {
		if !hadClass {
			trigger.RemoveClass(LoadingClass)
		}
	})

	if trigger.HasAttr(AttrNoDisable) {
		return
	}
	wasDisabled := trigger.Disabled()
	trigger.SetDisabled(true)
	l.restores = append(l.restores, func() {
		trigger.SetDisabled(wasDisabled)
	})
}

func (l *loadingLedger) swapText(trigger *dom.Element) {
	swap, ok := trigger.Attr(AttrLoadingText)
	if !ok || swap == "" {
		return
	}
	original := trigger.Text()
	trigger.SetText(swap)
	l.restores = append(l.restores, func() {
		trigger.SetText(original)
	})
}

// reveal shows the scope's inline indicators and hides their non-indicator
// siblings. seen keeps one interaction from recording the same element twice
// when scopes overlap.
func (l *loadingLedger) reveal(scope *dom.Element, seen *touched) {
	indicators := scope.Descendants(isIndicator)
	for _, ind := range indicators {
		l.setHidden(ind, false, seen)
		parent := ind.Parent()
		if parent == nil {
			continue
		}
		for _, sib := range parent.Children() {
			if isIndicator(sib) {
				continue
			}
			l.setHidden(sib, true, seen)
		}
	}
}

// setHidden flips an element's hidden attribute, remembering its exact
// original presence and value.
func (l *loadingLedger) setHidden(el *dom.Element, hidden bool, seen *touched) {
	if !seen.add(el) {
		return
	}

	prev, had := el.Attr("hidden")
	if hidden {
		el.SetAttr("hidden", "")
	} else {
		el.RemoveAttr("hidden")
	}
	l.restores = append(l.restores, func() {
		if had {
			el.SetAttr("hidden", prev)
		} else {
			el.RemoveAttr("hidden")
		}
	})
}

func isIndicator(el *dom.Element) bool {
	v, ok := el.Attr(AttrLoading)
	return ok && v == ""
}

// hideIndicators hides every inline indicator owned by the container.
// Indicators are visible by default in the server markup and shown only
// during an active round trip. Indicators inside nested regions are left for
// their own controller.
func hideIndicators(container *dom.Element) {
	for _, el := range container.Descendants(isIndicator) {
		owner := el.Closest(func(a *dom.Element) bool { return a.HasAttr(AttrModule) })
		if owner != nil && !owner.Same(container) {
			continue
		}
		el.SetAttr("hidden", "")
	}
}
