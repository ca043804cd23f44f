// internal/booking/status.go
package booking

import "bookshare/internal/catalog"

// DisplayState is what a catalog entry shows to the acting user.
type DisplayState string

const (
	StateUnavailable     DisplayState = "UNAVAILABLE_STRUCTURAL"
	StateReturnable      DisplayState = "RETURNABLE"
	StateReservedByMe    DisplayState = "RESERVED_BY_ME"
	StateReservedByOther DisplayState = "UNAVAILABLE_RESERVED"
	StateSelected        DisplayState = "SELECTED"
	StateSelectable      DisplayState = "SELECTABLE"
)

// Action is the affordance attached to a display state.
type Action string

const (
	ActionNone     Action = ""
	ActionReturn   Action = "return"
	ActionSelect   Action = "select"
	ActionDeselect Action = "deselect"
)

// Display is the derived status of one book.
type Display struct {
	State  DisplayState `json:"state"`
	Action Action       `json:"action,omitempty"`
	// Booking is the acting user's own booking for RETURNABLE and
	// RESERVED_BY_ME, nil otherwise.
	Booking *catalog.Booking `json:"booking,omitempty"`
}

// DeriveStatus computes the display state of book for userID. The first
// matching rule wins: structural unavailability, own taken booking, own
// pending or confirmed booking, anyone else's active booking, selection,
// and finally selectable. An empty userID means the identity is unknown, so
// every active booking counts as someone else's.
func DeriveStatus(book catalog.Book, userID string, selection *SelectionSet) Display {
	if !book.IsAvailable {
		return Display{State: StateUnavailable}
	}

	var mine, others *catalog.Booking
	for i := range book.Bookings {
		b := &book.Bookings[i]
		if !b.Status.IsActive() {
			continue
		}
		if userID != "" && b.BorrowerID == userID {
			if mine == nil || (b.Status == catalog.StatusTaken && mine.Status != catalog.StatusTaken) {
				mine = b
			}
			continue
		}
		if others == nil {
			others = b
		}
	}

	switch {
	case mine != nil && mine.Status == catalog.StatusTaken:
		return Display{State: StateReturnable, Action: ActionReturn, Booking: copyBooking(mine)}
	case mine != nil:
		return Display{State: StateReservedByMe, Booking: copyBooking(mine)}
	case others != nil:
		return Display{State: StateReservedByOther}
	case selection.Contains(book.ID):
		return Display{State: StateSelected, Action: ActionDeselect}
	default:
		return Display{State: StateSelectable, Action: ActionSelect}
	}
}

func copyBooking(b *catalog.Booking) *catalog.Booking {
	c := *b
	return &c
}
