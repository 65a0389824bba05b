package queue

// entry is one in-memory prefetch window slot: a durable row's id and its
// raw (still-encoded) payload.
type entry struct {
	id      int64
	payload []byte
}

// fetchFunc fetches rows with id strictly greater than afterID, ordered
// ascending by id, limited to limit rows.
type fetchFunc func(afterID int64, limit int) ([]entry, error)

// window is the bounded in-memory prefetch slice of the queue head used by
// Peek/Get. It implements the two-mode refill algorithm from the spec:
// append mode extends the window forward from highestID; refresh mode
// rebuilds it from lowestID after an in-window mutation.
type window struct {
	entries    []entry
	lowestID   int64 // lowest id ever held in the current window contents
	highestID  int64 // last id drawn from storage (append-mode cursor)
	hasNewData bool
	min, max   int
}

func newWindow(minInMemory, maxInMemory int) *window {
	return &window{min: minInMemory, max: maxInMemory}
}

func (w *window) len() int { return len(w.entries) }

func (w *window) head() (entry, bool) {
	if len(w.entries) == 0 {
		return entry{}, false
	}

	return w.entries[0], true
}

// popHead removes the window's head entry, as happens on Get.
func (w *window) popHead() {
	if len(w.entries) > 0 {
		w.entries = w.entries[1:]
	}
}

// markDirty records that storage gained a new row (a Put), forcing the
// next refill to run in append mode even if the window is otherwise full.
func (w *window) markDirty() { w.hasNewData = true }

// needsRefill reports whether refill() must run before the next peek/get.
func (w *window) needsRefill() bool {
	return w.hasNewData || len(w.entries) < w.min
}

// inRange reports whether id falls within the window's current bounds —
// the trigger condition for refresh-mode rebuilds after a mutation.
func (w *window) inRange(id int64) bool {
	return w.highestID > 0 && id >= w.lowestID && id <= w.highestID
}

// refill runs the append-mode fetch when needsRefill() is true: it pulls
// ids strictly greater than highestID, ascending, enough to top the window
// back up to max, and extends highestID to the last id fetched.
func (w *window) refill(fetch fetchFunc) error {
	if !w.needsRefill() {
		return nil
	}

	room := w.max - len(w.entries)
	if room <= 0 {
		w.hasNewData = false
		return nil
	}

	rows, err := fetch(w.highestID, room)
	if err != nil {
		return err
	}

	if len(rows) > 0 {
		w.entries = append(w.entries, rows...)
		w.highestID = rows[len(rows)-1].id
	}

	if len(w.entries) > 0 {
		w.lowestID = w.entries[0].id
	}

	w.hasNewData = false

	return nil
}

// refresh runs the refresh-mode rebuild triggered by an in-window mutation:
// it discards the window, remembers the prior lowestID, and refetches ids
// greater than or equal to that lowestID (i.e. strictly greater than
// lowestID-1), up to max rows. This reconstructs the window including the
// mutated entry's new state.
func (w *window) refresh(fetch fetchFunc) error {
	oldLowest := w.lowestID

	rows, err := fetch(oldLowest-1, w.max)
	if err != nil {
		return err
	}

	w.entries = rows
	w.hasNewData = false

	if len(rows) > 0 {
		w.lowestID = rows[0].id
		w.highestID = rows[len(rows)-1].id
	}

	return nil
}
