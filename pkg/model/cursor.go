package model

// Outcome describes one document affected by a mutation run.
type Outcome struct {
	// ID identifies the affected document.
	ID DocID
}

// Cursor is a one-shot forward stream of mutation outcomes:
//
//	for cur.Next() {
//		use(cur.Outcome())
//	}
//	err := cur.Err()
//	cur.Close()
//
// Outcomes are produced lazily; work for outcome N+1 happens only when the
// caller asks for it. After Next returns false, Err distinguishes exhaustion
// from failure. Close releases the underlying resources and is idempotent;
// closing before exhaustion abandons the run and rolls back its effects.
type Cursor interface {
	Next() bool
	Outcome() Outcome
	Err() error
	Close() error
}

// DrainCount consumes the cursor to exhaustion, closes it and returns the
// number of outcomes seen. The count is meaningful only when err is nil.
func DrainCount(cur Cursor) (int64, error) {
	defer cur.Close()
	var n int64
	for cur.Next() {
		n++
	}
	return n, cur.Err()
}

// EmptyCursor returns an exhausted cursor with no outcomes.
func EmptyCursor() Cursor { return emptyCursor{} }

type emptyCursor struct{}

func (emptyCursor) Next() bool       { return false }
func (emptyCursor) Outcome() Outcome { return Outcome{} }
func (emptyCursor) Err() error       { return nil }
func (emptyCursor) Close() error     { return nil }
