package remote

// pending is one outbound message held while the broker is unreachable.
type pending struct {
	key     string
	payload []byte
}

// backlog keeps the most recent messages queued while offline, oldest
// first. When full the oldest message is dropped. Callers synchronize.
type backlog struct {
	slots   []pending
	oldest  int
	n       int
	dropped bool
}

func newBacklog(size int) *backlog {
	return &backlog{slots: make([]pending, max(size, 1))}
}

// add queues p. It reports true only for the first drop since the last
// takeAll, so callers warn once per outage.
func (b *backlog) add(p pending) bool {
	if b.n < len(b.slots) {
		b.slots[(b.oldest+b.n)%len(b.slots)] = p
		b.n++
		return false
	}
	b.slots[b.oldest] = p
	b.oldest = (b.oldest + 1) % len(b.slots)
	warn := !b.dropped
	b.dropped = true
	return warn
}

// takeAll empties the backlog and returns its messages in send order.
func (b *backlog) takeAll() []pending {
	if b.n == 0 {
		return nil
	}
	out := make([]pending, 0, b.n)
	for i := 0; i < b.n; i++ {
		out = append(out, b.slots[(b.oldest+i)%len(b.slots)])
	}
	*b = backlog{slots: b.slots}
	return out
}

func (b *backlog) size() int { return b.n }
