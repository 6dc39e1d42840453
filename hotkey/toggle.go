package hotkey

import "time"

// Toggle turns press and release pairs into single toggle events. A press
// that lands within Debounce of the previous toggle is ignored, so a
// bouncing key cannot start and immediately end a conversation.
type Toggle struct {
	ch   chan struct{}
	stop chan struct{}
	done chan struct{}
}

const Debounce = 300 * time.Millisecond

func NewToggle(hk Hotkey, debounce time.Duration) *Toggle {
	t := &Toggle{
		ch:   make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go t.run(hk, debounce)
	return t
}

// C delivers one value per toggle. Toggles that arrive while the previous
// one is still unread are merged.
func (t *Toggle) C() <-chan struct{} { return t.ch }

func (t *Toggle) Close() {
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	<-t.done
}

func (t *Toggle) run(hk Hotkey, debounce time.Duration) {
	defer close(t.done)
	var last time.Time
	for {
		select {
		case <-t.stop:
			return
		case <-hk.Keydown():
		}
		select {
		case <-t.stop:
			return
		case <-hk.Keyup():
		}
		if now := time.Now(); last.IsZero() || now.Sub(last) >= debounce {
			last = now
			select {
			case t.ch <- struct{}{}:
			default:
			}
		}
	}
}
