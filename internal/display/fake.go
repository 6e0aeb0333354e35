package display

import "sync"

// Screen is one pair of lines sent to a Fake.
type Screen struct {
	Line1 string
	Line2 string
}

// Fake records every Show for testing.
type Fake struct {
	mu      sync.Mutex
	screens []Screen

	// Err, if set, is returned from Show after recording.
	Err error
}

// Show records the lines.
func (f *Fake) Show(line1, line2 string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.screens = append(f.screens, Screen{line1, line2})
	return f.Err
}

// Screens returns all recorded screens in order.
func (f *Fake) Screens() []Screen {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Screen(nil), f.screens...)
}

// Last returns the most recent screen.
func (f *Fake) Last() Screen {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.screens) == 0 {
		return Screen{}
	}
	return f.screens[len(f.screens)-1]
}
