package clipboard

import "sync"

// Scripted is a test double driven entirely by the test: Script sets what
// the next read returns, writes are recorded instead of applied anywhere,
// and changes are signaled by calling Notify.
type Scripted struct {
	mu sync.Mutex

	kind  Kind
	text  string
	image *Image

	err error

	writes   []any
	changeCh chan struct{}
	closed   bool
}

// NewScripted returns a clipboard holding empty text: ReadText returns ""
// and ReadImage returns ErrWrongType until a Script or Write call.
func NewScripted() *Scripted {
	return &Scripted{changeCh: make(chan struct{}, 16)}
}

// ScriptText arranges for the next ReadText to return text, and for
// ReadImage to return ErrWrongType.
func (s *Scripted) ScriptText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kind = KindText
	s.text = text
	s.image = nil
	s.err = nil
}

// ScriptImage is the ScriptText analogue for images.
func (s *Scripted) ScriptImage(img *Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kind = KindImage
	s.image = img
	s.text = ""
	s.err = nil
}

// ScriptError forces every subsequent read to fail with err until the next
// Script call.
func (s *Scripted) ScriptError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Notify signals a change without altering the scripted content, mirroring
// a driver that detected an external clipboard write.
func (s *Scripted) Notify() {
	select {
	case s.changeCh <- struct{}{}:
	default:
	}
}

// Writes returns everything written so far, in order: string values from
// WriteText, *Image values from WriteImage.
func (s *Scripted) Writes() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]any, len(s.writes))
	copy(out, s.writes)
	return out
}

func (s *Scripted) ReadText() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	if s.kind != KindText {
		return "", ErrWrongType
	}
	return s.text, nil
}

func (s *Scripted) ReadImage() (*Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if s.kind != KindImage {
		return nil, ErrWrongType
	}
	return s.image, nil
}

func (s *Scripted) WriteText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kind = KindText
	s.text = text
	s.writes = append(s.writes, text)
	return nil
}

func (s *Scripted) WriteImage(img *Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kind = KindImage
	s.image = img
	s.writes = append(s.writes, img)
	return nil
}

func (s *Scripted) Changes() <-chan struct{} {
	return s.changeCh
}

func (s *Scripted) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.changeCh)
	return nil
}
