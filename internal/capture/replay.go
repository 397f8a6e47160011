package capture

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/roach88/mestouches/internal/record"
)

// Step types of a replay script.
const (
	StepKey    = "key"
	StepClick  = "click"
	StepOpen   = "open"
	StepClose  = "close"
	StepRename = "rename"
	StepWait   = "wait"
)

// wheelDelta is one wheel notch.
const wheelDelta = 120

// ReplayStep is one line of a replay script:
//
//	{"type":"key","code":65}
//	{"type":"click","button":"left","x":-20,"y":300}
//	{"type":"open","window":7,"subject":"C:/Tools/editor.exe","document":"notes.txt"}
//	{"type":"rename","window":7,"document":"notes.txt*"}
//	{"type":"close","window":7}
//	{"type":"wait","ms":15}
type ReplayStep struct {
	Type     string `json:"type"`
	Code     uint32 `json:"code,omitempty"`
	Button   string `json:"button,omitempty"`
	X        int32  `json:"x,omitempty"`
	Y        int32  `json:"y,omitempty"`
	Window   uint64 `json:"window,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Document string `json:"document,omitempty"`
	MS       int    `json:"ms,omitempty"`
}

// ReplaySource feeds a parsed script through the hooks. Windows opened by
// the script are named through its own MapResolver, which the window hook
// must be built with.
type ReplaySource struct {
	steps    []ReplayStep
	resolver *MapResolver
	sleep    func(ctx context.Context, d time.Duration) error
}

// ParseReplay reads a JSON-lines script. Blank lines and lines starting
// with '#' are skipped.
func ParseReplay(r io.Reader) (*ReplaySource, error) {
	s := &ReplaySource{resolver: NewMapResolver(), sleep: sleepCtx}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var step ReplayStep
		if err := json.Unmarshal([]byte(text), &step); err != nil {
			return nil, fmt.Errorf("replay line %d: %w", line, err)
		}
		if err := step.validate(); err != nil {
			return nil, fmt.Errorf("replay line %d: %w", line, err)
		}
		s.steps = append(s.steps, step)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read replay: %w", err)
	}
	return s, nil
}

// OpenReplay parses the script at path.
func OpenReplay(path string) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay: %w", err)
	}
	defer f.Close()
	return ParseReplay(f)
}

func (st ReplayStep) validate() error {
	switch st.Type {
	case StepKey:
		if st.Code > 0xFF {
			return fmt.Errorf("key code %d out of range", st.Code)
		}
	case StepClick:
		if _, err := pointerFor(st); err != nil {
			return err
		}
	case StepOpen, StepClose, StepRename:
		if st.Window == 0 {
			return fmt.Errorf("%s step needs a window handle", st.Type)
		}
	case StepWait:
		if st.MS < 0 {
			return fmt.Errorf("negative wait %dms", st.MS)
		}
	default:
		return fmt.Errorf("unknown step type %q", st.Type)
	}
	return nil
}

// pointerFor encodes a click step the way a mouse hook would report it.
func pointerFor(st ReplayStep) (RawPointer, error) {
	b, ok := record.ParseButton(st.Button)
	if !ok {
		return RawPointer{}, fmt.Errorf("unknown button %q", st.Button)
	}
	p := RawPointer{X: st.X, Y: st.Y}
	switch b {
	case record.ButtonLeft:
		p.Message = MsgLButtonUp
	case record.ButtonRight:
		p.Message = MsgRButtonUp
	case record.ButtonMiddle:
		p.Message = MsgMButtonUp
	case record.ButtonX1:
		p.Message, p.MouseData = MsgXButtonUp, uint32(XButton1)<<16
	case record.ButtonX2:
		p.Message, p.MouseData = MsgXButtonUp, uint32(XButton2)<<16
	case record.ButtonWheelUp:
		p.Message, p.MouseData = MsgMouseWheel, uint32(uint16(wheelDelta))<<16
	case record.ButtonWheelDown:
		delta := int16(-wheelDelta)
		p.Message, p.MouseData = MsgMouseWheel, uint32(uint16(delta))<<16
	default:
		return RawPointer{}, fmt.Errorf("button %q cannot be replayed", st.Button)
	}
	return p, nil
}

// Steps returns the number of parsed steps.
func (s *ReplaySource) Steps() int { return len(s.steps) }

// Resolver returns the resolver naming the script's windows.
func (s *ReplaySource) Resolver() *MapResolver { return s.resolver }

// Run implements Source. It returns nil once every step has been played.
func (s *ReplaySource) Run(ctx context.Context, hooks *Hooks) error {
	return s.play(ctx, func(st ReplayStep) {
		switch st.Type {
		case StepKey:
			hooks.Keyboard.Handle(RawKey{Message: MsgKeyUp, VKCode: st.Code})
		case StepClick:
			p, _ := pointerFor(st)
			hooks.Pointer.Handle(p)
		case StepOpen:
			if hooks.Window != nil {
				hooks.Window.Handle(WindowSignal{Code: WindowCreated, Window: st.Window})
			}
		case StepRename:
			if hooks.Window != nil {
				hooks.Window.Handle(WindowSignal{Code: WindowRenamed, Window: st.Window})
			}
		case StepClose:
			if hooks.Window != nil {
				hooks.Window.Handle(WindowSignal{Code: WindowDestroyed, Window: st.Window})
			}
		}
	})
}

// RunWindows implements WindowSource, playing only the window steps.
func (s *ReplaySource) RunWindows(ctx context.Context, emit func(WindowSignal)) error {
	return s.play(ctx, func(st ReplayStep) {
		switch st.Type {
		case StepOpen:
			emit(WindowSignal{Code: WindowCreated, Window: st.Window})
		case StepRename:
			emit(WindowSignal{Code: WindowRenamed, Window: st.Window})
		case StepClose:
			emit(WindowSignal{Code: WindowDestroyed, Window: st.Window})
		}
	})
}

func (s *ReplaySource) play(ctx context.Context, apply func(ReplayStep)) error {
	for _, st := range s.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch st.Type {
		case StepWait:
			if err := s.sleep(ctx, time.Duration(st.MS)*time.Millisecond); err != nil {
				return err
			}
			continue
		case StepOpen:
			s.resolver.Set(st.Window, st.Subject, st.Document)
		case StepRename:
			subject, document := s.resolver.Resolve(st.Window)
			if st.Subject != "" {
				subject = st.Subject
			}
			if st.Document != "" {
				document = st.Document
			}
			s.resolver.Set(st.Window, subject, document)
		}
		apply(st)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
