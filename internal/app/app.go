package app

import (
	"runtime"
	"time"

	"github.com/gdamore/tcell/v2"

	"quill/internal/buffer"
	"quill/internal/config"
	"quill/internal/editor"
	"quill/internal/highlight"
	"quill/internal/logger"
	"quill/internal/schedule"
	"quill/internal/search"
	"quill/internal/storage"
)

// App is the top-level runtime for quill.
type App struct {
	args []string
}

func New(args []string) *App {
	return &App{args: args}
}

func (a *App) Run() error {
	runtime.LockOSThread()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	langs, err := config.LoadLanguages()
	if err != nil {
		return err
	}

	s, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := s.Init(); err != nil {
		return err
	}
	defer s.Fini()

	// Scheduler callbacks fire on timer goroutines; they are marshaled
	// back onto this loop as interrupt events before touching any core
	// state.
	dispatch := func(fn func()) {
		_ = s.PostEvent(tcell.NewEventInterrupt(fn))
	}

	sched := schedule.New()
	defer sched.CancelAll()

	buf := buffer.New()
	eng := search.NewEngine(buf)

	mgr := storage.NewManager(cfg, sched, buf.Text)
	mgr.SetDispatch(dispatch)
	mgr.SetSavedFunc(buf.MarkClean)
	defer mgr.Close()

	hl := highlight.New(sched, buf.Text, nil)
	hl.SetDispatch(dispatch)
	hl.SetDelay(time.Duration(cfg.Editor.HighlightDelayMs) * time.Millisecond)
	defer hl.Stop()

	ed := editor.New(cfg, langs, buf, hl, eng, mgr)
	hl.SetSink(ed.SetTokens)
	mgr.SetStatusFunc(ed.SetStatus)

	// Change notification fan-out: the highlighter's recompute debounce
	// and the auto-save debounce both hang off the buffer's observers.
	buf.Observe(hl.OnChange)
	buf.Observe(mgr.OnBufferChanged)

	if len(a.args) > 0 {
		if err := ed.Open(a.args[0]); err != nil {
			return err
		}
	}

	ed.Render(s)
	for {
		ev := s.PollEvent()
		switch ev := ev.(type) {
		case *tcell.EventKey:
			if ed.HandleKey(ev) {
				logger.Info("exiting")
				return nil
			}
		case *tcell.EventResize:
			s.Sync()
		case *tcell.EventInterrupt:
			if fn, ok := ev.Data().(func()); ok {
				fn()
			}
		}
		ed.Render(s)
	}
}
