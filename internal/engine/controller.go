package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"horse.fit/pagetranslate/internal/dom"
	"horse.fit/pagetranslate/internal/langdetect"
	"horse.fit/pagetranslate/internal/language"
	"horse.fit/pagetranslate/internal/translation"
)

// NothingToTranslateMessage is stored in State.Error when a scan finds nothing.
const NothingToTranslateMessage = "No translatable content found on this page"

var (
	// ErrBusy is returned while another translate or restore is running.
	ErrBusy = errors.New("translation already in progress")
	// ErrNothingToTranslate is returned when a scan finds no eligible element.
	ErrNothingToTranslate = errors.New("nothing to translate")
)

type Status string

const (
	StatusIdle        Status = "idle"
	StatusTranslating Status = "translating"
	StatusTranslated  Status = "translated"
	StatusError       Status = "error"
)

// State is the observable state of a session.
type State struct {
	TargetLanguage string `json:"target_language,omitempty"`
	Progress       int    `json:"progress"`
	Translated     bool   `json:"translated"`
	Loading        bool   `json:"loading"`
	Error          string `json:"error,omitempty"`
	Status         Status `json:"status"`
	// Partial is set when a failed session left some batches applied.
	Partial bool `json:"partial"`
	Applied int  `json:"applied"`
	Total   int  `json:"total"`
}

type Options struct {
	Rules *Rules
	// NativeLanguage overrides the <html lang> attribute and detection.
	NativeLanguage string
	// TargetLanguage is used by Translate when called with an empty language.
	TargetLanguage string
	BatchSize      int
	Logger         zerolog.Logger
	// OnChange is called after every state transition and progress update.
	OnChange func(State)
}

// Controller runs translate and restore sessions over one document. At most one
// session runs at a time.
type Controller struct {
	doc        *dom.Document
	rules      *Rules
	scanner    *Scanner
	rewriter   *Rewriter
	dispatcher *translation.Dispatcher
	native     string
	target     string
	logger     zerolog.Logger
	onChange   func(State)

	guard *semaphore.Weighted
	// docMu serializes tree mutation against rendering. It is released while a
	// batch is in flight.
	docMu sync.RWMutex

	mu       sync.Mutex
	state    State
	snapshot *Snapshot
}

func NewController(doc *dom.Document, provider translation.Provider, opts Options) (*Controller, error) {
	if doc == nil || doc.Root() == nil {
		return nil, fmt.Errorf("document is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("translation provider is required")
	}
	rules := opts.Rules
	if rules == nil {
		rules = DefaultRules()
	}

	native := resolveNativeLanguage(doc, rules, opts.NativeLanguage)
	c := &Controller{
		doc:      doc,
		rules:    rules,
		scanner:  NewScanner(rules),
		rewriter: NewRewriter(doc, rules, opts.Logger),
		dispatcher: translation.NewDispatcher(provider, translation.DispatcherOptions{
			BatchSize:  opts.BatchSize,
			SourceLang: native,
			Logger:     opts.Logger,
		}),
		native:   native,
		target:   language.NormalizeTag(opts.TargetLanguage),
		logger:   opts.Logger,
		onChange: opts.OnChange,
		guard:    semaphore.NewWeighted(1),
		state:    State{Status: StatusIdle},
	}
	return c, nil
}

func resolveNativeLanguage(doc *dom.Document, rules *Rules, override string) string {
	declared := override
	if language.NormalizeCode(declared) == "" {
		declared = doc.Lang()
	}
	if code := language.NormalizeCode(declared); code != "" && code != language.Undetermined {
		return code
	}
	return langdetect.Resolve("", rules.Visibility().EffectiveText(doc.Body()), "en")
}

// NativeLanguage is the language the document was authored in.
func (c *Controller) NativeLanguage() string {
	return c.native
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Render writes the document in its current state.
func (c *Controller) Render(w io.Writer) error {
	c.docMu.RLock()
	defer c.docMu.RUnlock()
	return c.doc.Render(w)
}

// Eligible scans the document without changing session state.
func (c *Controller) Eligible(lang string) ([]Element, error) {
	if !c.guard.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer c.guard.Release(1)

	c.docMu.Lock()
	defer c.docMu.Unlock()
	return c.scanner.Scan(c.doc, c.resolveTarget(lang)), nil
}

// Translate translates the document into lang. An empty lang uses the
// configured default target. Translating a translated page first restores it.
// Translating into the native language only restores.
func (c *Controller) Translate(ctx context.Context, lang string) error {
	if !c.guard.TryAcquire(1) {
		return ErrBusy
	}
	defer c.guard.Release(1)

	target := c.resolveTarget(lang)
	if target == "" {
		return fmt.Errorf("target language is required")
	}

	current := c.State()
	if current.Status == StatusTranslated && current.TargetLanguage == target {
		return nil
	}
	if c.hasSnapshot() {
		c.restore()
	}
	if language.Same(target, c.native) {
		c.logger.Debug().Str("target", target).Msg("target is the native language; nothing to do")
		return nil
	}

	return c.translate(ctx, target)
}

// Restore returns every translated element to its original content.
func (c *Controller) Restore(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.guard.TryAcquire(1) {
		return ErrBusy
	}
	defer c.guard.Release(1)

	if !c.hasSnapshot() {
		return nil
	}
	c.restore()
	return nil
}

func (c *Controller) translate(ctx context.Context, target string) error {
	logger := c.logger.With().Str("target", target).Logger()
	c.setState(State{TargetLanguage: target, Loading: true, Status: StatusTranslating})

	c.docMu.Lock()
	elements := c.scanner.Scan(c.doc, target)
	if len(elements) == 0 {
		c.docMu.Unlock()
		logger.Info().Msg("no translatable content found")
		c.setState(State{Status: StatusIdle, Error: NothingToTranslateMessage})
		return ErrNothingToTranslate
	}
	snapshot := Capture(elements, c.rules.Visibility())
	c.rewriter.Reset()
	c.rewriter.SetLanguage(target)
	c.docMu.Unlock()

	c.mu.Lock()
	c.snapshot = snapshot
	c.mu.Unlock()

	total := snapshot.Len()
	logger.Info().Int("elements", total).Msg("translation started")
	c.updateState(func(s *State) { s.Total = total })

	applied := 0
	for result, err := range c.dispatcher.Dispatch(ctx, snapshot.Pairs(), target) {
		if err != nil {
			logger.Error().Err(err).Int("applied", applied).Int("total", total).Msg("translation failed")
			c.updateState(func(s *State) {
				s.Loading = false
				s.Translated = false
				s.Status = StatusError
				s.Error = err.Error()
				s.Partial = applied > 0
				s.Applied = applied
			})
			return fmt.Errorf("translate document: %w", err)
		}

		c.docMu.Lock()
		for _, item := range result.Items {
			if c.rewriter.Apply(item.ID, item.Text) {
				applied++
				continue
			}
			logger.Debug().Str("id", item.ID).Msg("element removed before apply; skipped")
		}
		c.docMu.Unlock()

		logger.Debug().
			Int("batch", result.Index+1).
			Int("batches", result.Batches).
			Int("progress", result.Progress).
			Msg("translation batch applied")
		c.updateState(func(s *State) {
			s.Progress = result.Progress
			s.Applied = applied
		})
	}

	c.updateState(func(s *State) {
		s.Loading = false
		s.Translated = true
		s.Status = StatusTranslated
		s.Progress = 100
	})
	logger.Info().Int("applied", applied).Msg("translation finished")
	return nil
}

func (c *Controller) restore() {
	c.mu.Lock()
	snapshot := c.snapshot
	c.snapshot = nil
	c.mu.Unlock()

	c.docMu.Lock()
	restored := 0
	for id, orig := range snapshot.All() {
		if c.rewriter.Restore(id, orig) {
			restored++
		}
	}
	c.rewriter.Reset()
	c.rewriter.SetLanguage("")
	c.docMu.Unlock()
	snapshot.Clear()

	c.logger.Info().Int("restored", restored).Msg("document restored")
	c.setState(State{Status: StatusIdle})
}

func (c *Controller) hasSnapshot() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.Len() > 0
}

func (c *Controller) resolveTarget(lang string) string {
	if target := language.NormalizeTag(lang); target != "" {
		return target
	}
	return c.target
}

func (c *Controller) setState(next State) {
	c.updateState(func(s *State) { *s = next })
}

func (c *Controller) updateState(fn func(*State)) {
	c.mu.Lock()
	fn(&c.state)
	snapshot := c.state
	c.mu.Unlock()

	if c.onChange != nil {
		c.onChange(snapshot)
	}
}
