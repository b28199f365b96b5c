// Package builder is the live page-builder component. One Builder edits one
// page template: it owns the draft, the active section and the editor state
// of a single studio session, and talks to storage only through the
// persistence gateway.
package builder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gabrielmiguelok/pagestudio/pkg/canvas"
	"github.com/gabrielmiguelok/pagestudio/pkg/catalog"
	"github.com/gabrielmiguelok/pagestudio/pkg/core"
	"github.com/gabrielmiguelok/pagestudio/pkg/draft"
	"github.com/gabrielmiguelok/pagestudio/pkg/editor"
	"github.com/gabrielmiguelok/pagestudio/pkg/gateway"
	"github.com/gabrielmiguelok/pagestudio/pkg/logging"
	"github.com/gabrielmiguelok/pagestudio/pkg/metrics"
	"github.com/gabrielmiguelok/pagestudio/pkg/pubsub"
	"github.com/gabrielmiguelok/pagestudio/pkg/section"
	"github.com/gabrielmiguelok/pagestudio/pkg/store"
)

// Events handled by the builder.
const (
	EventSelect  = "select"
	EventEditor  = "editor"
	EventSave    = "save"
	EventPreview = "preview"
	EventDismiss = "dismiss"
	EventRetry   = "retry"
)

// ErrUnknownEvent is returned for events the builder does not handle.
var ErrUnknownEvent = errors.New("unknown builder event")

// maxNotices caps the notices kept on screen; the oldest go first.
const maxNotices = 4

// Phase is the lifecycle stage of a studio session.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseReady
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseReady:
		return "ready"
	case PhaseFailed:
		return "failed"
	default:
		return "loading"
	}
}

// Notice is a dismissible message shown above the studio.
type Notice struct {
	ID    int
	Level string // info, warning or error
	Text  string
}

// Deps are the collaborators of a builder.
type Deps struct {
	Template *section.Template
	Repo     store.Repository

	// Catalog feeds the product pickers. Nil means an empty catalog.
	Catalog catalog.Source

	// Logger defaults to the logger carried by the mount context.
	Logger logging.Logger

	// SaveTimeout bounds one save. It defaults to 30s.
	SaveTimeout time.Duration

	// Metrics is optional.
	Metrics *metrics.Studio

	// Events, when set, tells this studio about saves made by other
	// studios of the same page and announces its own.
	Events *pubsub.Hub
}

// saveDone is the info message a finished save sends back to the builder.
type saveDone struct {
	err error
}

// savedElsewhere is the info message for a save made by another studio.
type savedElsewhere struct {
	at time.Time
}

// Builder implements core.Component.
type Builder struct {
	core.BaseComponent

	deps       Deps
	tmpl       *section.Template
	gateway    *gateway.Gateway
	store      *draft.Store
	selection  *Controller
	dispatcher *editor.Dispatcher
	canvas     *canvas.Renderer
	states     map[string]*editor.State
	logger     logging.Logger

	phase   Phase
	loadErr error
	saving  bool
	preview bool

	notices    []Notice
	nextNotice int

	sub *pubsub.Subscription
}

// New creates a builder for deps.Template.
func New(deps Deps) *Builder {
	if deps.SaveTimeout <= 0 {
		deps.SaveTimeout = 30 * time.Second
	}
	return &Builder{
		deps:       deps,
		tmpl:       deps.Template,
		store:      draft.New(deps.Template),
		selection:  NewController(deps.Template),
		dispatcher: editor.New(nil),
		canvas:     canvas.New(deps.Template, nil),
		states:     make(map[string]*editor.State),
		logger:     deps.Logger,
	}
}

// Name implements core.Component.
func (b *Builder) Name() string {
	return "studio-" + b.tmpl.Name
}

// Store returns the draft store.
func (b *Builder) Store() *draft.Store { return b.store }

// Selection returns the selection controller.
func (b *Builder) Selection() *Controller { return b.selection }

// Phase returns the lifecycle stage.
func (b *Builder) Phase() Phase { return b.phase }

// Saving reports whether a save is in flight.
func (b *Builder) Saving() bool { return b.saving }

// Previewing reports whether the full-screen preview is shown.
func (b *Builder) Previewing() bool { return b.preview }

// Notices returns the notices on screen, oldest first.
func (b *Builder) Notices() []Notice {
	return append([]Notice(nil), b.notices...)
}

// Mount loads the catalog and the page. A load failure is not returned: the
// builder renders an error state with a retry action instead of an editor
// over missing content.
func (b *Builder) Mount(ctx context.Context, params core.Params, session core.Session) error {
	if b.logger == nil {
		b.logger = logging.L(ctx)
	}
	b.logger = b.logger.With(logging.String("page", b.tmpl.Name))
	b.gateway = gateway.New(b.tmpl, b.deps.Repo, b.logger)

	if key := params.Get("section"); key != "" {
		b.selection.Select(key)
	}
	b.deps.Metrics.StudioOpened()
	b.subscribe()
	b.load(ctx)
	return nil
}

// subscribe listens for saves of the same page from other studios. Only
// connected studios listen.
func (b *Builder) subscribe() {
	socket := b.Socket()
	if b.deps.Events == nil || socket == nil {
		return
	}
	sub, err := pubsub.SubscribeSaved(b.deps.Events, b.tmpl.Name, func(ev pubsub.PageSaved) {
		if ev.Origin != socket.ID() {
			socket.SendInfo(savedElsewhere{at: ev.At})
		}
	})
	if err != nil {
		b.logger.Warn("page events unavailable", logging.Err(err))
		return
	}
	b.sub = sub
}

func (b *Builder) announceSave() {
	if b.deps.Events == nil {
		return
	}
	var origin string
	if socket := b.Socket(); socket != nil {
		origin = socket.ID()
	}
	ev := pubsub.PageSaved{Page: b.tmpl.Name, Origin: origin, At: time.Now()}
	if err := pubsub.PublishSaved(b.deps.Events, ev); err != nil {
		b.logger.Warn("save announcement failed", logging.Err(err))
	}
}

// load fetches the catalog snapshot and the page concurrently.
func (b *Builder) load(ctx context.Context) {
	b.phase = PhaseLoading

	var (
		snap *catalog.Snapshot
		cfg  *section.Config
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if b.deps.Catalog == nil {
			snap = catalog.NewSnapshot(nil)
			return nil
		}
		var err error
		snap, err = catalog.Load(gctx, b.deps.Catalog, catalog.KindProducts, catalog.KindPacks)
		return err
	})
	g.Go(func() error {
		var err error
		cfg, err = b.gateway.Load(gctx)
		return err
	})

	err := g.Wait()
	b.deps.Metrics.Loaded(err)
	if err != nil {
		b.logger.Error("studio load failed", logging.Err(err))
		b.phase, b.loadErr = PhaseFailed, err
		return
	}

	b.dispatcher.SetPicker(snap)
	b.canvas.SetLookup(snap)
	b.store.Load(cfg)
	b.states = make(map[string]*editor.State)
	b.phase, b.loadErr = PhaseReady, nil
}

// HandleEvent implements core.Component.
func (b *Builder) HandleEvent(ctx context.Context, event string, payload map[string]any) error {
	switch event {
	case EventRetry:
		if b.phase == PhaseFailed {
			b.load(ctx)
		}
		return nil
	case EventDismiss:
		b.dismiss(payload)
		return nil
	}

	if b.phase != PhaseReady {
		return nil
	}

	switch event {
	case EventSelect:
		if key := stringValue(payload, "section"); key != "" {
			b.selection.Select(key)
			b.preview = false
		}
	case EventEditor:
		b.edit(payload)
	case EventSave:
		b.startSave(ctx)
	case EventPreview:
		b.preview = !b.preview
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	return nil
}

// edit forwards an editor action to the dispatcher and applies the payload
// it builds.
func (b *Builder) edit(payload map[string]any) {
	key := stringValue(payload, "section")
	if key == "" {
		key = b.selection.Active()
	}
	action := stringValue(payload, "action")

	desc, ok := b.tmpl.Lookup(key)
	if !ok {
		b.logger.Warn("edit on section outside the registry", logging.String("section", key), logging.String("action", action))
		return
	}

	res := b.dispatcher.Apply(desc, b.store.Section(key), b.state(key), action, payload)
	if res.Err != nil {
		b.logger.Warn("editor action ignored", logging.String("section", key), logging.Err(res.Err))
		return
	}
	if res.Warning != "" {
		b.notify("warning", res.Warning)
	}
	if !res.Changed() {
		return
	}
	b.deps.Metrics.Edited(action, res.Warning != "")
	if err := b.store.UpdateSection(key, res.Data); err != nil {
		b.logger.Error("section update rejected", logging.String("section", key), logging.Err(err))
	}
}

func (b *Builder) state(key string) *editor.State {
	st, ok := b.states[key]
	if !ok {
		st = editor.NewState()
		b.states[key] = st
	}
	return st
}

// startSave writes the draft off the event loop. The save does not inherit
// the event's cancellation: leaving the page mid-save does not abort it,
// though the result may never be shown.
func (b *Builder) startSave(ctx context.Context) {
	if b.saving {
		return
	}
	b.saving = true
	ctx = context.WithoutCancel(ctx)

	socket := b.Socket()
	if socket == nil {
		b.finishSave(b.save(ctx))
		return
	}

	go func() {
		err := b.save(ctx)
		if !socket.SendInfo(saveDone{err: err}) {
			b.logger.Warn("save finished after the studio closed", logging.Err(err))
		}
	}()
}

func (b *Builder) save(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.deps.SaveTimeout)
	defer cancel()

	start := time.Now()
	err := b.gateway.Save(ctx, b.store)
	b.deps.Metrics.Saved(time.Since(start), err)
	return err
}

func (b *Builder) finishSave(err error) {
	b.saving = false
	switch {
	case err != nil:
		b.logger.Error("save failed", logging.Err(err))
		b.notify("error", "Could not save the page. Your changes are still here; try again.")
	case b.store.IsDirty():
		b.announceSave()
		b.notify("info", "Page saved. Edits made while saving are not saved yet.")
	default:
		b.announceSave()
		b.notify("info", "Page saved.")
	}
}

// HandleInfo implements core.Component.
func (b *Builder) HandleInfo(ctx context.Context, msg any) error {
	switch msg := msg.(type) {
	case saveDone:
		b.finishSave(msg.err)
	case savedElsewhere:
		b.notify("warning", "This page was saved from another studio at "+msg.at.Format("15:04:05")+
			". Saving here replaces that version.")
	}
	return nil
}

// Terminate implements core.Component. Unsaved edits are dropped.
func (b *Builder) Terminate(ctx context.Context, reason core.TerminateReason) error {
	b.deps.Metrics.StudioClosed()
	if b.sub != nil {
		b.sub.Unsubscribe()
	}
	if b.store.IsDirty() && b.logger != nil {
		b.logger.Info("studio closed with unsaved changes", logging.String("reason", reason.String()))
	}
	return nil
}

func (b *Builder) notify(level, text string) {
	b.nextNotice++
	b.notices = append(b.notices, Notice{ID: b.nextNotice, Level: level, Text: text})
	if len(b.notices) > maxNotices {
		b.notices = b.notices[len(b.notices)-maxNotices:]
	}
}

func (b *Builder) dismiss(payload map[string]any) {
	id, err := strconv.Atoi(stringValue(payload, "id"))
	if err != nil {
		return
	}
	for i, n := range b.notices {
		if n.ID == id {
			b.notices = append(b.notices[:i], b.notices[i+1:]...)
			return
		}
	}
}

func stringValue(payload map[string]any, key string) string {
	switch v := payload[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

type sidebarEntry struct {
	Key      string
	Label    string
	Shape    string
	Active   bool
	Modified bool
}

type studioView struct {
	Page     string
	Title    string
	Phase    string
	Error    string
	Dirty    bool
	Saving   bool
	Preview  bool
	Notices  []Notice
	Sidebar  []sidebarEntry
	Canvas   template.HTML
	Editor   template.HTML
	Revision uint64
}

// Render implements core.Component.
func (b *Builder) Render(ctx context.Context) core.Renderer {
	return core.RendererFunc(func(ctx context.Context, w io.Writer) error {
		view, err := b.view()
		if err != nil {
			return err
		}
		return studioTemplate.Execute(w, view)
	})
}

func (b *Builder) view() (studioView, error) {
	v := studioView{
		Page:    b.tmpl.Name,
		Title:   b.tmpl.Title,
		Phase:   b.phase.String(),
		Saving:  b.saving,
		Preview: b.preview,
		Notices: b.notices,
	}
	if b.phase == PhaseFailed && b.loadErr != nil {
		v.Error = b.loadErr.Error()
	}
	if b.phase != PhaseReady {
		return v, nil
	}

	cfg, revision := b.store.Snapshot()
	v.Dirty, v.Revision = b.store.IsDirty(), revision
	active := b.selection.Active()

	var buf bytes.Buffer
	if b.preview {
		if err := b.canvas.Render(&buf, cfg, canvas.Options{Mode: canvas.ModePreview}); err != nil {
			return v, err
		}
		v.Canvas = template.HTML(buf.String())
		return v, nil
	}

	for _, key := range cfg.Keys() {
		e := sidebarEntry{Key: key, Label: key, Shape: section.ShapeUnknown.String(), Active: key == active, Modified: b.store.Modified(key)}
		if desc, ok := b.tmpl.Lookup(key); ok {
			e.Label, e.Shape = desc.Label, desc.Shape.String()
		}
		v.Sidebar = append(v.Sidebar, e)
	}

	if err := b.canvas.Render(&buf, cfg, canvas.Options{Mode: canvas.ModeInteractive, Active: active}); err != nil {
		return v, err
	}
	v.Canvas = template.HTML(buf.String())

	buf.Reset()
	desc, ok := b.tmpl.Lookup(active)
	if !ok {
		desc = section.Descriptor{Key: active, Label: active, Shape: section.ShapeUnknown}
	}
	data, _ := cfg.Get(active)
	if err := b.dispatcher.Render(&buf, desc, data, b.state(active)); err != nil {
		return v, err
	}
	v.Editor = template.HTML(buf.String())
	return v, nil
}

var studioTemplate = template.Must(template.New("studio").Parse(`<div class="studio studio-{{.Page}}">
<header class="toolbar" data-slot="toolbar">
  <span hidden data-phase="{{.Phase}}"{{if .Dirty}} data-dirty{{end}}></span>
  <h1>{{.Title}}</h1>
  {{if eq .Phase "ready"}}<span class="status">{{if .Saving}}Saving…{{else if .Dirty}}Unsaved changes{{else}}All changes saved{{end}}</span>
  <button class="toggle-preview" lv-click="preview">{{if .Preview}}Back to editor{{else}}Preview{{end}}</button>
  <button class="primary" lv-click="save"{{if or .Saving (not .Dirty)}} disabled{{end}}>{{if .Saving}}Saving…{{else}}Save{{end}}</button>{{end}}
</header>
<div class="notices" data-slot="notices">{{range .Notices}}
  <div class="notice notice-{{.Level}}" role="status">{{.Text}} <button class="dismiss" lv-click="dismiss" lv-value-id="{{.ID}}" aria-label="Dismiss">×</button></div>{{end}}
</div>
{{if eq .Phase "failed"}}<div class="studio-error" data-slot="status">
  <p>The page could not be loaded, so editing is disabled to protect the saved content.</p>
  <pre>{{.Error}}</pre>
  <button class="primary" lv-click="retry">Retry</button>
</div>{{else if eq .Phase "loading"}}<div class="studio-loading" data-slot="status"><p>Loading…</p></div>
{{else if .Preview}}<div class="studio-preview" data-slot="preview">{{.Canvas}}</div>
{{else}}<div class="studio-body">
  <nav class="sidebar" data-slot="sidebar"><ul>{{range .Sidebar}}
    <li class="{{if .Active}}active{{end}}"><button lv-click="select" lv-value-section="{{.Key}}" data-shape="{{.Shape}}">{{.Label}}{{if .Modified}} <span class="modified" title="Modified">●</span>{{end}}</button></li>{{end}}
  </ul></nav>
  <div class="canvas" data-slot="canvas">{{.Canvas}}</div>
  <aside class="editor-panel" data-slot="editor">{{.Editor}}</aside>
</div>{{end}}
</div>`))
