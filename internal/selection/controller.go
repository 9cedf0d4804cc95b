// Package selection implements the create, select, drag and delete gestures
// for beams and dispensers.
//
// The controller is a small state machine:
//
//	Idle --shift-drag--> Drawing --release--> Idle
//	Idle --click geometry--> Selected --grab handle--> DraggingEndpoint --release--> Selected
//	Selected --drag dispenser--> Moving --release--> Selected
//	Selected --click empty / Escape / Delete--> Idle
//
// It mutates the scene only through [Scene], and reports visual feedback on
// a bus so renderers never poll it.
package selection

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/bounce/internal/dynamo"
	"github.com/san-kum/bounce/internal/event"
	"github.com/san-kum/bounce/internal/physics"
)

type State uint8

const (
	Idle State = iota
	Drawing
	Selected
	DraggingEndpoint
	Moving
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Drawing:
		return "drawing"
	case Selected:
		return "selected"
	case DraggingEndpoint:
		return "dragging-endpoint"
	case Moving:
		return "moving"
	default:
		return "unknown"
	}
}

// Scene is the part of the physics world the controller edits.
type Scene interface {
	Pick(p mgl64.Vec3, tolerance float64) (dynamo.BodyID, bool)
	Kind(id dynamo.BodyID) (dynamo.Kind, bool)
	EndpointNear(id dynamo.BodyID, p mgl64.Vec3, radius float64) (physics.End, bool)
	CreateWall(start, end mgl64.Vec3) (dynamo.BodyID, error)
	CreateDispenser(pos mgl64.Vec3) (dynamo.BodyID, error)
	UpdateWallEndpoint(id dynamo.BodyID, which physics.End, p mgl64.Vec3) error
	MoveDispenser(id dynamo.BodyID, p mgl64.Vec3) error
	RemoveBody(id dynamo.BodyID) error
}

type FeedbackKind uint8

const (
	FeedbackSelect FeedbackKind = iota
	FeedbackDeselect
	FeedbackPreview
	FeedbackPreviewCancel
	FeedbackCommit
	FeedbackReject
	FeedbackDelete
)

type Feedback struct {
	Kind  FeedbackKind
	ID    dynamo.BodyID
	Start mgl64.Vec3
	End   mgl64.Vec3
	Err   error
}

type Config struct {
	PickTolerance float64 `yaml:"pick_tolerance"`
	HandleRadius  float64 `yaml:"handle_radius"`
	// MinLength is the shortest drawn beam that gets committed.
	MinLength float64 `yaml:"min_length"`
}

func DefaultConfig() Config {
	return Config{PickTolerance: 0.15, HandleRadius: 0.2, MinLength: 0.2}
}

type Controller struct {
	cfg        Config
	scene      Scene
	unregister func(dynamo.BodyID)

	state    State
	selected dynamo.BodyID
	handle   physics.End
	start    mgl64.Vec3
	end      mgl64.Vec3

	feedback *event.Bus[Feedback]
}

// New builds a controller. unregister, when set, is called for every body
// the controller deletes, before the body leaves the scene.
func New(cfg Config, scene Scene, unregister func(dynamo.BodyID)) *Controller {
	d := DefaultConfig()
	if cfg.PickTolerance <= 0 {
		cfg.PickTolerance = d.PickTolerance
	}
	if cfg.HandleRadius <= 0 {
		cfg.HandleRadius = d.HandleRadius
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = d.MinLength
	}
	return &Controller{
		cfg:        cfg,
		scene:      scene,
		unregister: unregister,
		feedback:   event.NewBus[Feedback](),
	}
}

func (c *Controller) Feedback() *event.Bus[Feedback] { return c.feedback }
func (c *Controller) State() State                   { return c.state }

// Selection returns the selected body, if any.
func (c *Controller) Selection() (dynamo.BodyID, bool) {
	return c.selected, c.selected != 0
}

// Preview returns the beam being drawn.
func (c *Controller) Preview() (start, end mgl64.Vec3, ok bool) {
	return c.start, c.end, c.state == Drawing
}

func (c *Controller) Click(p mgl64.Vec3) {
	if c.state == Drawing || c.state == DraggingEndpoint || c.state == Moving {
		return
	}
	id, ok := c.scene.Pick(p, c.cfg.PickTolerance)
	if !ok {
		c.deselect()
		return
	}
	c.selectBody(id)
}

// ModifierClick places a dispenser at p and selects it.
func (c *Controller) ModifierClick(p mgl64.Vec3) (dynamo.BodyID, error) {
	if c.state == Drawing || c.state == DraggingEndpoint || c.state == Moving {
		return 0, nil
	}
	id, err := c.scene.CreateDispenser(p)
	if err != nil {
		c.feedback.Publish(Feedback{Kind: FeedbackReject, Start: p, Err: err})
		return 0, err
	}
	c.feedback.Publish(Feedback{Kind: FeedbackCommit, ID: id, Start: p})
	c.selectBody(id)
	return id, nil
}

func (c *Controller) DragStart(p mgl64.Vec3, shift bool) {
	switch {
	case shift && (c.state == Idle || c.state == Selected):
		c.deselect()
		c.state = Drawing
		c.start, c.end = p, p
		c.feedback.Publish(Feedback{Kind: FeedbackPreview, Start: p, End: p})

	case !shift && c.state == Selected:
		kind, ok := c.scene.Kind(c.selected)
		if !ok {
			c.forget()
			return
		}
		switch kind {
		case dynamo.KindWall:
			if end, ok := c.scene.EndpointNear(c.selected, p, c.cfg.HandleRadius); ok {
				c.handle = end
				c.state = DraggingEndpoint
			}
		case dynamo.KindDispenser:
			if id, ok := c.scene.Pick(p, c.cfg.PickTolerance); ok && id == c.selected {
				c.state = Moving
			}
		}
	}
}

func (c *Controller) DragMove(p mgl64.Vec3) {
	switch c.state {
	case Drawing:
		c.end = p
		c.feedback.Publish(Feedback{Kind: FeedbackPreview, Start: c.start, End: p})
	case DraggingEndpoint:
		// degenerate positions are skipped; the beam keeps its last valid shape
		if err := c.scene.UpdateWallEndpoint(c.selected, c.handle, p); err != nil && !errors.Is(err, dynamo.ErrDegenerateGeometry) {
			c.forget()
		}
	case Moving:
		if err := c.scene.MoveDispenser(c.selected, p); err != nil && !errors.Is(err, dynamo.ErrDegenerateGeometry) {
			c.forget()
		}
	}
}

func (c *Controller) DragEnd(p mgl64.Vec3) {
	switch c.state {
	case Drawing:
		c.end = p
		c.commit()
	case DraggingEndpoint, Moving:
		c.DragMove(p)
		if c.state != Idle {
			c.state = Selected
		}
	}
}

func (c *Controller) commit() {
	start, end := c.start, c.end
	c.state = Idle
	if end.Sub(start).Len() < c.cfg.MinLength {
		c.feedback.Publish(Feedback{Kind: FeedbackPreviewCancel, Start: start, End: end})
		return
	}
	id, err := c.scene.CreateWall(start, end)
	if err != nil {
		c.feedback.Publish(Feedback{Kind: FeedbackReject, Start: start, End: end, Err: err})
		return
	}
	c.feedback.Publish(Feedback{Kind: FeedbackCommit, ID: id, Start: start, End: end})
}

func (c *Controller) Escape() {
	switch c.state {
	case Drawing:
		c.state = Idle
		c.feedback.Publish(Feedback{Kind: FeedbackPreviewCancel, Start: c.start, End: c.end})
	case Selected, DraggingEndpoint, Moving:
		c.deselect()
	}
}

// Delete removes the selected body and returns to Idle.
func (c *Controller) Delete() error {
	if c.selected == 0 || c.state == Drawing {
		return nil
	}
	id := c.selected
	c.selected = 0
	c.state = Idle

	if c.unregister != nil {
		c.unregister(id)
	}
	err := c.scene.RemoveBody(id)
	c.feedback.Publish(Feedback{Kind: FeedbackDelete, ID: id, Err: err})
	return err
}

// Forget drops the selection if id was removed by someone else.
func (c *Controller) Forget(id dynamo.BodyID) {
	if c.selected == id {
		c.forget()
	}
}

func (c *Controller) forget() {
	c.selected = 0
	c.state = Idle
}

func (c *Controller) selectBody(id dynamo.BodyID) {
	if c.selected == id {
		c.state = Selected
		return
	}
	c.deselect()
	c.selected = id
	c.state = Selected
	c.feedback.Publish(Feedback{Kind: FeedbackSelect, ID: id})
}

func (c *Controller) deselect() {
	if c.selected != 0 {
		prev := c.selected
		c.selected = 0
		c.feedback.Publish(Feedback{Kind: FeedbackDeselect, ID: prev})
	}
	c.state = Idle
}
