// Package surface is the server-side map surface: it holds the view setup
// and the last painted feature collection, which the map page fetches.
package surface

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/okian/casemap/internal/adapters/render"
	geojson "github.com/paulmach/go.geojson"
)

// TokenProvider reads the current access token.
type TokenProvider interface {
	Token() (string, bool)
}

// Frame is one painted feature collection, already encoded.
type Frame struct {
	Seq       int64
	Features  int
	Body      []byte
	PaintedAt time.Time
}

var emptyCollection = []byte(`{"type":"FeatureCollection","features":[]}`)

// Live implements render.Surface. Setup and frames are published as
// immutable values so readers never block the renderer.
type Live struct {
	tokens TokenProvider
	setup  atomic.Pointer[render.Setup]
	frame  atomic.Pointer[Frame]
	seq    atomic.Int64
	now    func() time.Time
}

// NewLive returns an unconfigured surface reading its token from tokens.
func NewLive(tokens TokenProvider) *Live {
	l := &Live{tokens: tokens, now: time.Now}
	l.frame.Store(&Frame{Body: emptyCollection})
	return l
}

// Configure stores the setup. A surface is configured once.
func (l *Live) Configure(setup render.Setup) error {
	s := setup
	if !l.setup.CompareAndSwap(nil, &s) {
		return ErrAlreadyConfigured
	}
	return nil
}

// SetData encodes fc and makes it the current frame.
func (l *Live) SetData(fc *geojson.FeatureCollection) error {
	if l.setup.Load() == nil {
		return ErrNotConfigured
	}
	body, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	l.frame.Store(&Frame{
		Seq:       l.seq.Add(1),
		Features:  len(fc.Features),
		Body:      body,
		PaintedAt: l.now(),
	})
	return nil
}

// Setup returns the stored setup.
func (l *Live) Setup() (render.Setup, bool) {
	s := l.setup.Load()
	if s == nil {
		return render.Setup{}, false
	}
	return *s, true
}

// Frame returns the current frame. Before the first paint it is an empty
// collection with Seq 0.
func (l *Live) Frame() Frame {
	return *l.frame.Load()
}

// Token returns the token the map page should use right now.
func (l *Live) Token() (string, bool) {
	return l.tokens.Token()
}
