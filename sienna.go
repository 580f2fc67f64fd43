package sienna

import (
	"fmt"
	"math"
	"strconv"

	"github.com/rs/xid"

	"github.com/pipelined/sienna/store"
)

// Element is the unit of transfer between every stage: a single 32-bit word
// carried on the pipeline bus. The controller never interprets it; engines
// that need arithmetic reinterpret the bits as float32.
type Element uint32

// FromFloat32 packs a float32 into a bus word.
func FromFloat32(f float32) Element {
	return Element(math.Float32bits(f))
}

// Float32 unpacks a bus word as float32.
func (e Element) Float32() float32 {
	return math.Float32frombits(uint32(e))
}

// Hex renders the word as 8 hex characters, big-endian. This is the line
// format of the pipeline's vector files.
func (e Element) Hex() string {
	return fmt.Sprintf("%08x", uint32(e))
}

// ParseHex parses an 8-character big-endian hex word.
func ParseHex(s string) (Element, error) {
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("parse element %q: %w", s, err)
	}
	return Element(v), nil
}

// NewUID returns new unique id value.
func NewUID() string {
	return xid.New().String()
}

// Stage is the uniform contract every compute engine satisfies, regardless
// of its internal algorithm. Start is a pulse: the engine transitions from
// idle to busy on the next Tick. Busy and Done are level signals; Done is
// asserted for the steps during which the controller may sample results or
// begin draining. Calling Start while Busy is undefined and is prevented by
// the controller's phase graph.
type Stage interface {
	ID() string
	Start()
	Busy() bool
	Done() bool
	Tick()
}

// Source is the pull-model data port of a streaming stage. Read is the
// read-enable pulse and is only legal while ReadValid reports true.
type Source interface {
	ReadValid() bool
	Read() Element
}

// Sink is the push-model data port of a streaming stage. Write is the
// write-enable pulse and is only legal while Ready reports true.
type Sink interface {
	Ready() bool
	Write(Element)
}

// Windowed is the addressed port of a stage that consumes a staging store
// by 2-D window address rather than in arrival order.
type Windowed interface {
	Bind(store.Reader[Element])
}
