package satellite

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"

	"github.com/auracast/auracast/internal/observation"
)

// ErrVariableNotFound is returned by a Dataset for an absent variable path.
var ErrVariableNotFound = errors.New("variable not found")

// Variable is a dense n-dimensional array stored in row-major order.
// Missing elements are NaN.
type Variable struct {
	Shape []int
	Data  []float64
}

// Size returns the number of elements described by Shape.
func (v Variable) Size() int {
	if len(v.Shape) == 0 {
		return len(v.Data)
	}
	n := 1
	for _, d := range v.Shape {
		n *= d
	}
	return n
}

// Dataset is a hierarchical gridded product addressed by slash-separated
// variable paths such as "/geolocation/latitude".
type Dataset interface {
	Variable(path string) (Variable, error)
	Attribute(name string) (string, bool)
}

// gridDocument is the on-disk layout of a JSON grid export.
type gridDocument struct {
	Attributes map[string]string       `json:"attributes"`
	Variables  map[string]gridVariable `json:"variables"`
}

type gridVariable struct {
	Shape []int      `json:"shape"`
	Data  []*float64 `json:"data"`
}

// Grid is a Dataset decoded from a JSON grid export.
type Grid struct {
	attributes map[string]string
	variables  map[string]Variable
}

// DecodeGrid reads a JSON grid export. A variable whose data length does not
// match its shape is a schema error.
func DecodeGrid(r io.Reader) (*Grid, error) {
	var doc gridDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode grid: %v", observation.ErrSchema, err)
	}

	g := &Grid{
		attributes: doc.Attributes,
		variables:  make(map[string]Variable, len(doc.Variables)),
	}
	for path, gv := range doc.Variables {
		data := make([]float64, len(gv.Data))
		for i, p := range gv.Data {
			if p == nil {
				data[i] = math.NaN()
				continue
			}
			data[i] = *p
		}
		v := Variable{Shape: gv.Shape, Data: data}
		if v.Size() != len(data) {
			return nil, fmt.Errorf("%w: variable %s has shape %v but %d values",
				observation.ErrSchema, path, gv.Shape, len(data))
		}
		g.variables[path] = v
	}
	return g, nil
}

// OpenGrid decodes the JSON grid export at path.
func OpenGrid(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, observation.MissingFile(path)
		}
		return nil, fmt.Errorf("open grid %s: %w", path, err)
	}
	defer f.Close()

	g, err := DecodeGrid(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// Variable implements Dataset.
func (g *Grid) Variable(path string) (Variable, error) {
	v, ok := g.variables[path]
	if !ok {
		return Variable{}, fmt.Errorf("%w: %s", ErrVariableNotFound, path)
	}
	return v, nil
}

// Attribute implements Dataset.
func (g *Grid) Attribute(name string) (string, bool) {
	v, ok := g.attributes[name]
	return v, ok
}
