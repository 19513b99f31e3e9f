package transport

// Kind tags the payload of a Message.
type Kind string

const (
	KindIdentify     Kind = "identify"
	KindSchema       Kind = "schema"
	KindVisualInit   Kind = "visual_init"
	KindVisualUpdate Kind = "visual_update"
	KindSample       Kind = "sample"
	KindPrediction   Kind = "prediction"
	KindAck          Kind = "ack"
	KindClose        Kind = "close"
	KindError        Kind = "error"
)

const (
	FieldInput       = "input"
	FieldGroundTruth = "ground_truth"
	FieldPrediction  = "prediction"
)

// Identity is the first message a worker sends, right after connecting.
type Identity struct {
	InstanceID    int    `json:"instance_id"`
	InstanceCount int    `json:"instance_count"`
	Environment   string `json:"environment"`
}

// Layout tells how the schema fields were produced. It travels with the
// schema.
type Layout struct {
	Mode       string `json:"mode"`
	Encoding   string `json:"encoding"`
	OutputFill string `json:"output_fill"`
}

// Field is a named array. Schema messages carry fields without data.
type Field struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data,omitempty"`
}

func (f Field) Len() int {
	if len(f.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range f.Shape {
		n *= d
	}
	return n
}

// Mesh is a visual object. Init messages carry all positions and the
// triangles; update messages carry only the moved vertices in Indices order.
type Mesh struct {
	InstanceID int       `json:"instance_id"`
	ObjectID   int       `json:"object_id"`
	Color      string    `json:"color,omitempty"`
	Positions  []float64 `json:"positions"`
	Indices    []int     `json:"indices,omitempty"`
	Triangles  [][3]int  `json:"triangles,omitempty"`
}

type Message struct {
	Kind     Kind      `json:"kind"`
	Step     int       `json:"step,omitempty"`
	Identity *Identity `json:"identity,omitempty"`
	Layout   *Layout   `json:"layout,omitempty"`
	Fields   []Field   `json:"fields,omitempty"`
	Meshes   []Mesh    `json:"meshes,omitempty"`
	Reason   string    `json:"reason,omitempty"`
}

// Field returns the field called name.
func (m Message) Field(name string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
