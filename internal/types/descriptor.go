package types

// AcceleratorDescriptor is the accelerator file: channels, conversion
// models, elements and named arrays, plus the design lattice used by the
// simulator peer.
type AcceleratorDescriptor struct {
	Accelerator             AcceleratorInfo               `json:"accelerator"`
	Devices                 []DeviceDescriptor            `json:"devices,omitempty"`
	Models                  []ModelDescriptor             `json:"models,omitempty"`
	Magnets                 []MagnetDescriptor            `json:"magnets,omitempty"`
	CombinedFunctionMagnets []CombinedFunctionDescriptor  `json:"combined_function_magnets,omitempty"`
	SerializedMagnets       []SerializedMagnetsDescriptor `json:"serialized_magnets,omitempty"`
	BPMs                    []BPMDescriptor               `json:"bpms,omitempty"`
	Arrays                  []ArrayDescriptor             `json:"arrays,omitempty"`
	Lattice                 []LatticeElementDescriptor    `json:"lattice,omitempty"`
}

type AcceleratorInfo struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Energy      float64 `json:"energy"` // eV
}

// Device protocols.
const (
	ProtocolMemory    = "memory"
	ProtocolModbusTCP = "modbus_tcp"
)

// DeviceDescriptor is one control-system channel.
type DeviceDescriptor struct {
	Name     string         `json:"name"`
	Protocol string         `json:"protocol"`
	Unit     string         `json:"unit,omitempty"`
	Min      *float64       `json:"min,omitempty"`
	Max      *float64       `json:"max,omitempty"`
	Size     int            `json:"size,omitempty"` // >1: vector readback, e.g. a BPM [x, y]
	Modbus   *ModbusChannel `json:"modbus,omitempty"`
}

// ModbusChannel places a channel on a Modbus TCP server: the setpoint in
// a holding register and the readback in an input register.
type ModbusChannel struct {
	Host        string   `json:"host"`
	Port        int      `json:"port"`
	UnitID      int      `json:"unit_id"`
	Setpoint    uint16   `json:"setpoint"`
	Readback    *uint16  `json:"readback,omitempty"`
	DataType    DataType `json:"data_type"`
	ScaleFactor float64  `json:"scale_factor,omitempty"`
	ReadOnly    bool     `json:"read_only,omitempty"`
}

type DataType string

const (
	DataTypeInt16  DataType = "int16"
	DataTypeUint16 DataType = "uint16"
)

// Model types.
const (
	ModelIdentity   = "identity"
	ModelLinear     = "linear"
	ModelSpline     = "spline"
	ModelLinearCF   = "linear_cf"
	ModelIdentityCF = "identity_cf"
	ModelSerialized = "serialized"
)

// ModelDescriptor configures one conversion model. Fields apply by Type;
// the plural fields are per function of combined-function models.
type ModelDescriptor struct {
	Name string `json:"name"`
	Type string `json:"type"`

	Unit              string       `json:"unit,omitempty"`
	HardwareUnit      string       `json:"hardware_unit,omitempty"`
	Physics           string       `json:"physics,omitempty"`
	PowerConverter    string       `json:"powerconverter,omitempty"`
	Curve             *CurveSource `json:"curve,omitempty"`
	CalibrationFactor *float64     `json:"calibration_factor,omitempty"`
	CalibrationOffset float64      `json:"calibration_offset,omitempty"`
	Crosstalk         *float64     `json:"crosstalk,omitempty"`
	Smoothing         float64      `json:"smoothing,omitempty"`

	Units              []string      `json:"units,omitempty"`
	HardwareUnits      []string      `json:"hardware_units,omitempty"`
	PhysicsChannels    []string      `json:"physics_channels,omitempty"`
	PowerConverters    []string      `json:"powerconverters,omitempty"`
	Curves             []CurveSource `json:"curves,omitempty"`
	CalibrationFactors []float64     `json:"calibration_factors,omitempty"`
	CalibrationOffsets []float64     `json:"calibration_offsets,omitempty"`
	PseudoFactors      []float64     `json:"pseudo_factors,omitempty"`
	PseudoOffsets      []float64     `json:"pseudo_offsets,omitempty"`
	Matrix             *MatrixSource `json:"matrix,omitempty"`

	// Serialized: names of single-function models, one per magnet.
	Models []string `json:"models,omitempty"`
}

// CurveSource is an inline [[x, y], ...] table or a two-column CSV file
// relative to the descriptor.
type CurveSource struct {
	File   string      `json:"file,omitempty"`
	Points [][]float64 `json:"points,omitempty"`
}

type MatrixSource struct {
	File string      `json:"file,omitempty"`
	Rows [][]float64 `json:"rows,omitempty"`
}

type MagnetDescriptor struct {
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Model      string            `json:"model"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// MultipoleDescriptor is one function of a combined-function magnet or
// one magnet of a series.
type MultipoleDescriptor struct {
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type CombinedFunctionDescriptor struct {
	Name       string                `json:"name"`
	Model      string                `json:"model"`
	Multipoles []MultipoleDescriptor `json:"multipoles"`
	Attributes map[string]string     `json:"attributes,omitempty"`
}

type SerializedMagnetsDescriptor struct {
	Name       string                `json:"name"`
	Model      string                `json:"model"`
	Magnets    []MultipoleDescriptor `json:"magnets"`
	Attributes map[string]string     `json:"attributes,omitempty"`
}

type BPMDescriptor struct {
	Name       string            `json:"name"`
	X          string            `json:"x,omitempty"`
	Y          string            `json:"y,omitempty"`
	Positions  string            `json:"positions,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type ArrayDescriptor struct {
	Name     string   `json:"name"`
	Elements []string `json:"elements"`
}

// LatticeElementDescriptor is one slice of the design lattice.
type LatticeElementDescriptor struct {
	Name     string    `json:"name"`
	Family   string    `json:"family,omitempty"`
	Length   float64   `json:"length,omitempty"`
	PolynomA []float64 `json:"polynom_a,omitempty"`
	PolynomB []float64 `json:"polynom_b,omitempty"`
}
