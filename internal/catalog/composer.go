package catalog

import (
	"fmt"
	"path/filepath"

	"github.com/KevinKickass/OpenBeamCore/internal/curve"
	"github.com/KevinKickass/OpenBeamCore/internal/element"
	"github.com/KevinKickass/OpenBeamCore/internal/lattice"
	"github.com/KevinKickass/OpenBeamCore/internal/model"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
	"go.uber.org/zap"
)

// Templates are the unbound models and elements of one accelerator,
// ready to be attached to a peer.
type Templates struct {
	Name     string
	Energy   float64
	Devices  []types.DeviceDescriptor
	Models   map[string]model.Model
	Elements []element.Element
	Arrays   []types.ArrayDescriptor
	Lattice  *lattice.Memory
}

type Composer struct {
	logger *zap.Logger
}

func NewComposer(logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{logger: logger}
}

// Compose builds templates from a loaded descriptor. Serialized models
// are built last so they can refer to any other model.
func (c *Composer) Compose(loaded *Loaded) (*Templates, error) {
	desc := loaded.Descriptor
	c.logger.Info("Composing accelerator",
		zap.String("accelerator", desc.Accelerator.Name),
		zap.String("path", loaded.Path))

	t := &Templates{
		Name:    desc.Accelerator.Name,
		Energy:  desc.Accelerator.Energy,
		Devices: desc.Devices,
		Models:  make(map[string]model.Model),
		Arrays:  desc.Arrays,
		Lattice: lattice.NewMemory(desc.Accelerator.Energy),
	}

	var serialized []types.ModelDescriptor
	for _, md := range desc.Models {
		if _, dup := t.Models[md.Name]; dup {
			return nil, types.Errorf(types.KindConfig, "model %s is defined twice", md.Name)
		}
		if md.Type == types.ModelSerialized {
			serialized = append(serialized, md)
			t.Models[md.Name] = nil
			continue
		}
		m, err := c.buildModel(md, loaded.Dir)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", md.Name, err)
		}
		t.Models[md.Name] = m
	}
	for _, md := range serialized {
		m, err := c.buildSerialized(md, t.Models)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", md.Name, err)
		}
		t.Models[md.Name] = m
	}

	if err := c.composeElements(desc, t); err != nil {
		return nil, err
	}

	for _, le := range desc.Lattice {
		spec := lattice.ElementSpec{Name: le.Name, Family: le.Family, Length: le.Length, Attributes: map[string][]float64{}}
		if le.PolynomA != nil {
			spec.Attributes[lattice.PolynomA] = le.PolynomA
		}
		if le.PolynomB != nil {
			spec.Attributes[lattice.PolynomB] = le.PolynomB
		}
		if err := t.Lattice.Add(spec); err != nil {
			return nil, err
		}
	}

	c.logger.Info("Accelerator composed",
		zap.String("accelerator", t.Name),
		zap.Int("models", len(t.Models)),
		zap.Int("elements", len(t.Elements)),
		zap.Int("lattice_elements", len(desc.Lattice)))

	return t, nil
}

func (c *Composer) composeElements(desc *types.AcceleratorDescriptor, t *Templates) error {
	lookup := func(owner, name string) (model.Model, error) {
		m, ok := t.Models[name]
		if !ok || m == nil {
			return nil, types.Errorf(types.KindConfig, "%s refers to unknown model %s", owner, name)
		}
		return m, nil
	}

	for _, md := range desc.Magnets {
		m, err := lookup(md.Name, md.Model)
		if err != nil {
			return err
		}
		kind, err := element.ParseMagnetKind(md.Type)
		if err != nil {
			return fmt.Errorf("magnet %s: %w", md.Name, err)
		}
		t.Elements = append(t.Elements, element.NewMagnet(md.Name, kind, m, md.Attributes))
	}

	for _, cd := range desc.CombinedFunctionMagnets {
		m, err := lookup(cd.Name, cd.Model)
		if err != nil {
			return err
		}
		mps, err := multipoles(cd.Multipoles)
		if err != nil {
			return fmt.Errorf("combined function magnet %s: %w", cd.Name, err)
		}
		cfm, err := element.NewCombinedFunctionMagnet(cd.Name, m, mps, cd.Attributes)
		if err != nil {
			return err
		}
		t.Elements = append(t.Elements, cfm)
	}

	for _, sd := range desc.SerializedMagnets {
		m, err := lookup(sd.Name, sd.Model)
		if err != nil {
			return err
		}
		mps, err := multipoles(sd.Magnets)
		if err != nil {
			return fmt.Errorf("serialized magnets %s: %w", sd.Name, err)
		}
		s, err := element.NewSerializedMagnets(sd.Name, m, mps, sd.Attributes)
		if err != nil {
			return err
		}
		t.Elements = append(t.Elements, s)
	}

	for _, bd := range desc.BPMs {
		b, err := element.NewBPM(bd.Name, element.BPMConfig{X: bd.X, Y: bd.Y, Positions: bd.Positions}, bd.Attributes)
		if err != nil {
			return err
		}
		t.Elements = append(t.Elements, b)
	}
	return nil
}

func multipoles(mds []types.MultipoleDescriptor) ([]element.Multipole, error) {
	out := make([]element.Multipole, len(mds))
	for i, md := range mds {
		kind, err := element.ParseMagnetKind(md.Type)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", md.Name, err)
		}
		out[i] = element.Multipole{Name: md.Name, Kind: kind, Attributes: md.Attributes}
	}
	return out, nil
}

func (c *Composer) buildModel(md types.ModelDescriptor, dir string) (model.Model, error) {
	switch md.Type {
	case types.ModelIdentity:
		return model.NewIdentity(model.IdentityConfig{Unit: md.Unit, Physics: md.Physics, PowerConverter: md.PowerConverter})

	case types.ModelLinear, types.ModelSpline:
		cfg := model.LinearConfig{
			CalibrationFactor: orOne(md.CalibrationFactor),
			CalibrationOffset: md.CalibrationOffset,
			Crosstalk:         orOne(md.Crosstalk),
			Unit:              md.Unit,
			HardwareUnit:      md.HardwareUnit,
			PowerConverter:    md.PowerConverter,
		}
		if md.Curve != nil {
			cv, err := loadCurve(*md.Curve, dir)
			if err != nil {
				return nil, err
			}
			cfg.Curve = cv
		}
		if md.Type == types.ModelSpline {
			return model.NewSpline(model.SplineConfig{LinearConfig: cfg, Smoothing: md.Smoothing})
		}
		return model.NewLinear(cfg)

	case types.ModelLinearCF:
		cfg := model.LinearCFConfig{
			CalibrationFactors: md.CalibrationFactors,
			CalibrationOffsets: md.CalibrationOffsets,
			PseudoFactors:      md.PseudoFactors,
			PseudoOffsets:      md.PseudoOffsets,
			Units:              md.Units,
			HardwareUnits:      md.HardwareUnits,
			PowerConverters:    md.PowerConverters,
		}
		for i, cs := range md.Curves {
			cv, err := loadCurve(cs, dir)
			if err != nil {
				return nil, fmt.Errorf("curve %d: %w", i, err)
			}
			cfg.Curves = append(cfg.Curves, cv)
		}
		if md.Matrix != nil {
			mx, err := loadMatrix(*md.Matrix, dir)
			if err != nil {
				return nil, err
			}
			cfg.Matrix = mx
		}
		return model.NewLinearCF(cfg)

	case types.ModelIdentityCF:
		return model.NewIdentityCF(model.IdentityCFConfig{
			Units:           md.Units,
			Physics:         md.PhysicsChannels,
			PowerConverters: md.PowerConverters,
		})
	}
	return nil, types.Errorf(types.KindConfig, "unknown model type %q", md.Type)
}

func (c *Composer) buildSerialized(md types.ModelDescriptor, models map[string]model.Model) (model.Model, error) {
	subs := make([]model.Model, len(md.Models))
	for i, name := range md.Models {
		m, ok := models[name]
		if !ok || m == nil {
			return nil, types.Errorf(types.KindConfig, "unknown or serialized sub-model %s", name)
		}
		subs[i] = m
	}
	return model.NewSerialized(model.SerializedConfig{
		Models:          subs,
		PowerConverters: md.PowerConverters,
		HardwareUnit:    md.HardwareUnit,
	})
}

func orOne(v *float64) float64 {
	if v == nil {
		return 1
	}
	return *v
}

func resolve(file, dir string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(dir, file)
}

func loadCurve(src types.CurveSource, dir string) (*curve.Curve, error) {
	if src.File != "" {
		return curve.ReadCurveFile(resolve(src.File, dir))
	}
	return curve.New(src.Points)
}

func loadMatrix(src types.MatrixSource, dir string) (*curve.Matrix, error) {
	if src.File != "" {
		return curve.ReadMatrixFile(resolve(src.File, dir))
	}
	return curve.NewMatrix(src.Rows)
}
