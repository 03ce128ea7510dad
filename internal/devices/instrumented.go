package devices

import (
	"context"
	"time"

	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/observability"
)

// Instrumented counts and times every operation of the wrapped channel.
type Instrumented struct {
	device.Access
	backend string
	metrics *observability.Metrics
}

func instrument(d device.Access, backend string, metrics *observability.Metrics) device.Access {
	in := &Instrumented{Access: d, backend: backend, metrics: metrics}
	if v, ok := d.(device.VectorAccess); ok {
		return &instrumentedVector{Instrumented: in, vector: v}
	}
	return in
}

// Unwrap returns the backend channel.
func (i *Instrumented) Unwrap() device.Access { return i.Access }

func (i *Instrumented) Get(ctx context.Context) (float64, error) {
	start := time.Now()
	v, err := i.Access.Get(ctx)
	i.metrics.DeviceOp(i.backend, "get", start, err)
	return v, err
}

func (i *Instrumented) Set(ctx context.Context, value float64) error {
	start := time.Now()
	err := i.Access.Set(ctx, value)
	i.metrics.DeviceOp(i.backend, "set", start, err)
	return err
}

func (i *Instrumented) SetAndWait(ctx context.Context, value float64) error {
	start := time.Now()
	err := i.Access.SetAndWait(ctx, value)
	i.metrics.DeviceOp(i.backend, "set_and_wait", start, err)
	return err
}

func (i *Instrumented) Readback(ctx context.Context) (device.Value, error) {
	start := time.Now()
	v, err := i.Access.Readback(ctx)
	i.metrics.DeviceOp(i.backend, "readback", start, err)
	return v, err
}

type instrumentedVector struct {
	*Instrumented
	vector device.VectorAccess
}

func (i *instrumentedVector) ReadVector(ctx context.Context) ([]float64, error) {
	start := time.Now()
	v, err := i.vector.ReadVector(ctx)
	i.metrics.DeviceOp(i.backend, "read_vector", start, err)
	return v, err
}

func unwrap(d device.Access) device.Access {
	for {
		w, ok := d.(interface{ Unwrap() device.Access })
		if !ok {
			return d
		}
		d = w.Unwrap()
	}
}
