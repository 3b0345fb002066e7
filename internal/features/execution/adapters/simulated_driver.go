package adapters

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"parcel-sorter/internal/core/logger"
	"parcel-sorter/internal/features/execution/domain"

	"go.uber.org/zap"
)

// ErrDiverterFault is returned for diverters with an injected failure.
var ErrDiverterFault = errors.New("diverter fault")

// SimulatedDriver stands in for a vendor driver. It keeps the 2-bit position
// register of every diverter it has commanded.
type SimulatedDriver struct {
	latency time.Duration

	mu        sync.Mutex
	failing   map[string]struct{}
	registers map[string]byte
	commands  int
}

// NewSimulatedDriver creates a driver that takes latency per command and
// fails every command sent to a diverter in failing.
func NewSimulatedDriver(latency time.Duration, failing []string) *SimulatedDriver {
	d := &SimulatedDriver{
		latency:   latency,
		failing:   make(map[string]struct{}, len(failing)),
		registers: make(map[string]byte),
	}
	for _, id := range failing {
		d.failing[id] = struct{}{}
	}
	return d
}

// FailDiverter injects a fault on id.
func (d *SimulatedDriver) FailDiverter(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failing[id] = struct{}{}
}

// RepairDiverter clears an injected fault.
func (d *SimulatedDriver) RepairDiverter(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.failing, id)
}

// SetAngle encodes angle and latches it after the configured latency.
func (d *SimulatedDriver) SetAngle(ctx context.Context, diverterID string, angle domain.Angle) error {
	code, err := angle.Encode()
	if err != nil {
		return err
	}

	if err := d.wait(ctx); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.commands++
	if _, ok := d.failing[diverterID]; ok {
		return fmt.Errorf("%w: %s did not confirm %d°", ErrDiverterFault, diverterID, int(angle))
	}
	d.registers[diverterID] = code

	logger.Named("driver.sim").Debug("Angle set",
		zap.String("diverter_id", diverterID),
		zap.Int("angle", int(angle)),
		zap.String("code", fmt.Sprintf("%02b", code)),
	)
	return nil
}

// Reset latches the straight position.
func (d *SimulatedDriver) Reset(ctx context.Context, diverterID string) error {
	return d.SetAngle(ctx, diverterID, domain.AngleStraight)
}

// Position returns the last latched angle of a diverter.
func (d *SimulatedDriver) Position(diverterID string) (domain.Angle, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	code, ok := d.registers[diverterID]
	if !ok {
		return 0, false
	}
	return domain.DecodeAngle(code), true
}

// Commands returns the number of commands received, including failed ones.
func (d *SimulatedDriver) Commands() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.commands
}

func (d *SimulatedDriver) wait(ctx context.Context) error {
	if d.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
