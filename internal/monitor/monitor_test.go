package monitor

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Code-Savanna/netpulse/internal/models"
)

type fakeLister struct {
	devices []*models.Device
	err     error
}

func (f *fakeLister) ListDevices(ctx context.Context, tenantID string) ([]*models.Device, error) {
	return f.devices, f.err
}

type fakeProber struct {
	verdicts map[string]bool
}

func (f *fakeProber) ProbeAll(ctx context.Context, devices []*models.Device) map[string]bool {
	return f.verdicts
}

type fakeSink struct {
	received []*models.Device
}

func (f *fakeSink) HandleStatusChanges(ctx context.Context, tenantID string, changed []*models.Device) {
	f.received = append(f.received, changed...)
}

type fakeBroadcaster struct {
	broadcasts [][]*models.Device
}

func (f *fakeBroadcaster) BroadcastDeviceUpdate(devices []*models.Device) {
	f.broadcasts = append(f.broadcasts, devices)
}

func TestRunCycle_ChangedSetFlowsDownstream(t *testing.T) {
	d1 := device("d1", models.DeviceStatusOffline)
	d2 := device("d2", models.DeviceStatusOnline)

	lister := &fakeLister{devices: []*models.Device{d1, d2}}
	prober := &fakeProber{verdicts: map[string]bool{"d1": true, "d2": true}}
	writer := newFakeDeviceWriter()
	sink := &fakeSink{}
	hub := &fakeBroadcaster{}

	m := NewMonitor(lister, prober, NewTransitionDetector(writer, zap.NewNop()),
		sink, hub, "tenant-1", zap.NewNop())

	m.RunCycle(context.Background())

	// d1 offline→online 进入变更集；d2 状态未变只刷新 last_seen
	require.Len(t, sink.received, 1)
	assert.Equal(t, "d1", sink.received[0].DeviceID)
	assert.Equal(t, models.DeviceStatusOnline, sink.received[0].Status)

	require.Len(t, hub.broadcasts, 1)
	assert.Equal(t, "d1", hub.broadcasts[0][0].DeviceID)

	assert.True(t, writer.touched["d2"])
}

func TestRunCycle_NoChangesNoDownstreamCalls(t *testing.T) {
	d1 := device("d1", models.DeviceStatusOnline)

	lister := &fakeLister{devices: []*models.Device{d1}}
	prober := &fakeProber{verdicts: map[string]bool{"d1": true}}
	sink := &fakeSink{}
	hub := &fakeBroadcaster{}

	m := NewMonitor(lister, prober, NewTransitionDetector(newFakeDeviceWriter(), zap.NewNop()),
		sink, hub, "tenant-1", zap.NewNop())

	m.RunCycle(context.Background())

	assert.Empty(t, sink.received)
	assert.Empty(t, hub.broadcasts)
}

func TestRunCycle_ListFailureSkipsCycle(t *testing.T) {
	lister := &fakeLister{err: fmt.Errorf("db down")}
	sink := &fakeSink{}
	hub := &fakeBroadcaster{}

	m := NewMonitor(lister, &fakeProber{}, NewTransitionDetector(newFakeDeviceWriter(), zap.NewNop()),
		sink, hub, "tenant-1", zap.NewNop())

	// 不 panic，不下发任何变更
	m.RunCycle(context.Background())

	assert.Empty(t, sink.received)
	assert.Empty(t, hub.broadcasts)
}

func TestRunCycle_ConsecutiveOfflineCyclesProduceOneChange(t *testing.T) {
	d1 := device("d1", models.DeviceStatusOnline)

	lister := &fakeLister{devices: []*models.Device{d1}}
	prober := &fakeProber{verdicts: map[string]bool{"d1": false}}
	writer := newFakeDeviceWriter()
	sink := &fakeSink{}

	m := NewMonitor(lister, prober, NewTransitionDetector(writer, zap.NewNop()),
		sink, nil, "tenant-1", zap.NewNop())

	// 第一个周期：online→offline 转换
	m.RunCycle(context.Background())
	// 第二个周期：仍然 offline，无转换
	m.RunCycle(context.Background())

	assert.Len(t, sink.received, 1)
}
