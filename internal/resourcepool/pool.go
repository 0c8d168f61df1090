// Package resourcepool bounds concurrent use of expensive resources
// (browser tabs, WASM instances, PDF slots) and tracks coarse memory
// pressure, grounded on the buffered-channel checkout/release technique of
// engine/internal/resources.Manager.Acquire/Release, split
// into one pool per resource kind and given a uniform Guard: a type that
// bundles the checkout, memory tracking, and metric decrement so cleanup
// is guaranteed on every exit path.
package resourcepool

import (
	"context"
	"sync"
	"sync/atomic"

	"riptide/internal/riptideerr"
)

// Config sizes the three pools and the memory ceiling.
type Config struct {
	BrowserTabs int
	WasmInstances int
	PDFSlots int
	MemoryCeilingMB int64
	WasmMaxUseCount int
	WasmMaxFailureCount int
}

// DefaultConfig returns conservative pool sizes.
func DefaultConfig() Config {
	return Config{
		BrowserTabs: 4,
		WasmInstances: 8,
		PDFSlots: 4,
		MemoryCeilingMB: 2048,
		WasmMaxUseCount: 500,
		WasmMaxFailureCount: 5,
	}
}

// slotPool is a bounded, cancellable counting semaphore with a gauge.
type slotPool struct {
	slots chan struct{}
	inUse atomic.Int32
}

func newSlotPool(n int) *slotPool {
	if n <= 0 {
		n = 1
	}
	return &slotPool{slots: make(chan struct{}, n)}
}

func (p *slotPool) acquire(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
		p.inUse.Add(1)
		return nil
	case <-ctx.Done():
		return riptideerr.Wrap(riptideerr.CodeTimeout, "resource checkout cancelled", ctx.Err())
	}
}

func (p *slotPool) release() {
	select {
	case <-p.slots:
		p.inUse.Add(-1)
	default:
	}
}

func (p *slotPool) inFlight() int { return int(p.inUse.Load()) }

// WasmInstance is an exclusive handle to one pre-instantiated extractor
// module. A fresh instance is synthesized on demand; real wiring would
// attach a compiled module reference here.
type WasmInstance struct {
	ID int
	useCount int
	failureCount int
}

// MarkUsed records one extraction attempt against this instance.
func (w *WasmInstance) MarkUsed(failed bool) {
	w.useCount++
	if failed {
		w.failureCount++
	}
}

// Retire reports whether this instance has exceeded its use or failure
// budget and should not be returned to the pool.
func (w *WasmInstance) Retire(cfg Config) bool {
	return w.useCount > cfg.WasmMaxUseCount || w.failureCount > cfg.WasmMaxFailureCount
}

// Manager owns the three bounded pools and the memory account for one
// pipeline instance.
type Manager struct {
	cfg Config

	tabs *slotPool
	pdf *slotPool

	wasmMu sync.Mutex
	wasmFree []*WasmInstance
	wasmSlots *slotPool
	nextWasm int

	allocatedMB atomic.Int64
}

// New constructs a Manager and pre-provisions the WASM instance pool.
func New(cfg Config) *Manager {
	if cfg.BrowserTabs <= 0 {
		cfg = DefaultConfig()
	}
	m := &Manager{
		cfg: cfg,
		tabs: newSlotPool(cfg.BrowserTabs),
		pdf: newSlotPool(cfg.PDFSlots),
		wasmSlots: newSlotPool(cfg.WasmInstances),
	}
	for i := 0; i < cfg.WasmInstances; i++ {
		m.wasmFree = append(m.wasmFree, &WasmInstance{ID: i})
		m.nextWasm = i + 1
	}
	return m
}

// Guard bundles a checkout with its release so cleanup runs exactly once
// regardless of which exit path a caller takes. Guards never perform
// blocking I/O on Release; any follow-up cleanup must be dispatched
// separately and be idempotent.
type Guard struct {
	release func()
	once sync.Once
}

// Release returns the underlying resource. Safe to call more than once;
// only the first call has effect.
func (g *Guard) Release() {
	if g == nil {
		return
	}
	g.once.Do(func() {
		if g.release != nil {
			g.release()
		}
	})
}

// AcquireBrowserTab blocks until a tab is available, ctx is cancelled, or
// the checkout times out via ctx's deadline.
func (m *Manager) AcquireBrowserTab(ctx context.Context) (*Guard, error) {
	if err := m.tabs.acquire(ctx); err != nil {
		return nil, err
	}
	return &Guard{release: m.tabs.release}, nil
}

// ActiveHeadless reports the number of browser tabs currently checked out.
func (m *Manager) ActiveHeadless() int { return m.tabs.inFlight() }

// AcquirePDFSlot blocks on the PDF counting semaphore.
func (m *Manager) AcquirePDFSlot(ctx context.Context) (*Guard, error) {
	if err := m.pdf.acquire(ctx); err != nil {
		return nil, err
	}
	return &Guard{release: m.pdf.release}, nil
}

// AcquireWasmInstance checks out an exclusive WASM instance handle. The
// caller must call MarkUsed(failed) on the returned instance before releasing
// the guard so retirement accounting stays correct.
func (m *Manager) AcquireWasmInstance(ctx context.Context) (*WasmInstance, *Guard, error) {
	if err := m.wasmSlots.acquire(ctx); err != nil {
		return nil, nil, err
	}
	m.wasmMu.Lock()
	var inst *WasmInstance
	if n := len(m.wasmFree); n > 0 {
		inst = m.wasmFree[n-1]
		m.wasmFree = m.wasmFree[:n-1]
	} else {
		inst = &WasmInstance{ID: m.nextWasm}
		m.nextWasm++
	}
	m.wasmMu.Unlock()

	released := false
	g := &Guard{release: func() {
		if released {
			return
		}
		released = true
		m.wasmSlots.release()
		if inst.Retire(m.cfg) {
			return
		}
		m.wasmMu.Lock()
		m.wasmFree = append(m.wasmFree, inst)
		m.wasmMu.Unlock()
	}}
	return inst, g, nil
}

// TrackAllocation records mb megabytes as allocated against the memory
// account.
func (m *Manager) TrackAllocation(mb int64) {
	m.allocatedMB.Add(mb)
}

// TrackDeallocation releases mb megabytes previously tracked.
func (m *Manager) TrackDeallocation(mb int64) {
	m.allocatedMB.Add(-mb)
}

// UnderPressure reports whether tracked allocations have exceeded the
// configured memory ceiling; C11 consults this to refuse new admissions.
func (m *Manager) UnderPressure() bool {
	return m.allocatedMB.Load() > m.cfg.MemoryCeilingMB
}

// Stats is a point-in-time view of pool occupancy for telemetry export.
type Stats struct {
	ActiveHeadless int
	WasmInFlight int
	WasmFree int
	PDFInFlight int
	AllocatedMB int64
	UnderPressure bool
}

// AvailableConcurrency returns the largest number of URLs the pipeline
// should admit at once given current headroom: the smaller of the
// browser-tab pool and the WASM pool's free capacity, since every
// in-flight URL may need either resource before it finishes. C11 uses
// this to cap ExecuteBatch's worker count alongside its own configured
// concurrency ceiling.
func (m *Manager) AvailableConcurrency() int {
	tabRoom := cap(m.tabs.slots) - m.tabs.inFlight()
	wasmRoom := cap(m.wasmSlots.slots) - m.wasmSlots.inFlight()
	if tabRoom < wasmRoom {
		return tabRoom
	}
	return wasmRoom
}

// Snapshot returns current pool occupancy and memory pressure.
func (m *Manager) Snapshot() Stats {
	m.wasmMu.Lock()
	free := len(m.wasmFree)
	m.wasmMu.Unlock()
	return Stats{
		ActiveHeadless: m.tabs.inFlight(),
		WasmInFlight: m.wasmSlots.inFlight(),
		WasmFree: free,
		PDFInFlight: m.pdf.inFlight(),
		AllocatedMB: m.allocatedMB.Load(),
		UnderPressure: m.UnderPressure(),
	}
}
