package delorean

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/AndrewLester/delorean/internal/ntp"
)

const (
	// Fixed protocol-plausibility constants. Both keep the reported time
	// five seconds short of the value it is derived from.
	skimMargin   float64 = 5
	referenceLag float64 = 5

	week           float64 = 7 * 24 * 3600
	defaultHorizon         = 12 * week

	reseedQuiet = 2 * time.Second
)

// Policy change kinds accepted by Engine.Apply.
const (
	PolicySkimThreshold = "skim-threshold"
	PolicySkimStep      = "skim-step"
	PolicyStep          = "step"
	PolicyDate          = "date"
	PolicyRandom        = "random"
	PolicyHorizon       = "horizon"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return ntp.SystemTime() }

// PolicyState decides which time gets reported. Every field is zero (no
// manipulation) until a setter touches it, apart from Horizon.
type PolicyState struct {
	BaseOffset    float64 /* jump currently in effect (s) */
	SkimThreshold float64 /* creep window start (s) */
	SkimStep      float64 /* creep target minus threshold (s) */
	ForcedStep    float64 /* operator supplied jump (s) */
	ForcedDate    float64 /* absolute target, unix seconds */
	Random        bool    /* reseed BaseOffset per quiet client */
	Horizon       float64 /* date search start (s) */

	skimTarget    float64
	skimTargetSet bool
}

type SeenClient struct {
	Addr     string
	LastSeen time.Time
}

type Engine struct {
	lock sync.Mutex

	policy PolicyState
	seen   map[string]time.Time

	clock      Clock
	rand       *rand.Rand
	epochDelta float64
}

type EngineOption func(*Engine)

func WithClock(clock Clock) EngineOption {
	return func(e *Engine) { e.clock = clock }
}

func WithRand(r *rand.Rand) EngineOption {
	return func(e *Engine) { e.rand = r }
}

func NewEngine(opts ...EngineOption) *Engine {
	engine := &Engine{
		policy:     PolicyState{Horizon: defaultHorizon},
		seen:       map[string]time.Time{},
		clock:      systemClock{},
		epochDelta: ntp.EpochDelta(),
	}
	for _, opt := range opts {
		opt(engine)
	}
	if engine.rand == nil {
		engine.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return engine
}

func (e *Engine) SetSkimThreshold(text string) error {
	threshold, err := ParseDuration(text)
	if err != nil {
		return err
	}

	e.lock.Lock()
	defer e.lock.Unlock()

	e.policy.SkimThreshold = threshold
	if e.policy.skimTargetSet {
		e.policy.SkimStep = e.policy.skimTarget - threshold
	}
	return nil
}

// SetSkimStep stores the creep target relative to the current threshold.
func (e *Engine) SetSkimStep(text string) error {
	target, err := ParseDuration(text)
	if err != nil {
		return err
	}

	e.lock.Lock()
	defer e.lock.Unlock()

	e.policy.skimTarget = target
	e.policy.skimTargetSet = true
	e.policy.SkimStep = target - e.policy.SkimThreshold
	return nil
}

func (e *Engine) ForceStep(text string) error {
	step, err := ParseDuration(text)
	if err != nil {
		return err
	}

	e.lock.Lock()
	defer e.lock.Unlock()

	e.policy.ForcedStep = step
	return nil
}

func (e *Engine) ForceDate(text string) error {
	date, err := ParseDate(text)
	if err != nil {
		return err
	}

	e.lock.Lock()
	defer e.lock.Unlock()

	e.policy.ForcedDate = date
	return nil
}

func (e *Engine) EnableRandom() {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.policy.Random = true
}

// SetHorizon moves the start of the date search. It is rounded up to whole
// weeks so the weekday keeps matching.
func (e *Engine) SetHorizon(text string) error {
	horizon, err := ParseDuration(text)
	if err != nil {
		return err
	}
	if horizon < 0 {
		return fmt.Errorf("%w: negative horizon %q", ErrInvalidDuration, text)
	}

	e.lock.Lock()
	defer e.lock.Unlock()

	e.policy.Horizon = math.Ceil(horizon/week) * week
	return nil
}

// Apply routes a named policy change to its setter.
func (e *Engine) Apply(kind, value string) error {
	switch kind {
	case PolicySkimThreshold:
		return e.SetSkimThreshold(value)
	case PolicySkimStep:
		return e.SetSkimStep(value)
	case PolicyStep:
		return e.ForceStep(value)
	case PolicyDate:
		return e.ForceDate(value)
	case PolicyRandom:
		e.EnableRandom()
		return nil
	case PolicyHorizon:
		return e.SetHorizon(value)
	default:
		return fmt.Errorf("unknown policy %q", kind)
	}
}

func (e *Engine) SelectOffset() {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.selectOffset()
}

func (e *Engine) selectOffset() {
	now := seconds(e.clock.Now())

	var future float64
	switch {
	case e.policy.Random:
		minTime := math.Floor(now)
		maxTime := ntp.MaxSeconds - e.epochDelta
		if maxTime <= minTime {
			logger.Warn().Float64("max", maxTime).Msg("random window is empty, not moving the clock")
			future = minTime
		} else {
			future = minTime + float64(e.rand.Int63n(int64(maxTime-minTime)+1))
		}
	case e.policy.ForcedStep != 0:
		future = now + e.policy.ForcedStep
	default:
		future = alignedDate(now, e.policy.Horizon)
	}

	e.policy.BaseOffset = future - now
	info().Float64("offset", e.policy.BaseOffset).Time("target", ntp.SecondsToTime(future)).Msg("Selected offset")
}

// alignedDate returns the first date at least horizon (plus one week) past
// now whose UTC weekday and day of month both match now's.
func alignedDate(now float64, horizon float64) float64 {
	today := ntp.SecondsToTime(now).UTC()

	future := now + horizon
	for {
		future += week
		candidate := ntp.SecondsToTime(future).UTC()
		if candidate.Weekday() == today.Weekday() && candidate.Day() == today.Day() {
			return future
		}
	}
}

// ComputeTimestamp returns the unix-epoch time to report to a client whose
// own transmit time (unix epoch) is clientTx.
func (e *Engine) ComputeTimestamp(clientTx float64) float64 {
	e.lock.Lock()
	defer e.lock.Unlock()

	now := seconds(e.clock.Now())

	skimTime := clientTx + e.policy.SkimStep - skimMargin
	futureTime := now + e.policy.BaseOffset
	if e.policy.SkimStep == 0 {
		skimTime = ntp.MaxSeconds
	}

	if e.policy.ForcedDate == 0 && skimTime > futureTime {
		return futureTime
	} else if e.policy.ForcedDate != 0 && skimTime > e.policy.ForcedDate {
		return e.policy.ForcedDate
	}
	return skimTime
}

// ReseedIfStale reselects the offset in random mode when addr has not been
// seen for more than two seconds. The seen time is always refreshed.
func (e *Engine) ReseedIfStale(addr string, now time.Time) bool {
	e.lock.Lock()
	defer e.lock.Unlock()

	reseeded := false
	last, ok := e.seen[addr]
	if (!ok || now.Sub(last) > reseedQuiet) && e.policy.Random {
		e.selectOffset()
		reseeded = true
	}
	e.seen[addr] = now
	return reseeded
}

func (e *Engine) Skimming() bool {
	e.lock.Lock()
	defer e.lock.Unlock()

	return e.policy.SkimStep != 0
}

func (e *Engine) Policy() PolicyState {
	e.lock.Lock()
	defer e.lock.Unlock()

	return e.policy
}

func (e *Engine) Seen() []SeenClient {
	e.lock.Lock()
	defer e.lock.Unlock()

	clients := make([]SeenClient, 0, len(e.seen))
	for addr, lastSeen := range e.seen {
		clients = append(clients, SeenClient{Addr: addr, LastSeen: lastSeen})
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].Addr < clients[j].Addr })
	return clients
}

func (e *Engine) EpochDelta() float64 {
	return e.epochDelta
}

func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

func seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
