package workflow

import (
	"fmt"
)

// GuardFunc inspects a request and returns nil to allow it, or an error naming what is missing
type GuardFunc func(in Input) error

// GuardBuilder builds an immutable rules table
type GuardBuilder interface {
	// Configure returns a state configuration for the given state
	Configure(state State) StateConfiguration

	// Authorize restricts a trigger to actors holding at least one of roles.
	// Triggers never authorized are open to every actor.
	Authorize(trigger Trigger, roles ...Role) GuardBuilder

	// Build freezes the configured rules
	Build() Guard
}

// StateConfiguration configures transitions for a specific state
type StateConfiguration interface {
	// Permit allows a trigger to transition to the target state
	Permit(trigger Trigger, toState State) StateConfiguration

	// PermitIf allows a trigger to transition to the target state if the guard passes
	PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration

	// PermitReentryIf allows a trigger that keeps the current state but still writes
	PermitReentryIf(trigger Trigger, guard GuardFunc) StateConfiguration

	// Ignore makes the trigger a successful no-op while in this state
	Ignore(trigger Trigger) StateConfiguration
}

type transition struct {
	toState State
	guard   GuardFunc
}

type stateConfig struct {
	fromState   State
	order       []Trigger
	transitions map[Trigger][]transition
	ignored     map[Trigger]bool
}

type guardBuilder struct {
	configurations map[State]*stateConfig
	authorized     map[Trigger][]Role
}

type rulesGuard struct {
	configurations map[State]*stateConfig
	authorized     map[Trigger][]Role
	targets        map[Trigger]State
}

// NewBuilder creates a new guard builder
func NewBuilder() GuardBuilder {
	return &guardBuilder{
		configurations: make(map[State]*stateConfig),
		authorized:     make(map[Trigger][]Role),
	}
}

// Configure returns a state configuration for the given state
func (b *guardBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}

	config, exists := b.configurations[state]
	if !exists {
		config = &stateConfig{
			fromState:   state,
			transitions: make(map[Trigger][]transition),
			ignored:     make(map[Trigger]bool),
		}
		b.configurations[state] = config
	}

	return config
}

// Authorize restricts a trigger to the given roles
func (b *guardBuilder) Authorize(trigger Trigger, roles ...Role) GuardBuilder {
	if !trigger.IsValid() {
		panic(fmt.Sprintf("invalid trigger: %s", trigger))
	}
	b.authorized[trigger] = append(b.authorized[trigger], roles...)
	return b
}

// Build copies the configuration so later builder calls cannot change the guard
func (b *guardBuilder) Build() Guard {
	g := &rulesGuard{
		configurations: make(map[State]*stateConfig, len(b.configurations)),
		authorized:     make(map[Trigger][]Role, len(b.authorized)),
		targets:        make(map[Trigger]State),
	}

	for state, config := range b.configurations {
		copied := &stateConfig{
			fromState:   state,
			order:       append([]Trigger{}, config.order...),
			transitions: make(map[Trigger][]transition, len(config.transitions)),
			ignored:     make(map[Trigger]bool, len(config.ignored)),
		}
		for trigger, ts := range config.transitions {
			copied.transitions[trigger] = append([]transition{}, ts...)
		}
		for trigger := range config.ignored {
			copied.ignored[trigger] = true
		}
		g.configurations[state] = copied
	}

	for trigger, roles := range b.authorized {
		g.authorized[trigger] = append([]Role{}, roles...)
	}

	// Nominal target per trigger, used to fill InvalidTransition.To.
	// Iterate states in table order so the result is stable.
	for _, state := range AllStates() {
		config, ok := g.configurations[state]
		if !ok {
			continue
		}
		for _, trigger := range config.order {
			if _, seen := g.targets[trigger]; seen {
				continue
			}
			if ts := config.transitions[trigger]; len(ts) > 0 {
				g.targets[trigger] = ts[0].toState
			}
		}
	}

	return g
}

// Permit allows a trigger to transition to the target state
func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	return c.PermitIf(trigger, toState, nil)
}

// PermitIf allows a trigger to transition to the target state if the guard passes
func (c *stateConfig) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	if !trigger.IsValid() {
		panic(fmt.Sprintf("invalid trigger: %s", trigger))
	}

	c.remember(trigger)
	c.transitions[trigger] = append(c.transitions[trigger], transition{
		toState: toState,
		guard:   guard,
	})

	return c
}

// PermitReentryIf allows a same-state transition that is still persisted
func (c *stateConfig) PermitReentryIf(trigger Trigger, guard GuardFunc) StateConfiguration {
	return c.PermitIf(trigger, c.fromState, guard)
}

// Ignore makes the trigger a successful no-op while in this state
func (c *stateConfig) Ignore(trigger Trigger) StateConfiguration {
	if !trigger.IsValid() {
		panic(fmt.Sprintf("invalid trigger: %s", trigger))
	}
	c.remember(trigger)
	c.ignored[trigger] = true
	return c
}

func (c *stateConfig) remember(trigger Trigger) {
	if _, ok := c.transitions[trigger]; ok || c.ignored[trigger] {
		return
	}
	c.order = append(c.order, trigger)
}

// Evaluate checks the request against the rules table
func (g *rulesGuard) Evaluate(in Input) (Outcome, error) {
	if !in.From.IsValid() {
		return Outcome{}, fmt.Errorf("%w: %s", ErrInvalidState, in.From)
	}

	if in.From.IsTerminal() {
		return Outcome{}, &TransitionError{
			From:    in.From,
			To:      g.targets[in.Trigger],
			Trigger: in.Trigger,
			Reason:  fmt.Sprintf("%s is a terminal state", in.From),
		}
	}

	config, exists := g.configurations[in.From]
	if !exists {
		return Outcome{}, &TransitionError{
			From:    in.From,
			To:      g.targets[in.Trigger],
			Trigger: in.Trigger,
			Reason:  "no transitions configured",
		}
	}

	transitions := config.transitions[in.Trigger]
	ignored := config.ignored[in.Trigger]
	if len(transitions) == 0 && !ignored {
		return Outcome{}, &TransitionError{
			From:    in.From,
			To:      g.targets[in.Trigger],
			Trigger: in.Trigger,
			Reason:  fmt.Sprintf("%s is not allowed from %s", in.Trigger, in.From),
		}
	}

	if roles, restricted := g.authorized[in.Trigger]; restricted && !in.Roles.HasAny(roles...) {
		return Outcome{}, &UnauthorizedError{Trigger: in.Trigger, Roles: in.Roles}
	}

	if ignored {
		return Outcome{From: in.From, To: in.From, Trigger: in.Trigger, NoOp: true}, nil
	}

	// Try each transition in order until one passes
	var firstErr error
	for _, t := range transitions {
		if t.guard == nil {
			return Outcome{From: in.From, To: t.toState, Trigger: in.Trigger}, nil
		}
		err := t.guard(in)
		if err == nil {
			return Outcome{From: in.From, To: t.toState, Trigger: in.Trigger}, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}

	return Outcome{}, &TransitionError{
		From:    in.From,
		To:      transitions[0].toState,
		Trigger: in.Trigger,
		Reason:  firstErr.Error(),
		Cause:   firstErr,
	}
}

// CanFire reports whether Evaluate would succeed
func (g *rulesGuard) CanFire(in Input) bool {
	_, err := g.Evaluate(in)
	return err == nil
}

// PermittedTriggers returns every trigger that would succeed from in.From
func (g *rulesGuard) PermittedTriggers(in Input) []Trigger {
	config, exists := g.configurations[in.From]
	if !exists || in.From.IsTerminal() {
		return []Trigger{}
	}

	triggers := make([]Trigger, 0, len(config.order))
	for _, trigger := range config.order {
		if config.ignored[trigger] {
			continue
		}
		check := in
		check.Trigger = trigger
		check.DryRun = true
		if g.CanFire(check) {
			triggers = append(triggers, trigger)
		}
	}

	return triggers
}
