package combat

import (
	"fmt"

	"starlanes.ai/internal/sim/catalogs"
	"starlanes.ai/internal/sim/model"
)

// activation is a validated, paid-for ability use.
type activation struct {
	order  *model.Order
	def    catalogs.AbilityDef
	caster *model.Entity
	target *model.Entity
}

type handler func(r *round, a activation)

// handlerFor is the closed ability dispatch: every catalog kind maps to
// exactly one typed handler.
func handlerFor(kind catalogs.AbilityKind) (handler, error) {
	switch kind {
	case catalogs.KindRepair:
		return (*round).repair, nil
	case catalogs.KindEvasion:
		return effectHandler(model.EffectEvasion), nil
	case catalogs.KindSizeMitigation:
		return (*round).sizeMitigation, nil
	case catalogs.KindHold:
		return effectHandler(model.EffectHold), nil
	case catalogs.KindScanBoost:
		return effectHandler(model.EffectScanBoost), nil
	case catalogs.KindSpeedBoost:
		return effectHandler(model.EffectSpeedMult), nil
	case catalogs.KindMine:
		return (*round).mine, nil
	case catalogs.KindWeapon:
		return (*round).queueAttack, nil
	default:
		return nil, fmt.Errorf("no handler for ability kind %q", kind)
	}
}

func duration(def catalogs.AbilityDef) int64 {
	if def.Duration <= 0 {
		return 1
	}
	return int64(def.Duration)
}

func effectSource(def catalogs.AbilityDef, caster string) string {
	return def.Key + "@" + caster
}

func effectHandler(key string) handler {
	return func(r *round, a activation) {
		st := r.st
		mag := a.def.Magnitude
		if key == model.EffectHold {
			mag = 1
		}
		a.target.SetEffect(model.StatusEffect{
			Key:         key,
			Magnitude:   mag,
			AppliedTurn: st.Turn,
			ExpiresTurn: model.ExpiresAt(st.Turn + duration(a.def)),
			Source:      effectSource(a.def, a.caster.ID),
		})
		st.Log(a.caster.ID, model.LogEffect, map[string]any{
			"ability": a.def.Key, "target": a.target.ID, "effect": key, "magnitude": mag,
		}, "%s applied %s to %s", a.def.Key, key, a.target.ID)
	}
}

func (r *round) repair(a activation) {
	st := r.st
	t := a.target
	before := t.Stats.HP
	t.Stats.HP = min(t.Stats.MaxHP, t.Stats.HP+int(a.def.Magnitude))
	if t.Stats.HP == t.Stats.MaxHP && t.Combat.WasDamaged {
		t.Combat.ResilienceReady = true
		t.Combat.WasDamaged = false
	}
	st.Log(a.caster.ID, model.LogAbility, map[string]any{
		"ability": a.def.Key, "target": t.ID, "healed": t.Stats.HP - before, "hp": t.Stats.HP,
	}, "%s repaired %s for %d", a.caster.ID, t.ID, t.Stats.HP-before)
}

func (r *round) sizeMitigation(a activation) {
	if a.def.IgnoreSize {
		effectHandler(model.EffectIgnoreSizePenalty)(r, a)
		return
	}
	effectHandler(model.EffectSizeMitigation)(r, a)
}

// mine starts a harvest task on the target resource. Stopping a running
// task is handled before validation so it costs nothing.
func (r *round) mine(a activation) {
	st := r.st
	rate := r.Tuning.Mining.BaseRate
	st.Harvest[a.caster.ID] = &model.HarvestTask{
		Entity:      a.caster.ID,
		Target:      a.target.ID,
		Rate:        rate,
		StartedTurn: st.Turn,
	}
	a.caster.SetEffect(model.StatusEffect{
		Key:         model.EffectMiningRate,
		Magnitude:   rate,
		AppliedTurn: st.Turn,
		Source:      a.def.Key,
	})
	st.Log(a.caster.ID, model.LogAbility, map[string]any{"ability": a.def.Key, "target": a.target.ID, "rate": rate},
		"%s started mining %s", a.caster.ID, a.target.ID)
}

func (r *round) queueAttack(a activation) {
	st := r.st
	r.pending = append(r.pending, PendingAttack{
		OrderID:  a.order.ID,
		Attacker: a.caster.ID,
		Target:   a.target.ID,
		Ability:  a.def,
	})
	st.Log(a.caster.ID, model.LogAbility, map[string]any{"ability": a.def.Key, "target": a.target.ID},
		"%s locked %s on %s", a.caster.ID, a.def.Key, a.target.ID)
}
