// Package combat resolves abilities, attacks, wrecks, respawns, harvesting
// and energy regeneration.
package combat

import (
	"errors"
	"fmt"

	"starlanes.ai/internal/sim/catalogs"
	"starlanes.ai/internal/sim/model"
	"starlanes.ai/internal/sim/state"
	"starlanes.ai/internal/sim/tuning"
)

const CargoOre = "ore"

var errNoPayload = errors.New("ability order without payload")

type Engine struct {
	Catalog *catalogs.Catalog
	Tuning  tuning.Tuning
}

// PendingAttack is an offensive activation queued during the ability phase
// and resolved after movement.
type PendingAttack struct {
	OrderID  string
	Attacker string
	Target   string
	Ability  catalogs.AbilityDef
}

// round carries per-resolution scratch state so one Engine can serve many
// games concurrently.
type round struct {
	*Engine
	st      *state.State
	pending []PendingAttack
}

// Abilities consumes this turn's ability orders: utility kinds first so
// their effects are in place, then offense, which only queues attacks.
func (e *Engine) Abilities(st *state.State) []PendingAttack {
	r := &round{Engine: e, st: st}
	var utility, offense []*model.Order
	for _, key := range state.Keys(st.Orders) {
		o := st.Orders[key]
		if o.Kind != model.OrderAbility || o.Turn != st.Turn {
			continue
		}
		if o.Ability == nil {
			st.LogError(o.Entity, errNoPayload)
			delete(st.Orders, key)
			continue
		}
		def, ok := e.Catalog.Get(o.Ability.Ability)
		if !ok {
			st.LogError(o.Entity, fmt.Errorf("unknown ability %q", o.Ability.Ability))
			delete(st.Orders, key)
			continue
		}
		if def.Kind.Offensive() {
			offense = append(offense, o)
		} else {
			utility = append(utility, o)
		}
	}
	for _, o := range utility {
		r.activate(o)
	}
	for _, o := range offense {
		r.activate(o)
	}
	return r.pending
}

func (r *round) softFail(caster *model.Entity, def catalogs.AbilityDef, reason string) {
	r.st.Log(caster.ID, model.LogAbility, map[string]any{"ability": def.Key, "result": "failed", "reason": reason},
		"%s could not use %s: %s", caster.ID, def.Key, reason)
}

func (r *round) activate(o *model.Order) {
	st := r.st
	defer delete(st.Orders, o.Key())

	def, _ := r.Catalog.Get(o.Ability.Ability)
	caster, ok := st.Entities[o.Entity]
	if !ok || caster.IsWreck() {
		return
	}
	if def.Passive {
		r.softFail(caster, def, "passive ability")
		return
	}
	cdKey := model.CooldownKey(caster.ID, def.Key)
	if cd, ok := st.Cooldowns[cdKey]; ok && st.Turn < cd.ReadyTurn {
		return
	}
	if def.Kind == catalogs.KindMine {
		if task, ok := st.Harvest[caster.ID]; ok {
			r.stopHarvest(caster, task, "stopped")
			return
		}
	}
	target, reason := r.resolveTarget(caster, def, o.Ability)
	if reason != "" {
		r.softFail(caster, def, reason)
		return
	}
	if def.Kind != catalogs.KindWeapon && target.ID != caster.ID {
		reach := def.Range
		if def.Kind == catalogs.KindMine && reach <= 0 {
			reach = r.Tuning.Mining.Range
		}
		if model.TileDist(caster.Pos, target.Pos) > reach {
			r.softFail(caster, def, "out of range")
			return
		}
	}
	if caster.Stats.Energy < def.EnergyCost {
		r.softFail(caster, def, "insufficient energy")
		return
	}
	h, err := handlerFor(def.Kind)
	if err != nil {
		st.LogError(caster.ID, err)
		return
	}
	caster.Stats.Energy -= def.EnergyCost
	if def.Cooldown > 0 {
		st.Cooldowns[cdKey] = &model.Cooldown{Entity: caster.ID, Ability: def.Key, ReadyTurn: st.Turn + int64(def.Cooldown)}
	}
	h(r, activation{order: o, def: def, caster: caster, target: target})
}

func (r *round) resolveTarget(caster *model.Entity, def catalogs.AbilityDef, ab *model.AbilityOrder) (*model.Entity, string) {
	if def.Target == catalogs.TargetSelf {
		return caster, ""
	}
	if ab.Target == "" {
		return nil, "missing target"
	}
	t, ok := r.st.Entities[ab.Target]
	if !ok {
		return nil, "target not found"
	}
	if t.IsWreck() {
		return nil, "target destroyed"
	}
	switch def.Target {
	case catalogs.TargetAlly:
		if t.Kind == model.KindResource || t.Owner != caster.Owner {
			return nil, "target is not an ally"
		}
	case catalogs.TargetEnemy:
		if t.Kind == model.KindResource || t.Owner == caster.Owner {
			return nil, "target is not an enemy"
		}
	case catalogs.TargetResource:
		if t.Kind != model.KindResource {
			return nil, "target is not a resource"
		}
	}
	return t, ""
}

// Combat is phase six: attacks, then cleanup of effects, wrecks and
// respawns, then regeneration.
func (e *Engine) Combat(st *state.State, attacks []PendingAttack) {
	e.ResolveAttacks(st, attacks)
	e.Cleanup(st)
	e.Regenerate(st)
}

func (e *Engine) ResolveAttacks(st *state.State, attacks []PendingAttack) {
	r := &round{Engine: e, st: st}
	for _, a := range attacks {
		r.resolve(a)
	}
}

func (r *round) resolve(a PendingAttack) {
	st := r.st
	att, ok := st.Entities[a.Attacker]
	if !ok || att.IsWreck() {
		return
	}
	def := a.Ability
	tgt, ok := st.Entities[a.Target]
	if !ok || tgt.IsWreck() {
		st.Log(att.ID, model.LogAttack, map[string]any{"ability": def.Key, "target": a.Target, "result": "no_target"},
			"%s lost its target %s", att.ID, a.Target)
		return
	}
	shot := Shot{
		Base:           def.Damage,
		Distance:       model.TileDist(att.Pos, tgt.Pos),
		Range:          def.Range,
		Optimal:        def.Optimal,
		Falloff:        def.FalloffRate,
		AttackerClass:  att.Class,
		DefenderClass:  tgt.Class,
		PointDefense:   def.HasTag(catalogs.TagPointDefense),
		SizeMitigation: att.MaxEffect(st.Turn, model.EffectSizeMitigation),
		IgnoreSize:     def.IgnoreSize || att.HasEffect(st.Turn, model.EffectIgnoreSizePenalty),
		Evasion:        tgt.SumEffect(st.Turn, model.EffectEvasion) + tgt.Stats.InnateEvasion,
		Resilience:     tgt.Combat.ResilienceReady,
	}
	b := Damage(shot, r.Tuning.Combat)
	data := map[string]any{
		"ability":    def.Key,
		"target":     tgt.ID,
		"distance":   shot.Distance,
		"falloff":    b.Falloff,
		"size":       b.Size,
		"evasion":    b.Evasion,
		"resilience": b.Resilience,
		"damage":     b.Damage,
	}
	switch {
	case !b.InRange:
		data["result"] = "out_of_range"
		st.Log(att.ID, model.LogAttack, data, "%s missed %s: out of range (%.1f > %.1f)", att.ID, tgt.ID, shot.Distance, shot.Range)
		return
	case b.Damage <= 0:
		data["result"] = "ineffective"
		st.Log(att.ID, model.LogAttack, data, "%s's %s was ineffective against %s", att.ID, def.Key, tgt.ID)
		return
	}
	if shot.Resilience {
		tgt.Combat.ResilienceReady = false
	}
	tgt.Stats.HP -= b.Damage
	tgt.Combat.WasDamaged = true
	data["result"] = "hit"
	data["hp"] = max(tgt.Stats.HP, 0)
	st.Log(att.ID, model.LogAttack, data, "%s hit %s with %s for %d", att.ID, tgt.ID, def.Key, b.Damage)
	if tgt.Stats.HP <= 0 {
		tgt.Stats.HP = 0
		r.wreck(tgt, att)
	}
}

// Regenerate restores energy and clamps hit points to their maximum.
func (e *Engine) Regenerate(st *state.State) {
	for _, id := range state.Keys(st.Entities) {
		ent := st.Entities[id]
		if ent.IsWreck() {
			continue
		}
		ent.Stats.Energy = min(ent.Stats.MaxEnergy, ent.Stats.Energy+ent.Stats.EnergyRegen)
		ent.Stats.HP = min(ent.Stats.HP, ent.Stats.MaxHP)
	}
}
