package combat

import (
	"math"

	"starlanes.ai/internal/sim/model"
	"starlanes.ai/internal/sim/state"
)

// Harvest runs one mining tick for every task: drain energy, move ore from
// the resource into cargo, then ramp the rate toward the cap.
func (e *Engine) Harvest(st *state.State) {
	r := &round{Engine: e, st: st}
	mt := e.Tuning.Mining
	for _, key := range state.Keys(st.Harvest) {
		task := st.Harvest[key]
		miner, ok := st.Entities[task.Entity]
		if !ok || miner.IsWreck() {
			delete(st.Harvest, key)
			continue
		}
		rock, ok := st.Entities[task.Target]
		if !ok || rock.Material <= 0 {
			r.stopHarvest(miner, task, "resource depleted")
			continue
		}
		if model.TileDist(miner.Pos, rock.Pos) > mt.Range {
			st.Log(miner.ID, model.LogEffect, map[string]any{"target": rock.ID, "result": "out_of_range"},
				"%s is out of mining range of %s", miner.ID, rock.ID)
			continue
		}
		if miner.Stats.Energy < mt.EnergyPerTick {
			if !task.Paused {
				task.Paused = true
				st.Log(miner.ID, model.LogEffect, map[string]any{"target": rock.ID, "result": "paused"},
					"%s paused mining: energy exhausted", miner.ID)
			}
			continue
		}
		task.Paused = false
		miner.Stats.Energy -= mt.EnergyPerTick

		amount := task.Rate + task.Carry
		whole := math.Floor(amount)
		task.Carry = amount - whole
		got := min(int(whole), rock.Material)
		rock.Material -= got
		if got > 0 {
			if miner.Cargo == nil {
				miner.Cargo = map[string]int{}
			}
			miner.Cargo[CargoOre] += got
		}

		task.Rate = math.Min(mt.Cap, task.Rate+mt.Ramp)
		for i := range miner.Effects {
			if miner.Effects[i].Key == model.EffectMiningRate {
				miner.Effects[i].Magnitude = task.Rate
			}
		}
	}
}

func (r *round) stopHarvest(miner *model.Entity, task *model.HarvestTask, reason string) {
	delete(r.st.Harvest, task.Entity)
	out := miner.Effects[:0]
	for _, fx := range miner.Effects {
		if fx.Key != model.EffectMiningRate {
			out = append(out, fx)
		}
	}
	miner.Effects = out
	r.st.Log(miner.ID, model.LogAbility, map[string]any{"target": task.Target, "reason": reason},
		"%s stopped mining %s: %s", miner.ID, task.Target, reason)
}
