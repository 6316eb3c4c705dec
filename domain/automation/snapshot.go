package automation

import (
	"github.com/R3E-Network/splot/domain/value"
	"github.com/R3E-Network/splot/infrastructure/errors"
)

// This file converts each primitive's config to and from the nested
// property-map shape a Manager snapshot persists (spec §6 "Persistent-
// state snapshots" and §3 "a nested property-map that reconstructs a
// thing's config... on next start").

func actionToValue(a Action) value.Value {
	m := map[string]value.Value{
		"p": value.Text(a.Path),
		"m": value.Text(a.Method),
		"s": value.Bool(a.Skip),
		"y": value.Int(int64(a.Sync)),
	}
	if a.Description != "" {
		m["desc"] = value.Text(a.Description)
	}
	if a.ContentType != "" {
		m["ct"] = value.Text(a.ContentType)
	}
	if a.HasBody {
		m["b"] = a.Body
	}
	return value.Map(m)
}

func actionFromValue(v value.Value) (Action, error) {
	m, err := v.ToMap()
	if err != nil {
		return Action{}, errors.CorruptPersistentState("action is not a map")
	}
	a := Action{}
	if p, ok := m["p"]; ok {
		a.Path, _ = p.ToText()
	}
	if meth, ok := m["m"]; ok {
		a.Method, _ = meth.ToText()
	}
	if s, ok := m["s"]; ok {
		a.Skip, _ = s.ToBool()
	}
	if y, ok := m["y"]; ok {
		i, err := y.ToInt()
		if err != nil {
			return Action{}, errors.CorruptPersistentState("action sync mode is not numeric")
		}
		a.Sync = SyncMode(i)
	}
	if d, ok := m["desc"]; ok {
		a.Description, _ = d.ToText()
	}
	if ct, ok := m["ct"]; ok {
		a.ContentType, _ = ct.ToText()
	}
	if b, ok := m["b"]; ok {
		a.Body = b
		a.HasBody = true
	}
	return a, nil
}

func actionsToValue(actions []Action) value.Value {
	elems := make([]value.Value, len(actions))
	for i, a := range actions {
		elems[i] = actionToValue(a)
	}
	return value.Array(elems...)
}

func actionsFromValue(v value.Value) ([]Action, error) {
	arr, err := v.ToArray()
	if err != nil {
		return nil, errors.CorruptPersistentState("action list is not an array")
	}
	actions := make([]Action, 0, len(arr))
	for _, e := range arr {
		a, err := actionFromValue(e)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func pairingConfigToValue(cfg PairingConfig) value.Value {
	return value.Map(map[string]value.Value{
		"source-uri":      value.Text(cfg.SourceURI),
		"destination-uri": value.Text(cfg.DestURI),
		"push":            value.Bool(cfg.Push),
		"pull":            value.Bool(cfg.Pull),
		"forward-xform":   value.Text(cfg.ForwardXform),
		"reverse-xform":   value.Text(cfg.ReverseXform),
	})
}

func decodePairingConfig(v value.Value) (PairingConfig, error) {
	m, err := v.ToMap()
	if err != nil {
		return PairingConfig{}, errors.CorruptPersistentState("pairing entry is not a map")
	}
	cfg := PairingConfig{}
	cfg.SourceURI, _ = m["source-uri"].ToText()
	cfg.DestURI, _ = m["destination-uri"].ToText()
	cfg.Push, _ = m["push"].ToBool()
	cfg.Pull, _ = m["pull"].ToBool()
	cfg.ForwardXform, _ = m["forward-xform"].ToText()
	cfg.ReverseXform, _ = m["reverse-xform"].ToText()
	return cfg, nil
}

func ruleConfigToValue(cfg RuleConfig) value.Value {
	conds := make([]value.Value, len(cfg.Conditions))
	for i, c := range cfg.Conditions {
		conds[i] = value.Map(map[string]value.Value{
			"path": value.Text(c.URI),
			"expr": value.Text(c.Expr),
		})
	}
	return value.Map(map[string]value.Value{
		"conditions": value.Array(conds...),
		"match":      value.Text(string(cfg.Match)),
		"actions":    actionsToValue(cfg.Actions),
	})
}

func decodeRuleConfig(v value.Value) (RuleConfig, error) {
	m, err := v.ToMap()
	if err != nil {
		return RuleConfig{}, errors.CorruptPersistentState("rule entry is not a map")
	}
	cfg := RuleConfig{}
	if matchV, ok := m["match"]; ok {
		matchStr, _ := matchV.ToText()
		cfg.Match = MatchMode(matchStr)
	}
	if condsV, ok := m["conditions"]; ok {
		conds, err := condsV.ToArray()
		if err != nil {
			return RuleConfig{}, errors.CorruptPersistentState("rule conditions is not an array")
		}
		for _, cv := range conds {
			cm, err := cv.ToMap()
			if err != nil {
				return RuleConfig{}, errors.CorruptPersistentState("rule condition is not a map")
			}
			path, _ := cm["path"].ToText()
			expr, _ := cm["expr"].ToText()
			cfg.Conditions = append(cfg.Conditions, ConditionConfig{URI: path, Expr: expr})
		}
	}
	if actionsV, ok := m["actions"]; ok {
		actions, err := actionsFromValue(actionsV)
		if err != nil {
			return RuleConfig{}, err
		}
		cfg.Actions = actions
	}
	return cfg, nil
}

func timerConfigToValue(cfg TimerConfig) value.Value {
	return value.Map(map[string]value.Value{
		"schedule":   value.Text(cfg.Schedule),
		"predicate":  value.Text(cfg.Predicate),
		"auto-reset": value.Bool(cfg.AutoReset),
		"actions":    actionsToValue(cfg.Actions),
	})
}

func decodeTimerConfig(v value.Value) (TimerConfig, error) {
	m, err := v.ToMap()
	if err != nil {
		return TimerConfig{}, errors.CorruptPersistentState("timer entry is not a map")
	}
	cfg := TimerConfig{}
	cfg.Schedule, _ = m["schedule"].ToText()
	cfg.Predicate, _ = m["predicate"].ToText()
	cfg.AutoReset, _ = m["auto-reset"].ToBool()
	if actionsV, ok := m["actions"]; ok {
		actions, err := actionsFromValue(actionsV)
		if err != nil {
			return TimerConfig{}, err
		}
		cfg.Actions = actions
	}
	return cfg, nil
}
