package reconcile

// Vehicles returns the vehicle of every item that has one.
func (r RouteResult) Vehicles() []*Vehicle {
	var out []*Vehicle
	for _, it := range r.Data {
		if it.Vehicle != nil {
			out = append(out, it.Vehicle)
		}
	}
	return out
}

func (r StopResult) Vehicles() []*Vehicle {
	var out []*Vehicle
	for _, it := range r.Data {
		if it.Vehicle != nil {
			out = append(out, it.Vehicle)
		}
	}
	return out
}

// CurrentStopIDs lists the distinct current stop ids across vehicles.
func CurrentStopIDs(vs []*Vehicle) []string {
	seen := make(map[string]struct{}, len(vs))
	var ids []string
	for _, v := range vs {
		if v.CurrentStopID == nil {
			continue
		}
		if _, ok := seen[*v.CurrentStopID]; ok {
			continue
		}
		seen[*v.CurrentStopID] = struct{}{}
		ids = append(ids, *v.CurrentStopID)
	}
	return ids
}

// ApplyStopNames fills CurrentStopName from names; unknown ids stay nil.
func ApplyStopNames(vs []*Vehicle, names map[string]string) {
	for _, v := range vs {
		if v.CurrentStopID == nil {
			continue
		}
		if name, ok := names[*v.CurrentStopID]; ok {
			v.CurrentStopName = &name
		}
	}
}
