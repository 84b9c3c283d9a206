// Package topology builds the bus-grouped view of discovered modules.
package topology

import (
	"sort"

	"canscan/internal/appstate"
)

// Build groups modules by bus name and returns them sorted by bus name.
func Build(modules []appstate.ModuleInfo) appstate.TopologyGraph {
	buses := make(map[string][]string)
	var order []string
	for _, m := range modules {
		if _, ok := buses[m.Bus]; !ok {
			order = append(order, m.Bus)
		}
		buses[m.Bus] = append(buses[m.Bus], m.ID)
	}

	busList := make([]appstate.BusInfo, 0, len(order))
	for _, name := range order {
		busList = append(busList, appstate.BusInfo{Name: name, Modules: buses[name]})
	}
	sort.Slice(busList, func(i, j int) bool { return busList[i].Name < busList[j].Name })

	return appstate.TopologyGraph{Buses: busList}
}
