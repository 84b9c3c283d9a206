// Package discovery finds responding ECUs on the bus: a curated candidate
// list tried first, then a brute-force sweep of the remaining standard
// 11-bit diagnostic id range.
package discovery

import (
	"fmt"

	"canscan/internal/appstate"
	"canscan/internal/uds"
)

// ModuleCandidate is a known tx/rx id pair worth probing before the sweep.
type ModuleCandidate struct {
	TxID     uint32
	RxID     uint32
	Name     string
	Bus      string
	Category string
}

// DefaultCandidates lists the modules most vehicles expose at fixed ids.
func DefaultCandidates() []ModuleCandidate {
	return []ModuleCandidate{
		{TxID: 0x7E0, RxID: 0x7E8, Name: "PCM", Bus: "HS-CAN", Category: "Powertrain"},
		{TxID: 0x7E1, RxID: 0x7E9, Name: "TCM", Bus: "HS-CAN", Category: "Powertrain"},
		{TxID: 0x726, RxID: 0x72E, Name: "ABS", Bus: "HS-CAN", Category: "Chassis"},
		{TxID: 0x727, RxID: 0x72F, Name: "BCM", Bus: "MS-CAN", Category: "Body"},
	}
}

// VinInfo is the small set of facts decodable from a VIN without a full
// manufacturer database.
type VinInfo struct {
	WMI  string
	Year string
}

var vinYearByCode = map[byte]string{
	'K': "2019",
	'L': "2020",
	'M': "2021",
	'N': "2022",
	'P': "2023",
	'R': "2024",
}

// DecodeVIN extracts the World Manufacturer Identifier and approximate
// model year from a VIN. It returns false if vin is too short to contain
// a position-10 model-year character.
func DecodeVIN(vin string) (VinInfo, bool) {
	if len(vin) < 10 {
		return VinInfo{}, false
	}
	year, ok := vinYearByCode[vin[9]]
	if !ok {
		year = "Unknown"
	}
	return VinInfo{WMI: vin[0:3], Year: year}, true
}

// DiscoverModules probes the default candidates, then sweeps 0x700-0x7E7
// for any id not already claimed by a candidate, recording every id that
// answers tester-present as a present module.
func DiscoverModules(client *uds.Client, extraCandidates []ModuleCandidate) []appstate.ModuleInfo {
	var modules []appstate.ModuleInfo
	candidates := append(append([]ModuleCandidate(nil), DefaultCandidates()...), extraCandidates...)
	seen := make(map[uint32]bool)

	for _, candidate := range candidates {
		if err := client.TesterPresent(candidate.TxID, candidate.RxID); err != nil {
			continue
		}
		modules = append(modules, appstate.ModuleInfo{
			ID:       canonicalID(candidate.TxID),
			Name:     candidate.Name,
			Bus:      candidate.Bus,
			Category: candidate.Category,
			TxID:     candidate.TxID,
			RxID:     candidate.RxID,
			Status:   appstate.ModuleOk,
			DtcCount: 0,
		})
		seen[candidate.TxID] = true
	}

	for txID := uint32(0x700); txID <= 0x7E7; txID++ {
		if seen[txID] {
			continue
		}
		rxID := txID + 0x8
		if err := client.TesterPresent(txID, rxID); err != nil {
			continue
		}
		id := canonicalID(txID)
		modules = append(modules, appstate.ModuleInfo{
			ID:       id,
			Name:     fmt.Sprintf("ECU %s", id),
			Bus:      "Unknown",
			Category: "Unknown",
			TxID:     txID,
			RxID:     rxID,
			Status:   appstate.ModuleOk,
			DtcCount: 0,
		})
	}

	return modules
}

func canonicalID(id uint32) string {
	return fmt.Sprintf("0x%03X", id)
}
