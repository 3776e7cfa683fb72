package app

import "fmt"

const birthNamesTable = "birth_names"

type birthName struct {
	ds       string
	gender   string
	name     string
	num      int
	state    string
	numBoys  int
	numGirls int
}

var (
	exampleStates = []string{"CA", "FL", "IL", "NY", "TX", "other"}
	exampleBoys   = []string{"Aaron", "Michael", "Daniel", "James", "Joseph"}
	exampleGirls  = []string{"Amanda", "Jennifer", "Sarah", "Jessica", "Ashley"}
)

// birthNamesRows generates a deterministic birth_names table: one row per
// year, state and name over 1965..1974.
func birthNamesRows() []birthName {
	var rows []birthName
	for year := 1965; year < 1975; year++ {
		ds := fmt.Sprintf("%d-01-01 00:00:00", year)
		for si, state := range exampleStates {
			for ni := range exampleBoys {
				num := 50 + (year-1965)*7 + si*13 + ni*29
				rows = append(rows,
					birthName{ds: ds, gender: "boy", name: exampleBoys[ni], num: num, state: state, numBoys: num},
					birthName{ds: ds, gender: "girl", name: exampleGirls[ni], num: num + 3, state: state, numGirls: num + 3},
				)
			}
		}
	}
	return rows
}
