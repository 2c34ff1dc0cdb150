package stats

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultTeamNames maps the box-score abbreviations to display names.
var DefaultTeamNames = map[string]string{
	"UNI": "Unicaja",
	"SBB": "Bilbao Basket",
	"BUR": "San Pablo Burgos",
	"GIR": "Bàsquet Girona",
	"TEN": "La Laguna Tenerife",
	"MAN": "BAXI Manresa",
	"LLE": "Hiopos Lleida",
	"BRE": "Río Breogán",
	"COV": "Covirán Granada",
	"JOV": "Joventut Badalona",
	"RMB": "Real Madrid",
	"GCA": "Dreamland Gran Canaria",
	"CAZ": "Casademont Zaragoza",
	"BKN": "Baskonia",
	"UCM": "UCAM Murcia",
	"MBA": "MoraBanc Andorra",
	"VBC": "Valencia Basket",
	"BAR": "Barça",
}

type TeamNames map[string]string

// LoadTeamNames returns the defaults, overlaid with a YAML map
// (abbreviation: name) when path is set.
func LoadTeamNames(path string) (TeamNames, error) {
	names := make(TeamNames, len(DefaultTeamNames))
	for k, v := range DefaultTeamNames {
		names[k] = v
	}
	if path == "" {
		return names, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read team names: %w", err)
	}
	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse team names yaml: %w", err)
	}
	for k, v := range overrides {
		names[k] = v
	}
	return names, nil
}

// Full returns the display name for abbr, or abbr itself when unknown.
func (n TeamNames) Full(abbr string) string {
	if name, ok := n[abbr]; ok {
		return name
	}
	return abbr
}
