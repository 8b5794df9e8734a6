package config

// DefaultSports are the leagues scanned when the YAML defines none.
func DefaultSports() []SportConfig {
	two := func(name, display, key, slug string) SportConfig {
		return SportConfig{
			Name: name, DisplayName: display, OddsKey: key, TagSlug: slug,
			ScanIntervalSeconds: 300, MinEdge: 0.03, MaxPerGame: 500,
		}
	}
	soccer := func(name, display, key, slug string) SportConfig {
		s := two(name, display, key, slug)
		s.ThreeWay = true
		s.MinEdge = 0.05
		return s
	}
	return []SportConfig{
		two("nba", "NBA", "basketball_nba", "nba"),
		two("nhl", "NHL", "icehockey_nhl", "nhl"),
		soccer("epl", "Premier League", "soccer_epl", "epl"),
		soccer("laliga", "La Liga", "soccer_spain_la_liga", "la-liga"),
		soccer("bundesliga", "Bundesliga", "soccer_germany_bundesliga", "bundesliga"),
		soccer("seriea", "Serie A", "soccer_italy_serie_a", "serie-a"),
		soccer("ligue1", "Ligue 1", "soccer_france_ligue_one", "ligue-1"),
	}
}

// Polymarket titles use nicknames ("Lakers vs. Celtics"); The Odds API uses
// the full name. Key = The Odds API name.
var defaultAliases = map[string]map[string][]string{
	"nba": {
		"Atlanta Hawks":          {"hawks", "atl"},
		"Boston Celtics":         {"celtics", "bos"},
		"Brooklyn Nets":          {"nets", "bkn"},
		"Charlotte Hornets":      {"hornets", "cha"},
		"Chicago Bulls":          {"bulls", "chi"},
		"Cleveland Cavaliers":    {"cavaliers", "cavs", "cle"},
		"Dallas Mavericks":       {"mavericks", "mavs", "dal"},
		"Denver Nuggets":         {"nuggets", "den"},
		"Detroit Pistons":        {"pistons", "det"},
		"Golden State Warriors":  {"warriors", "gsw"},
		"Houston Rockets":        {"rockets", "hou"},
		"Indiana Pacers":         {"pacers", "ind"},
		"Los Angeles Clippers":   {"clippers", "la clippers", "lac"},
		"Los Angeles Lakers":     {"lakers", "la lakers", "lal"},
		"Memphis Grizzlies":      {"grizzlies", "mem"},
		"Miami Heat":             {"heat", "mia"},
		"Milwaukee Bucks":        {"bucks", "mil"},
		"Minnesota Timberwolves": {"timberwolves", "wolves", "min"},
		"New Orleans Pelicans":   {"pelicans", "nop"},
		"New York Knicks":        {"knicks", "nyk"},
		"Oklahoma City Thunder":  {"thunder", "okc"},
		"Orlando Magic":          {"magic", "orl"},
		"Philadelphia 76ers":     {"76ers", "sixers", "phi"},
		"Phoenix Suns":           {"suns", "phx"},
		"Portland Trail Blazers": {"trail blazers", "blazers", "por"},
		"Sacramento Kings":       {"kings", "sac"},
		"San Antonio Spurs":      {"spurs", "sas"},
		"Toronto Raptors":        {"raptors", "tor"},
		"Utah Jazz":              {"jazz", "uta"},
		"Washington Wizards":     {"wizards", "was"},
	},
	"nhl": {
		"Anaheim Ducks":         {"ducks", "ana"},
		"Boston Bruins":         {"bruins"},
		"Buffalo Sabres":        {"sabres", "buf"},
		"Calgary Flames":        {"flames", "cgy"},
		"Carolina Hurricanes":   {"hurricanes", "canes", "car"},
		"Chicago Blackhawks":    {"blackhawks"},
		"Colorado Avalanche":    {"avalanche", "avs", "col"},
		"Columbus Blue Jackets": {"blue jackets", "cbj"},
		"Dallas Stars":          {"stars"},
		"Detroit Red Wings":     {"red wings"},
		"Edmonton Oilers":       {"oilers", "edm"},
		"Florida Panthers":      {"panthers", "fla"},
		"Los Angeles Kings":     {"la kings", "lak"},
		"Minnesota Wild":        {"wild"},
		"Montréal Canadiens":    {"canadiens", "habs", "montreal canadiens", "mtl"},
		"Nashville Predators":   {"predators", "preds", "nsh"},
		"New Jersey Devils":     {"devils", "njd"},
		"New York Islanders":    {"islanders", "nyi"},
		"New York Rangers":      {"rangers", "nyr"},
		"Ottawa Senators":       {"senators", "ott"},
		"Philadelphia Flyers":   {"flyers"},
		"Pittsburgh Penguins":   {"penguins", "pit"},
		"San Jose Sharks":       {"sharks", "sjs"},
		"Seattle Kraken":        {"kraken", "sea"},
		"St Louis Blues":        {"blues", "st. louis blues", "stl"},
		"Tampa Bay Lightning":   {"lightning", "tbl"},
		"Toronto Maple Leafs":   {"maple leafs", "leafs"},
		"Utah Hockey Club":      {"utah hc", "utah mammoth", "mammoth"},
		"Vancouver Canucks":     {"canucks", "van"},
		"Vegas Golden Knights":  {"golden knights", "vgk"},
		"Washington Capitals":   {"capitals", "caps", "wsh"},
		"Winnipeg Jets":         {"jets", "wpg"},
	},
	"epl": {
		"Manchester City":          {"man city"},
		"Manchester United":        {"man united", "man utd"},
		"Tottenham Hotspur":        {"tottenham", "spurs"},
		"Wolverhampton Wanderers":  {"wolves"},
		"Brighton and Hove Albion": {"brighton"},
		"Newcastle United":         {"newcastle"},
		"West Ham United":          {"west ham"},
		"Nottingham Forest":        {"nottm forest", "forest"},
	},
}
