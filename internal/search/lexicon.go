package search

// Category is a named bucket of topical words.
type Category struct {
	Name  string
	Words []string
}

// Lexicon is the fixed topical lexicon used to detect a category shift
// between a subject and an incoming message. Order matters for ties.
var Lexicon = []Category{
	{Name: "tech", Words: []string{"code", "bug", "api", "serveur", "server", "node", "javascript", "python", "sql", "erreur", "error", "stack", "lib", "framework", "golang", "deploy"}},
	{Name: "gaming", Words: []string{"jeu", "game", "gaming", "minecraft", "loot", "lvl", "boss", "map", "build", "craft", "quest"}},
	{Name: "food", Words: []string{"recette", "recipe", "cuisine", "cuire", "four", "oven", "œuf", "oeuf", "egg", "ingrédient", "ingredient", "grammes", "poêle", "mélanger", "bake"}},
	{Name: "shopping", Words: []string{"acheter", "buy", "prix", "price", "coût", "euros", "amazon", "magasin", "store", "commande", "order", "livraison", "delivery", "produit", "product"}},
	{Name: "apple", Words: []string{"iphone", "ipad", "macbook", "ios", "apple", "airpods", "watch"}},
	{Name: "android", Words: []string{"android", "samsung", "pixel", "oneplus", "xiaomi"}},
	{Name: "music", Words: []string{"musique", "music", "chanson", "song", "album", "spotify", "artiste", "artist", "guitare", "guitar", "piano", "bpm"}},
	{Name: "film", Words: []string{"film", "movie", "cinéma", "acteur", "actor", "actrice", "série", "series", "épisode", "episode", "netflix", "marvel", "anime"}},
	{Name: "sport", Words: []string{"football", "foot", "basket", "tennis", "match", "score", "entrainement", "training", "ligue", "league"}},
}

// MinCategoryHits is the number of lexicon words a token sequence must
// contain before it is assigned a category.
const MinCategoryHits = 2

var lexiconSets = func() []map[string]struct{} {
	out := make([]map[string]struct{}, len(Lexicon))
	for i, c := range Lexicon {
		out[i] = Set(c.Words)
	}
	return out
}()

// Classify returns the category with the most word hits in tokens, or "" when
// no category reaches MinCategoryHits. Repeated tokens count every time.
func Classify(tokens []string) string {
	best, bestHits := "", 0
	for i, c := range Lexicon {
		hits := 0
		for _, t := range tokens {
			if _, ok := lexiconSets[i][t]; ok {
				hits++
			}
		}
		if hits >= MinCategoryHits && hits > bestHits {
			best, bestHits = c.Name, hits
		}
	}
	return best
}
