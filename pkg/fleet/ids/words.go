package ids

// adjectives and nouns back the themed-word-list identifier scheme (C1).
// Kept short and deliberately unglamorous; the point is human-readability
// under `fm list`, not cleverness.
var adjectives = []string{
	"brisk", "calm", "dry", "eager", "fond", "glad", "hazy", "idle",
	"jolly", "keen", "lean", "mild", "neat", "odd", "plain", "quiet",
	"rapid", "sharp", "tidy", "vivid", "warm", "young", "zesty", "bold",
	"crisp", "dense", "early", "faint", "grand", "humble",
}

var nouns = []string{
	"anchor", "badger", "canyon", "delta", "ember", "falcon", "glacier",
	"harbor", "island", "jasper", "kettle", "lagoon", "meadow", "nebula",
	"oasis", "pebble", "quarry", "ridge", "summit", "thicket", "undertow",
	"valley", "willow", "yarrow", "zephyr", "basin", "cinder", "drift",
	"ember", "fathom",
}
