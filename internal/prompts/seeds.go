package prompts

import "time"

// SeedCatalog returns the built-in templates used when no score file exists.
// Every call returns a fresh map.
func SeedCatalog(now time.Time) Catalog {
	return Catalog{
		"default_v1": {
			Template: "Rewrite the following chapter in clear, modern English while preserving every plot point, " +
				"character name and the original tone. Keep paragraph structure intact.\n\n",
			Origin:    OriginSeed,
			CreatedAt: now,
		},
		"vivid_v1": {
			Template: "Rewrite the following chapter with richer sensory description and more vivid imagery. " +
				"Do not add new events or characters.\n\n",
			Origin:    OriginSeed,
			CreatedAt: now,
		},
		"concise_v1": {
			Template: "Rewrite the following chapter more concisely. Remove redundancy and tighten sentences " +
				"without losing plot, dialogue meaning or atmosphere.\n\n",
			Origin:    OriginSeed,
			CreatedAt: now,
		},
		"dialogue_v1": {
			Template: "Rewrite the following chapter so that dialogue sounds natural to a contemporary reader. " +
				"Keep narration faithful to the source.\n\n",
			Origin:    OriginSeed,
			CreatedAt: now,
		},
	}
}
