package config

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	// Run defaults
	if cfg.Run.Concurrency == 0 {
		cfg.Run.Concurrency = 8
	}
	// NOTE: In TOML, we can't distinguish 0 from unset, so:
	// - Unset (0) → defaults to 42 for reproducible cosmetic sampling
	// - Explicitly set to -1 → time-seeded, non-reproducible
	// - Any other value → used as-is
	if cfg.Run.Seed == 0 {
		cfg.Run.Seed = 42
	}
	if cfg.Run.OutputDir == "" {
		cfg.Run.OutputDir = "output"
	}
	if cfg.Run.ShutdownGraceSeconds == 0 {
		cfg.Run.ShutdownGraceSeconds = 30
	}

	// Endpoint defaults target a local Ollama-style server
	if cfg.Endpoint.BaseURL == "" {
		cfg.Endpoint.BaseURL = "http://localhost:11434"
	}
	if cfg.Endpoint.Model == "" {
		cfg.Endpoint.Model = "gemma3:4b"
	}
	if cfg.Endpoint.TimeoutSeconds == 0 {
		cfg.Endpoint.TimeoutSeconds = 120
	}
	if cfg.Endpoint.RateLimitPerMinute == 0 {
		cfg.Endpoint.RateLimitPerMinute = 60
	}
	if cfg.Endpoint.BurstPercent == 0 {
		cfg.Endpoint.BurstPercent = 15
	}
	if cfg.Endpoint.MinResponseChars == 0 {
		cfg.Endpoint.MinResponseChars = 20
	}

	// Retry defaults
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialBackoffMS == 0 {
		cfg.Retry.InitialBackoffMS = 500
	}
	if cfg.Retry.MaxBackoffSeconds == 0 {
		cfg.Retry.MaxBackoffSeconds = 30
	}
	if cfg.Retry.FatalDegradeThreshold == 0 {
		cfg.Retry.FatalDegradeThreshold = 3
	}
	if cfg.Retry.FatalAbortThreshold == 0 {
		cfg.Retry.FatalAbortThreshold = 2
	}

	// Checkpoint defaults
	if cfg.Checkpoint.FlushCount == 0 {
		cfg.Checkpoint.FlushCount = 100
	}
	if cfg.Checkpoint.FlushIntervalSeconds == 0 {
		cfg.Checkpoint.FlushIntervalSeconds = 60
	}
	if cfg.Checkpoint.BufferCapacity == 0 {
		cfg.Checkpoint.BufferCapacity = 2 * cfg.Checkpoint.FlushCount
	}

	// Export defaults
	if len(cfg.Export.Encodings) == 0 {
		cfg.Export.Encodings = []string{"jsonl", "json"}
	}

	// Pool defaults (per-field, so a partial [pools] section keeps the rest)
	if len(cfg.Pools.Categories) == 0 {
		cfg.Pools.Categories = defaultCategories()
	}
	if len(cfg.Pools.Complexity) == 0 {
		cfg.Pools.Complexity = defaultComplexity()
	}
	if len(cfg.Pools.Subjects) == 0 {
		cfg.Pools.Subjects = defaultSubjects()
	}
	if len(cfg.Pools.Domains) == 0 {
		cfg.Pools.Domains = defaultDomains()
	}
	if len(cfg.Pools.Triggers) == 0 {
		cfg.Pools.Triggers = defaultTriggers()
	}
	if len(cfg.Pools.EmotionalStates) == 0 {
		cfg.Pools.EmotionalStates = defaultEmotionalStates()
	}
	if len(cfg.Pools.LanguageStyles) == 0 {
		cfg.Pools.LanguageStyles = defaultLanguageStyles()
	}
	if len(cfg.Pools.Perspectives) == 0 {
		cfg.Pools.Perspectives = defaultPerspectives()
	}
	if len(cfg.Pools.UniqueAngles) == 0 {
		cfg.Pools.UniqueAngles = defaultUniqueAngles()
	}

	// Apply default templates for any format not overridden
	if cfg.Templates == nil {
		cfg.Templates = make(map[string]string)
	}
	for name, tmpl := range DefaultTemplates() {
		if _, ok := cfg.Templates[name]; !ok {
			cfg.Templates[name] = tmpl
		}
	}

	// Category weights default to uniform across the whole pool; format
	// weights default to the classic 70/20/10 single/chain/dialogue mix.
	if len(cfg.Weights.Categories) == 0 {
		cfg.Weights.Categories = make(map[string]float64, len(cfg.Pools.Categories))
		for name := range cfg.Pools.Categories {
			cfg.Weights.Categories[name] = 1.0
		}
	}
	if len(cfg.Weights.Formats) == 0 {
		cfg.Weights.Formats = map[string]float64{
			"single":   0.7,
			"chain":    0.2,
			"dialogue": 0.1,
		}
	}
}

// DefaultTemplates returns the built-in prompt template for every known format
func DefaultTemplates() map[string]string {
	return map[string]string{
		"single":         GetDefaultSingleTemplate(),
		"chain":          GetDefaultChainTemplate(),
		"dialogue":       GetDefaultDialogueTemplate(),
		"thought_stream": GetDefaultThoughtStreamTemplate(),
		"negative":       GetDefaultNegativeTemplate(),
	}
}

// GetDefaultSingleTemplate returns the default template for single-action examples
func GetDefaultSingleTemplate() string {
	return `Generate 1 example (2-4 sentences) showing someone {{.CategoryDesc}} in this specific scenario:

Scenario: {{.Subject}} is dealing with a situation in {{.Domain}} and experiences {{.Trigger}}. They engage in {{.CategoryDesc}}.

Requirements:
- Domain: {{.Domain}}
- Emotional context: {{.EmotionalState}}
- Show the cognitive process explicitly
- Use {{.LanguageStyle}} language
- Perspective: {{.Perspective}}
- Focus angle: {{.UniqueAngle}}
- Complexity: {{.Complexity}} ({{.ComplexityDesc}})

Output only the example text, no preamble.`
}

// GetDefaultChainTemplate returns the default template for sequential action chains
func GetDefaultChainTemplate() string {
	return `Generate 1 example (4-6 sentences) showing this sequence of cognitive actions:

Step 1: {{.CategoryDesc}} triggered by {{.Trigger}}
Step 2: This leads to {{.Secondary1Desc}}
Step 3: Which results in {{.Secondary2Desc}}

Context:
- Domain: {{.Domain}}
- Subject: {{.Subject}}
- Emotional undertone: {{.EmotionalState}}

Requirements:
- Show clear progression between steps
- Make causal connections visible
- Perspective: {{.Perspective}}
- Complexity: {{.Complexity}} ({{.ComplexityDesc}})
- Unique constraint: {{.UniqueAngle}}

Output only the example text, no preamble.`
}

// GetDefaultDialogueTemplate returns the default template for dialogue-format examples
func GetDefaultDialogueTemplate() string {
	return `Generate a dialogue (3-4 exchanges) showing {{.CategoryDesc}} emerging in conversation:

Setting: a conversation between {{.Subject}} and someone they trust
Topic: {{.Domain}}
Trigger: {{.Trigger}}
Cognitive action demonstrated: {{.CategoryDesc}}

Requirements:
- Show the cognitive action emerging through dialogue
- Keep the dialogue natural and realistic
- Emotional tone: {{.EmotionalState}}
- Language style: {{.LanguageStyle}}
- Unique focus: {{.UniqueAngle}}

Output dialogue format only, no stage directions.`
}

// GetDefaultThoughtStreamTemplate returns the default template for stream-of-consciousness examples
func GetDefaultThoughtStreamTemplate() string {
	return `Generate a stream-of-consciousness example (4-6 sentences) showing {{.CategoryDesc}}:

Initial state: {{.Subject}} is facing a situation in {{.Domain}}, {{.EmotionalState}}
Trigger: {{.Trigger}}
Cognitive process: {{.CategoryDesc}}

Requirements:
- Show the mind in motion, not just the conclusion
- Include false starts, interruptions, tangents
- Make it feel like real internal dialogue
- Perspective: {{.Perspective}}
- Include: {{.UniqueAngle}}
- Complexity: {{.Complexity}} ({{.ComplexityDesc}})

Output only the thought stream, no framing.`
}

// GetDefaultNegativeTemplate returns the default template for absence-of-action examples
func GetDefaultNegativeTemplate() string {
	return `Generate 1 example (2-4 sentences) showing the ABSENCE of {{.CategoryDesc}}:

Context: {{.Subject}} faces a situation in {{.Domain}}
Trigger present: {{.Trigger}}
What they DON'T do: {{.CategoryDesc}}

Requirements:
- Show rigid thinking or a missed opportunity
- Make it realistic, not a caricature
- Emotional state: {{.EmotionalState}}
- Language style: {{.LanguageStyle}}
- Include: {{.UniqueAngle}}

Output only the example text, no preamble.`
}
