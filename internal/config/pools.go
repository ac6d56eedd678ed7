package config

// Compiled-in variable pools. Category descriptions combine the core taxonomy
// with Bloom's taxonomy, Guilford's structure-of-intellect operations, and
// metacognitive/affective operations from emotion research. All pools can be
// overridden per-field in the [pools] config section.

func defaultCategories() map[string]string {
	return map[string]string{
		// Core actions
		"reconsidering":            "reconsidering a belief or decision",
		"reframing":                "reframing a situation or perspective",
		"noticing":                 "noticing a pattern, feeling, or dynamic",
		"perspective_taking":       "taking another's perspective or temporal view",
		"questioning":              "questioning an assumption or belief",
		"abstracting":              "abstracting from specifics to general patterns",
		"concretizing":             "making abstract concepts concrete and specific",
		"connecting":               "connecting disparate ideas or experiences",
		"distinguishing":           "distinguishing between previously conflated concepts",
		"updating_beliefs":         "updating mental models or beliefs",
		"suspending_judgment":      "suspending judgment and staying with uncertainty",
		"pattern_recognition":      "recognizing recurring patterns across situations",
		"zooming_out":              "zooming out for broader context",
		"zooming_in":               "zooming in on specific details",
		"analogical_thinking":      "drawing analogies between domains",
		"counterfactual_reasoning": "engaging in 'what if' thinking",
		"hypothesis_generation":    "generating possible explanations",
		"meta_awareness":           "reflecting on one's own thinking process",
		"accepting":                "accepting and letting go of control",

		// Bloom's taxonomy
		"remembering":   "recalling relevant information or experiences",
		"understanding": "interpreting and explaining meaning",
		"applying":      "using knowledge in new situations",
		"analyzing":     "breaking down into components",
		"evaluating":    "making judgments about value or effectiveness",
		"creating":      "generating new ideas or solutions",

		// Guilford's structure of intellect
		"divergent_thinking":  "generating multiple creative solutions",
		"convergent_thinking": "finding the single best solution",
		"cognition_awareness": "becoming aware and comprehending",

		// Metacognitive operations
		"metacognitive_monitoring": "tracking one's own comprehension",
		"metacognitive_regulation": "adjusting thinking strategies",
		"self_questioning":         "interrogating one's own understanding",

		// Emotional and affective operations
		"emotional_reappraisal":  "reinterpreting emotional meaning",
		"emotion_receiving":      "becoming aware of emotions",
		"emotion_responding":     "actively engaging with emotions",
		"emotion_valuing":        "attaching worth to emotional experiences",
		"emotion_organizing":     "integrating conflicting emotions",
		"emotion_characterizing": "aligning emotions with core values",
		"situation_selection":    "choosing emotional contexts deliberately",
		"situation_modification": "changing circumstances to regulate emotion",
		"attentional_deployment": "directing attention for emotional regulation",
		"response_modulation":    "modifying emotional expression",
		"emotion_perception":     "identifying emotions in self/others",
		"emotion_facilitation":   "using emotions to enhance thinking",
		"emotion_understanding":  "comprehending emotional complexity",
		"emotion_management":     "regulating emotions in self/others",
	}
}

func defaultComplexity() map[string]string {
	return map[string]string{
		"simple":   "Single clear cognitive action, straightforward scenario, obvious outcome",
		"moderate": "Multiple factors at play, some ambiguity, partial clarity",
		"complex":  "Multiple interacting cognitive actions, high uncertainty, conflicting considerations, no clear resolution",
	}
}

func defaultSubjects() []string {
	return []string{
		// Professional roles
		"a software developer", "a teacher", "a therapist", "a manager", "a researcher",
		"a scientist", "a doctor", "a lawyer", "a consultant", "a designer",
		"an engineer", "a writer", "an artist", "a musician", "an entrepreneur",
		"a nurse", "a social worker", "a coach", "a mentor", "a leader",

		// Life stages
		"someone in their early 20s", "someone in their 30s", "someone in their 40s",
		"someone in their 50s", "someone in their 60s", "a recent graduate",
		"a parent", "a grandparent", "a student", "a retiree",

		// Relationship roles
		"a partner in a relationship", "a friend", "a colleague", "a team member",
		"a sibling", "a child reflecting on parents", "a mentee",

		// Life situations
		"someone grieving a loss", "someone facing a major transition",
		"someone dealing with success", "someone processing failure",
		"a person in therapy", "someone in recovery", "a career changer",
		"someone learning a new skill", "a person facing illness",
		"someone in conflict", "a person seeking growth",
	}
}

func defaultDomains() []string {
	return []string{
		"personal relationships", "romantic relationships", "family dynamics",
		"friendships", "career decisions", "professional development",
		"creative work", "artistic expression", "scientific research",
		"academic learning", "moral and ethical dilemmas", "health and wellness",
		"financial planning", "investment decisions", "conflict resolution",
		"identity and self-concept", "parenting and caregiving", "leadership challenges",
		"team dynamics", "communication challenges", "goal setting and achievement",
		"dealing with failure", "processing success", "daily mundane decisions",
		"philosophical questions", "spiritual exploration", "time management",
		"personal growth", "therapy and healing", "addiction recovery",
		"grief and loss", "major life transitions", "retirement planning",
		"educational choices", "political beliefs", "social justice issues",
	}
}

func defaultTriggers() []string {
	return []string{
		"reading an article that contradicts their worldview",
		"receiving unexpected feedback from someone they trust",
		"noticing their physical or emotional reaction to something",
		"having a meaningful conversation with someone",
		"experiencing an unexpected setback or failure",
		"achieving success in an unexpected way",
		"witnessing someone else's perspective on the same issue",
		"having quiet time for reflection during a walk or shower",
		"facing a deadline that forces clarity",
		"encountering a similar situation to one from their past",
		"being asked a challenging question they couldn't answer",
		"overhearing themselves explain their position to someone",
		"writing in a journal or diary",
		"waking up with a new thought after sleeping on it",
		"feeling stuck or confused about a decision",
		"noticing discomfort with their own stated position",
		"comparing two different experiences or approaches",
		"time passing and gaining emotional distance",
		"re-reading their old writing or notes",
		"discussing the issue in therapy or with a counselor",
		"observing their pattern across multiple situations",
		"receiving new information that doesn't fit their model",
		"noticing someone else struggling with similar issues",
		"experiencing a moment of unexpected clarity",
		"being challenged by someone they respect",
	}
}

func defaultEmotionalStates() []string {
	return []string{
		"feeling frustrated and stuck", "experiencing confusion and uncertainty",
		"feeling defensive about their position", "in a calm and reflective mood",
		"feeling anxious about the implications", "experiencing genuine curiosity",
		"feeling disappointed by outcomes", "in a moment of unexpected clarity",
		"feeling overwhelmed by options", "experiencing relief after stress",
		"feeling resistant to change", "open and receptive to new ideas",
		"feeling judgmental toward others", "experiencing self-doubt",
		"feeling confident in their abilities", "in a vulnerable emotional state",
		"feeling intellectually stuck", "experiencing hope about possibilities",
		"feeling skeptical of new information", "in a neutral analytical mindset",
		"feeling emotionally drained", "experiencing excitement about discovery",
		"feeling protective of their beliefs", "in a state of creative flow",
		"feeling pressured by circumstances", "experiencing gratitude for insights",
	}
}

func defaultLanguageStyles() []string {
	return []string{
		"casual and conversational",
		"introspective and literary",
		"straightforward and direct",
		"tentative and exploratory",
		"confident and declarative",
		"stream-of-consciousness style",
		"analytical and precise",
		"emotional and expressive",
		"minimalist and spare",
		"detailed and thorough",
		"questioning and uncertain",
		"philosophical and reflective",
	}
}

func defaultPerspectives() []string {
	return []string{
		"first-person present tense ('I'm noticing right now...')",
		"first-person past reflective ('I realized later that I had been...')",
		"first-person future conditional ('I'll need to reconsider when...')",
		"second-person coaching ('You might try reframing...')",
		"third-person observation ('She began to reconsider...')",
		"internal monologue with self-talk",
		"metacognitive commentary ('My thought process here is...')",
	}
}

func defaultUniqueAngles() []string {
	return []string{
		"include a specific sensory detail that triggered the insight",
		"show the cognitive process taking time rather than being instant",
		"include self-doubt about the cognitive process itself",
		"show a partial or incomplete cognitive shift",
		"include resistance or pushback before the mental shift",
		"make the scenario very mundane and everyday",
		"show it happening in a specific physical location",
		"include another person's influence on the thinking",
		"show it emerging from bodily awareness or sensation",
		"frame the insight as a question rather than a statement",
		"include what they're explicitly NOT doing (e.g., not blaming)",
		"show mixed or conflicted feelings about the new perspective",
		"include a specific metaphor or mental image",
		"show it happening during a routine activity",
		"include temporal framing (past self vs. present self)",
		"show the cognitive action being interrupted or incomplete",
		"include uncertainty about whether the new perspective is right",
		"show multiple cognitive actions happening simultaneously",
		"include how the insight affects their body or energy",
		"show the cognitive action being triggered by memory",
	}
}
