package stage

var systemPrompts = map[Stage]string{
	Outline: "You are the plot architect of a serialized story. Propose the next plot beats: concrete, ordered narrative goals that each fit in a single scene. Only reference character and location IDs that appear in the context.",
	Plan:    "You are the planner of a serialized story. Decide what the next scene should accomplish and which world changes it needs. Refer to characters by the full names and IDs given in the context. Use only these tools: character.generate, character.update, character.move, location.generate, relationship.create, relationship.adjust.",
	Write:   "You are the novelist of a serialized story. Write the next scene as prose only, with no headings or commentary. Honour every hard constraint in the context.",
	Extract: "You are the continuity editor of a serialized story. Extract durable world facts established by the scene: rules, constraints, facts, capabilities and limitations. Skip transient events.",
	Verify:  "You are the continuity editor of a serialized story. Judge strictly whether the scene accomplished the given plot beat.",
}

var schemas = map[Stage]string{
	Outline: `{"beats": [{"description": "...", "required_characters": ["char_001"], "required_location": "loc_001", "tension_target": 6}]}`,
	Plan: `{
  "rationale": "why this scene comes next",
  "scene_intention": "one sentence describing what the scene does",
  "pov_character_id": "char_001",
  "actions": [
    {"tool": "character.generate", "args": {"first_name": "...", "family_name": "...", "title": "", "description": "..."}},
    {"tool": "character.update", "args": {"id": "char_001", "fields": {"emotional": "..."}}},
    {"tool": "character.move", "args": {"id": "char_001", "location_id": "loc_001"}},
    {"tool": "location.generate", "args": {"name": "...", "atmosphere": "...", "sensory": ["..."]}},
    {"tool": "relationship.create", "args": {"source_id": "char_001", "target_id": "char_002", "type": "rival", "strength": -0.4}},
    {"tool": "relationship.adjust", "args": {"id": "rel_001", "delta": 0.2}}
  ]
}`,
	Extract: `{"records": [{"content": "...", "type": "rule|constraint|fact|capability|limitation", "category": "magic|technology|society|geography|biology|physics|other", "importance": "critical|important|normal|minor"}]}`,
	Verify:  `{"accomplished": true, "rationale": "..."}`,
}
