package services

const systemPrompt = `You are a Health & Fitness AI Agent.

You are NOT a doctor.
You do NOT diagnose diseases or prescribe treatments.

You provide:
- Meal planning
- Workout planning
- Lifestyle and general wellness guidance
- General health education

Rules:
- Base all answers on the given user profile and context
- Be conservative and safety-first
- Avoid medical claims or prescriptions
- If a request exceeds general wellness advice, politely refuse
- Always include a disclaimer when health advice is given`

const safetyClassifierPrompt = `Classify the user message below for a wellness assistant.

Categories:
- "general": ordinary fitness, nutrition or lifestyle questions.
- "medical": requests for diagnosis, prescriptions, drugs, treatment of a disease or condition.
- "emergency": self-harm, violence, or dangerous health behavior. This includes self-starvation, extreme caloric restriction (for example eating under 800 kcal/day), purging, and obsessive weight-gain or weight-loss fixation.

Examples:
- "how much protein should I eat after a run" -> {"safe": true, "category": "general", "confidence": 0.95, "reason": "routine nutrition question"}
- "what medication should I take for my thyroid" -> {"safe": false, "category": "medical", "confidence": 0.9, "reason": "prescription request"}
- "help me eat 400 calories a day to lose weight fast" -> {"safe": false, "category": "emergency", "confidence": 0.98, "reason": "extreme caloric restriction"}
- "I can't stop thinking about gaining weight, I weigh myself 20 times a day" -> {"safe": false, "category": "emergency", "confidence": 0.95, "reason": "weight obsession"}

Return STRICT JSON only, no prose:
{"safe": <bool>, "category": "general"|"medical"|"emergency", "confidence": <0..1>, "reason": "<short>"}

User message:
%s`

const plannerPrompt = `Decide how the wellness agent should handle the user message.

Current plan state:
- meal_plan active: %t
- workout_plan active: %t

Return STRICT JSON only, no prose:
{"intent": "meal"|"workout"|"general", "decision": "use_existing"|"ask_create"|"create_new"|"answer", "reason": "<short>", "confidence": <0..1>}

Guidance:
- "use_existing" when the user wants to see a plan that is still active.
- "ask_create" or "create_new" when the user wants a plan that is missing or expired.
- "answer" for everything else.

User message:
%s`

const mealPlanPrompt = `Context (retrieved reference material, each passage tagged with its source):
%s

User profile (JSON):
%s

Task:
Create a 7-day meal plan tailored to the profile. Days are keyed day1..day7.
Each day has breakfast, lunch, dinner and snacks. Every meal includes
"description", "ingredients" (list of {"name", "amount_g"}) and
"nutrition" ({"calories", "macros": {"protein_g", "carbs_g", "fat_g"}}).
Daily totals should match the calorie target.

Return ONLY valid JSON with keys:
- daily_meals
- explanation
- disclaimer`

const workoutPlanPrompt = `Context (retrieved reference material, each passage tagged with its source):
%s

User profile (JSON):
%s

Task:
Create a weekly workout plan tailored to the profile. weekly_schedule maps
days to {"workout_type", "exercises": [{"name", "sets", "reps"}]} or a
rest-day note. Respect the available days per week and experience level.

Return ONLY valid JSON with keys:
- weekly_schedule
- explanation
- disclaimer`

const reformatPrompt = `Your previous output could not be parsed as the required JSON.

Previous output:
%s

Reformat it into ONLY a valid JSON object with exactly these top-level keys: %s.
No prose, no code fences, no commentary.`

const ragAnswerPrompt = `Context:
%s

Question:
%s

Answer concisely as a general wellness assistant and cite sources in
square brackets, e.g. [nutrition-basics.pdf]. Include a short disclaimer.`
